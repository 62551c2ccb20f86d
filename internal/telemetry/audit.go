package telemetry

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// Audit event types.
const (
	EventLogin         = "auth.login"
	EventLoginFailed   = "auth.login_failed"
	EventLogout        = "auth.logout"
	EventRegistered    = "account.registered"
	EventAccountPurged = "account.deleted"
	EventSessionExpiry = "session.expired"
	EventMessageSent   = "message.sent"
	EventAuditTest     = "audit.test"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// Event is what callers hand to the emitter.
type Event struct {
	Type      string
	Level     string
	Text      string
	RequestID string
	UserID    int
	Attrs     map[string]string
}

type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	logger      zerolog.Logger
	now         func() time.Time
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	UserID        *string      `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level string            `json:"level"`
	Text  string            `json:"text"`
	Attrs map[string]string `json:"attrs,omitempty"`
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string, logger zerolog.Logger) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		logger:      logger.With().Str("component", "audit").Logger(),
		now:         time.Now,
	}
}

// Emit publishes ev. Publish failures are logged and otherwise ignored; audit
// never fails the request that produced it.
func (e *AuditEmitter) Emit(ctx context.Context, ev Event) {
	if e == nil || e.publisher == nil {
		return
	}

	envelope := e.envelope(ev)
	e.logger.Debug().
		Str("event_type", envelope.EventType).
		Str("request_id", envelope.RequestID).
		Str("text", ev.Text).
		Msg("audit emit")

	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		e.logger.Warn().Err(err).Str("event_type", envelope.EventType).Msg("audit publish failed")
	}
}

func (e *AuditEmitter) envelope(ev Event) AuditEnvelope {
	level := ev.Level
	if level == "" {
		level = "info"
	}
	var userID *string
	if ev.UserID > 0 {
		id := strconv.Itoa(ev.UserID)
		userID = &id
	}
	return AuditEnvelope{
		SchemaVersion: 1,
		EventType:     ev.Type,
		OccurredAt:    e.now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     ev.RequestID,
		UserID:        userID,
		Payload: AuditPayload{
			Level: level,
			Text:  ev.Text,
			Attrs: ev.Attrs,
		},
	}
}
