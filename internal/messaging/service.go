package messaging

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"messenger/internal/apperr"
	"messenger/internal/models"
	"messenger/internal/repositories"
)

const (
	msgRecipientRequired = "Recipient is required"
	msgContentRequired   = "Message content is required"
	msgRecipientNotFound = "Recipient not found"
	msgMessageNotFound   = "Message not found"
	msgInvalidRecipient  = "Invalid recipient for this reply"
)

var msgContentTooLong = fmt.Sprintf("Message content exceeds maximum length of %d characters", models.MaxContentLength)

// UserLookup resolves recipients by username.
type UserLookup interface {
	GetByUsername(ctx context.Context, username string) (models.User, error)
}

// MessageWriter is the subset of the message store Send and ReplyContext use.
type MessageWriter interface {
	Insert(ctx context.Context, senderID, recipientID int, content string, parentID *int) (models.Message, error)
	GetByID(ctx context.Context, id int) (models.Message, error)
}

type SendInput struct {
	SenderID  int
	Recipient string
	Content   string
	ReplyTo   string
}

type Service struct {
	users    UserLookup
	messages MessageWriter
	logger   zerolog.Logger
}

func NewService(users UserLookup, messages MessageWriter, logger zerolog.Logger) *Service {
	return &Service{
		users:    users,
		messages: messages,
		logger:   logger.With().Str("component", "messaging").Logger(),
	}
}

// Send validates and stores a new message. A non-empty ReplyTo makes it a
// reply whose recipient must be one of the parent's participants.
func (s *Service) Send(ctx context.Context, in SendInput) (models.Message, error) {
	ctx, span := otel.Tracer("messenger/messaging").Start(ctx, "messaging.Send")
	defer span.End()
	span.SetAttributes(attribute.Int("sender.id", in.SenderID), attribute.Bool("message.reply", in.ReplyTo != ""))

	recipientName := strings.TrimSpace(in.Recipient)
	if recipientName == "" {
		return models.Message{}, apperr.Invalid("recipient", msgRecipientRequired)
	}
	if in.Content == "" {
		return models.Message{}, apperr.Invalid("content", msgContentRequired)
	}
	if utf8.RuneCountInString(in.Content) > models.MaxContentLength {
		return models.Message{}, apperr.Invalid("content", msgContentTooLong)
	}

	recipient, err := s.users.GetByUsername(ctx, recipientName)
	if errors.Is(err, repositories.ErrUserNotFound) {
		return models.Message{}, apperr.Invalid("recipient", msgRecipientNotFound)
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("lookup recipient")
		return models.Message{}, apperr.Internal("recipient", err)
	}

	var parentID *int
	if in.ReplyTo != "" {
		parent, err := s.visibleMessage(ctx, in.SenderID, in.ReplyTo)
		if err != nil {
			return models.Message{}, err
		}
		if !parent.Involves(recipient.ID) {
			return models.Message{}, apperr.Invalid("recipient", msgInvalidRecipient)
		}
		parentID = &parent.ID
	}

	msg, err := s.messages.Insert(ctx, in.SenderID, recipient.ID, in.Content, parentID)
	if err != nil {
		span.RecordError(err)
		s.logger.Error().Err(err).Int("sender_id", in.SenderID).Msg("insert message")
		return models.Message{}, apperr.Internal("content", err)
	}
	return msg, nil
}

// ReplyContext describes the message a reply would answer, for the compose page.
func (s *Service) ReplyContext(ctx context.Context, callerID int, replyTo string) (models.ReplyPreview, error) {
	parent, err := s.visibleMessage(ctx, callerID, replyTo)
	if err != nil {
		return models.ReplyPreview{}, err
	}
	counterpart := parent.SenderUsername
	if parent.SenderID == callerID {
		counterpart = parent.RecipientUsername
	}
	return models.ReplyPreview{
		MessageID:       parent.ID,
		SenderUsername:  parent.SenderUsername,
		SenderFirstName: parent.SenderFirstName,
		SenderLastName:  parent.SenderLastName,
		Content:         parent.Content,
		Timestamp:       parent.CreatedAt,
		Counterpart:     counterpart,
	}, nil
}

// visibleMessage loads a message the caller took part in. A malformed id, a
// missing row and someone else's message all report the same not-found error.
func (s *Service) visibleMessage(ctx context.Context, callerID int, rawID string) (models.Message, error) {
	id, err := strconv.Atoi(strings.TrimSpace(rawID))
	if err != nil || id <= 0 {
		return models.Message{}, apperr.NotFound("recipient", msgMessageNotFound)
	}

	msg, err := s.messages.GetByID(ctx, id)
	if errors.Is(err, repositories.ErrMessageNotFound) {
		return models.Message{}, apperr.NotFound("recipient", msgMessageNotFound)
	}
	if err != nil {
		s.logger.Error().Err(err).Int("message_id", id).Msg("load parent message")
		return models.Message{}, apperr.Internal("recipient", err)
	}
	if !msg.Involves(callerID) {
		return models.Message{}, apperr.NotFound("recipient", msgMessageNotFound)
	}
	return msg, nil
}
