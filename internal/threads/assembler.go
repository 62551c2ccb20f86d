package threads

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"messenger/internal/models"
)

// DefaultWindow is the number of thread roots returned when no limit is given.
const DefaultWindow = 20

// Store is the subset of the message store the assembler reads from.
type Store interface {
	RootsFor(ctx context.Context, userID int, limit int) ([]models.Message, error)
	MembersOf(ctx context.Context, ids []int) ([]models.Message, error)
}

type Assembler struct {
	store  Store
	loc    *time.Location
	window int
}

func NewAssembler(store Store, loc *time.Location, window int) *Assembler {
	if loc == nil {
		loc = time.UTC
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Assembler{store: store, loc: loc, window: window}
}

// Latest returns the viewer's most recent threads, newest root first, each
// with its messages oldest first.
func (a *Assembler) Latest(ctx context.Context, viewerID, limit int) ([]models.Thread, error) {
	if limit <= 0 {
		limit = a.window
	}

	ctx, span := otel.Tracer("messenger/threads").Start(ctx, "threads.Latest")
	defer span.End()
	span.SetAttributes(attribute.Int("viewer.id", viewerID), attribute.Int("threads.limit", limit))

	roots, err := a.store.RootsFor(ctx, viewerID, limit)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("load thread roots: %w", err)
	}
	if len(roots) == 0 {
		return []models.Thread{}, nil
	}

	ids := make([]int, len(roots))
	for i, r := range roots {
		ids[i] = r.ID
	}
	members, err := a.store.MembersOf(ctx, ids)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("load thread members: %w", err)
	}

	out := Group(roots, members, viewerID, a.loc)
	span.SetAttributes(attribute.Int("threads.count", len(out)), attribute.Int("messages.count", len(members)))
	return out, nil
}

// Group buckets members under their thread key and emits one Thread per root,
// in root order. Members keep their incoming order inside a thread. Members
// whose key is not one of the roots are dropped.
func Group(roots, members []models.Message, viewerID int, loc *time.Location) []models.Thread {
	if loc == nil {
		loc = time.UTC
	}

	buckets := make(map[int][]models.ThreadMessage, len(roots))
	for _, r := range roots {
		buckets[r.ID] = []models.ThreadMessage{}
	}
	for _, m := range members {
		key := m.ThreadKey()
		bucket, ok := buckets[key]
		if !ok {
			continue
		}
		buckets[key] = append(bucket, project(m, viewerID, loc))
	}

	out := make([]models.Thread, 0, len(roots))
	for _, r := range roots {
		out = append(out, models.Thread{ThreadID: r.ID, Messages: buckets[r.ID]})
	}
	return out
}

func project(m models.Message, viewerID int, loc *time.Location) models.ThreadMessage {
	return models.ThreadMessage{
		ID:            m.ID,
		SenderName:    m.SenderName(),
		RecipientName: m.RecipientName(),
		Content:       m.Content,
		Timestamp:     m.CreatedAt.In(loc),
		IsSender:      m.SenderID == viewerID,
	}
}
