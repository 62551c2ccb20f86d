package repositories

import (
	"context"
	"database/sql"
	"errors"
	"unicode/utf8"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"messenger/internal/models"
)

var (
	ErrMessageNotFound = errors.New("message not found")
	ErrInvalidContent  = errors.New("message content must be between 1 and 1024 characters")
)

const messageColumns = `m.id, m.sender_id, m.recipient_id, m.content, m.created_at, m.parent_message_id,
        s.username AS sender_username, s.first_name AS sender_first_name, s.last_name AS sender_last_name,
        r.username AS recipient_username, r.first_name AS recipient_first_name, r.last_name AS recipient_last_name`

const messageJoins = `JOIN users s ON s.id = m.sender_id
        JOIN users r ON r.id = m.recipient_id`

// MessageRepository is the message store.
type MessageRepository interface {
	Insert(ctx context.Context, senderID, recipientID int, content string, parentID *int) (models.Message, error)
	GetByID(ctx context.Context, id int) (models.Message, error)
	RootsFor(ctx context.Context, userID int, limit int) ([]models.Message, error)
	MembersOf(ctx context.Context, ids []int) ([]models.Message, error)
	ClearParentLinks(ctx context.Context, userID int) (int64, error)
	DeleteForParticipant(ctx context.Context, userID int) (int64, error)
}

// MessageRepo is a sqlx-backed MessageRepository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Insert stores a message in a single statement and returns it with participant names.
func (r *MessageRepo) Insert(ctx context.Context, senderID, recipientID int, content string, parentID *int) (models.Message, error) {
	if n := utf8.RuneCountInString(content); n == 0 || n > models.MaxContentLength {
		return models.Message{}, ErrInvalidContent
	}

	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `WITH m AS (
            INSERT INTO messages (sender_id, recipient_id, content, parent_message_id)
            VALUES ($1, $2, $3, $4)
            RETURNING id, sender_id, recipient_id, content, created_at, parent_message_id
        )
        SELECT `+messageColumns+` FROM m `+messageJoins,
		senderID, recipientID, content, parentID).StructScan(&msg)
	return msg, err
}

// GetByID retrieves a single message.
func (r *MessageRepo) GetByID(ctx context.Context, id int) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages m `+messageJoins+` WHERE m.id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// RootsFor returns the newest thread roots the user takes part in.
func (r *MessageRepo) RootsFor(ctx context.Context, userID int, limit int) ([]models.Message, error) {
	msgs := []models.Message{}
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages m `+messageJoins+`
        WHERE m.parent_message_id IS NULL
        AND (m.sender_id=$1 OR m.recipient_id=$1)
        ORDER BY m.created_at DESC, m.id DESC
        LIMIT $2`, userID, limit)
	return msgs, err
}

// MembersOf returns the given roots plus their direct replies, oldest first.
func (r *MessageRepo) MembersOf(ctx context.Context, ids []int) ([]models.Message, error) {
	msgs := []models.Message{}
	if len(ids) == 0 {
		return msgs, nil
	}
	id64s := make(pq.Int64Array, 0, len(ids))
	for _, id := range ids {
		id64s = append(id64s, int64(id))
	}
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages m `+messageJoins+`
        WHERE m.id = ANY($1) OR m.parent_message_id = ANY($1)
        ORDER BY m.created_at ASC, m.id ASC`, id64s)
	return msgs, err
}

// ClearParentLinks detaches every reply whose parent was sent or received by userID.
func (r *MessageRepo) ClearParentLinks(ctx context.Context, userID int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET parent_message_id = NULL
        WHERE parent_message_id IN (SELECT id FROM messages WHERE sender_id=$1 OR recipient_id=$1)`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteForParticipant deletes every message sent or received by userID.
func (r *MessageRepo) DeleteForParticipant(ctx context.Context, userID int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE sender_id=$1 OR recipient_id=$1`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
