package models

import "time"

// MaxContentLength is the upper bound on message content, in characters.
const MaxContentLength = 1024

// Message is a direct message. A nil ParentMessageID marks a thread root.
type Message struct {
	ID              int       `db:"id" json:"id"`
	SenderID        int       `db:"sender_id" json:"sender_id"`
	RecipientID     int       `db:"recipient_id" json:"recipient_id"`
	Content         string    `db:"content" json:"content"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	ParentMessageID *int      `db:"parent_message_id" json:"parent_message_id,omitempty"`

	// Joined from users on every read.
	SenderUsername     string `db:"sender_username" json:"-"`
	SenderFirstName    string `db:"sender_first_name" json:"-"`
	SenderLastName     string `db:"sender_last_name" json:"-"`
	RecipientUsername  string `db:"recipient_username" json:"-"`
	RecipientFirstName string `db:"recipient_first_name" json:"-"`
	RecipientLastName  string `db:"recipient_last_name" json:"-"`
}

// IsRoot reports whether the message heads a thread.
func (m Message) IsRoot() bool {
	return m.ParentMessageID == nil
}

// ThreadKey is the id the message is grouped under: its parent if it has one,
// itself otherwise.
func (m Message) ThreadKey() int {
	if m.ParentMessageID != nil {
		return *m.ParentMessageID
	}
	return m.ID
}

// Involves reports whether userID is the sender or the recipient.
func (m Message) Involves(userID int) bool {
	return m.SenderID == userID || m.RecipientID == userID
}

// SenderName renders the sender as "Last, First".
func (m Message) SenderName() string {
	return FullName(m.SenderFirstName, m.SenderLastName)
}

// RecipientName renders the recipient as "Last, First".
func (m Message) RecipientName() string {
	return FullName(m.RecipientFirstName, m.RecipientLastName)
}
