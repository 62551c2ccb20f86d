package models

import "time"

// Thread is a root message and its replies as served to a participant.
type Thread struct {
	ThreadID int             `json:"thread_id"`
	Messages []ThreadMessage `json:"messages"`
}

// ThreadMessage is a single message inside a Thread.
type ThreadMessage struct {
	ID            int       `json:"id"`
	SenderName    string    `json:"sender_name"`
	RecipientName string    `json:"recipient_name"`
	Content       string    `json:"content"`
	Timestamp     time.Time `json:"timestamp"`
	IsSender      bool      `json:"is_sender"`
}

// ReplyPreview describes the message being answered on the compose page.
type ReplyPreview struct {
	MessageID       int
	SenderUsername  string
	SenderFirstName string
	SenderLastName  string
	Content         string
	Timestamp       time.Time
	// Counterpart is the username a reply goes to: the other participant.
	Counterpart string
}
