package models

import (
	"time"
)

type MessageStatus string

const (
	MessageStatusReceived MessageStatus = "received"
	MessageStatusApproved MessageStatus = "approved"
	MessageStatusSent     MessageStatus = "sent"
	MessageStatusFailed   MessageStatus = "failed"
)

// IsTerminal reports whether no further transition is permitted from the status.
func (s MessageStatus) IsTerminal() bool {
	return s == MessageStatusSent || s == MessageStatusFailed
}

type Sender string

const (
	SenderAdmin   Sender = "admin"
	SenderChannel Sender = "channel"
)

// MessageRecord is the unit of outbound work in the outbox table.
// Records become claimable only in the approved state; sent and failed
// are terminal.
type MessageRecord struct {
	ID              int64         `db:"id" json:"id"`
	ChatID          *string       `db:"chat_id" json:"chatId,omitempty"`
	Sender          Sender        `db:"sender" json:"sender"`
	Destination     string        `db:"destination" json:"destination"`
	Body            string        `db:"body" json:"body,omitempty"`
	MediaURL        string        `db:"media_url" json:"mediaUrl,omitempty"`
	Status          MessageStatus `db:"status" json:"status"`
	InProgress      bool          `db:"in_progress" json:"inProgress"`
	AttemptCount    int           `db:"attempt_count" json:"attemptCount"`
	RemoteMessageID *string       `db:"remote_message_id" json:"remoteMessageId,omitempty"`
	CreatedAt       time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updatedAt"`
}

// AuditEntry records a dispatch lifecycle event for external readers.
type AuditEntry struct {
	ID        int64     `db:"id" json:"id"`
	MessageID *int64    `db:"message_id" json:"messageId,omitempty"`
	Event     string    `db:"event" json:"event"`
	Detail    string    `db:"detail" json:"detail,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// MessageFilter narrows ListMessages results for the read-only surface.
type MessageFilter struct {
	Status MessageStatus
	Limit  int
}
