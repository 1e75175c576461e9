package models

import (
	"encoding/json"
	"time"
)

type FallbackKind string

const (
	FallbackKindStatusUpdate    FallbackKind = "status-update"
	FallbackKindAudit           FallbackKind = "audit"
	FallbackKindIncomingMessage FallbackKind = "incoming-message"
	FallbackKindMediaUpload     FallbackKind = "media-upload"
)

// FallbackItem is a write that could not reach a remote dependency and is
// parked on local disk until the flush worker replays it. Items are never
// mutated in place; eviction removes an item by ID after a confirmed replay.
type FallbackItem struct {
	ID        string          `json:"id"`
	Kind      FallbackKind    `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	CreatedAt time.Time       `json:"createdAt"`
}

// StatusUpdatePayload carries a message state transition that failed to
// persist. AttemptCount is applied as a floor so replays never move a
// record's attempt count backwards.
type StatusUpdatePayload struct {
	MessageID       int64         `json:"messageId"`
	Status          MessageStatus `json:"status"`
	AttemptCount    int           `json:"attemptCount"`
	RemoteMessageID *string       `json:"remoteMessageId,omitempty"`
}

type AuditPayload struct {
	MessageID *int64 `json:"messageId,omitempty"`
	Event     string `json:"event"`
	Detail    string `json:"detail,omitempty"`
}

type IncomingMessagePayload struct {
	ChatID      *string `json:"chatId,omitempty"`
	Sender      Sender  `json:"sender"`
	Destination string  `json:"destination"`
	Body        string  `json:"body,omitempty"`
	MediaURL    string  `json:"mediaUrl,omitempty"`
}

type MediaUploadPayload struct {
	Key         string `json:"key"`
	ContentType string `json:"contentType"`
	Data        []byte `json:"data"`
}
