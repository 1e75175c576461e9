package channel

import (
	"context"
	"fmt"
	"time"
)

// Client is the capability boundary to the messaging channel. The
// dispatch logic depends only on Send; implementations are swappable
// without touching it.
type Client interface {
	Send(ctx context.Context, destination string, content Content) (string, error)
}

// Content is the payload of one outbound send: plain text, or media
// bytes wrapped with their mime type and an optional caption.
type Content struct {
	Text  string
	Media *MediaContent
}

type MediaContent struct {
	Data        []byte
	ContentType string
	Filename    string
}

// SendError reports a delivery attempt the channel gateway rejected or
// could not complete. Dispatch counts it against the record's attempt
// budget.
type SendError struct {
	StatusCode int
	Message    string
}

func (e *SendError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("channel send failed (status %d): %s", e.StatusCode, e.Message)
	}
	return "channel send failed: " + e.Message
}

type sendMessageResponse struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

// MessageEvent is an inbound message pushed by the channel gateway over
// its event stream.
type MessageEvent struct {
	MessageID string    `json:"messageId"`
	ChatID    string    `json:"chatId"`
	From      string    `json:"from"`
	Body      string    `json:"body"`
	MediaData []byte    `json:"mediaData,omitempty"`
	MediaType string    `json:"mediaType,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageHandler consumes inbound message events. The listener and the
// dispatch loop interact only through the outbox store, never directly.
type MessageHandler interface {
	HandleMessage(ctx context.Context, event *MessageEvent) error
}
