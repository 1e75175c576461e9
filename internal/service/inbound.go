package service

import (
	"context"
	"fmt"

	"courier/internal/database"
	"courier/internal/metrics"
	"courier/internal/models"
	"courier/internal/privacy"
	"courier/internal/validation"
	"courier/pkg/channel"
	"courier/pkg/objectstore"

	"github.com/sirupsen/logrus"
)

// InboundHandler persists messages received from the channel. It is
// invoked by the channel event listener and touches the dispatch path
// only through the outbox store. A store outage never loses the message:
// the write is parked on the fallback queue instead.
type InboundHandler struct {
	store   OutboxStore
	queue   Fallback
	objects objectstore.Client
	logger  *logrus.Logger
}

func NewInboundHandler(store OutboxStore, queue Fallback, objects objectstore.Client, logger *logrus.Logger) *InboundHandler {
	return &InboundHandler{
		store:   store,
		queue:   queue,
		objects: objects,
		logger:  logger,
	}
}

// HandleMessage implements channel.MessageHandler.
func (h *InboundHandler) HandleMessage(ctx context.Context, event *channel.MessageEvent) error {
	destination, err := validation.NormalizeDestination(event.From)
	if err != nil {
		return fmt.Errorf("invalid inbound sender address: %w", err)
	}

	mediaURL := ""
	if len(event.MediaData) > 0 {
		mediaURL = h.uploadMedia(ctx, event)
	}

	var chatID *string
	if event.ChatID != "" {
		chatID = &event.ChatID
	}

	record := &models.MessageRecord{
		ChatID:      chatID,
		Sender:      models.SenderChannel,
		Destination: destination,
		Body:        event.Body,
		MediaURL:    mediaURL,
		Status:      models.MessageStatusReceived,
	}

	if err := h.store.InsertMessage(ctx, record); err != nil {
		if !database.IsTransient(err) {
			return fmt.Errorf("store rejected inbound message: %w", err)
		}

		h.logger.WithError(err).WithFields(logrus.Fields{
			"remote_id": event.MessageID,
			"from":      privacy.MaskDestination(destination),
		}).Warn("Failed to persist inbound message, diverting to fallback queue")

		payload := models.IncomingMessagePayload{
			ChatID:      chatID,
			Sender:      models.SenderChannel,
			Destination: destination,
			Body:        event.Body,
			MediaURL:    mediaURL,
		}
		if _, qErr := h.queue.Enqueue(models.FallbackKindIncomingMessage, payload); qErr != nil {
			return fmt.Errorf("failed to enqueue inbound message fallback: %w", qErr)
		}
		metrics.IncrementCounter("fallback_diverted", map[string]string{"kind": "incoming-message"},
			"Writes diverted to the fallback queue")
		return nil
	}

	metrics.IncrementCounter("inbound_received", nil, "Inbound messages persisted")
	return nil
}

// uploadMedia stores the event's attachment bytes and returns their URL,
// or an empty URL when the upload had to be parked on the fallback queue.
func (h *InboundHandler) uploadMedia(ctx context.Context, event *channel.MessageEvent) string {
	contentType := event.MediaType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	key := "incoming/" + event.MessageID

	url, err := h.objects.Upload(ctx, key, event.MediaData, contentType)
	if err == nil {
		return url
	}

	h.logger.WithError(err).WithField("remote_id", event.MessageID).
		Warn("Failed to upload inbound media, diverting to fallback queue")

	payload := models.MediaUploadPayload{
		Key:         key,
		ContentType: contentType,
		Data:        event.MediaData,
	}
	if _, qErr := h.queue.Enqueue(models.FallbackKindMediaUpload, payload); qErr != nil {
		h.logger.WithError(qErr).WithField("remote_id", event.MessageID).
			Error("Failed to enqueue media upload fallback")
	}
	metrics.IncrementCounter("fallback_diverted", map[string]string{"kind": "media-upload"},
		"Writes diverted to the fallback queue")
	return ""
}
