package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"courier/internal/metrics"
	"courier/internal/models"
	"courier/internal/tracing"
	"courier/pkg/objectstore"

	"github.com/sirupsen/logrus"
)

// FlushWorker replays fallback queue items against the remote
// dependencies until they succeed, then evicts them. Ordering across
// kinds is best-effort; each item's payload is self-contained.
type FlushWorker struct {
	store    OutboxStore
	objects  objectstore.Client
	queue    Fallback
	interval time.Duration
	logger   *logrus.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

func NewFlushWorker(store OutboxStore, objects objectstore.Client, queue Fallback, interval time.Duration, logger *logrus.Logger) *FlushWorker {
	return &FlushWorker{
		store:    store,
		objects:  objects,
		queue:    queue,
		interval: interval,
		logger:   logger,
	}
}

// Start begins the background flush loop.
func (w *FlushWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("flush worker is already running")
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	w.running = true

	w.wg.Add(1)
	go w.loop()

	w.logger.WithField("flush_interval", w.interval).Info("Flush worker started")
	return nil
}

// Stop cancels the loop and waits for the in-flight pass to finish.
func (w *FlushWorker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}

	w.cancel()
	w.wg.Wait()
	w.running = false
	w.logger.Info("Flush worker stopped")
}

func (w *FlushWorker) loop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.RunOnce(w.ctx)
		}
	}
}

// RunOnce executes a single flush pass over a snapshot of the queue and
// returns how many items were replayed successfully. Items enqueued
// while the pass runs are left for the next cycle.
func (w *FlushWorker) RunOnce(ctx context.Context) int {
	items := w.queue.Snapshot()
	metrics.SetGauge("fallback_queue_depth", float64(len(items)), nil, "Pending fallback queue items")
	if len(items) == 0 {
		return 0
	}

	ctx, span := tracing.StartSpan(ctx, "flush.run_once")
	defer span.End()

	flushed := 0
	for _, item := range items {
		if ctx.Err() != nil {
			break
		}

		if err := w.replay(ctx, item); err != nil {
			w.logger.WithError(err).WithFields(logrus.Fields{
				"item_id":  item.ID,
				"kind":     item.Kind,
				"attempts": item.Attempts + 1,
			}).Warn("Fallback replay failed, leaving item for next cycle")
			if err := w.queue.RecordFailure(item.ID); err != nil {
				w.logger.WithError(err).WithField("item_id", item.ID).
					Error("Failed to record fallback replay failure")
			}
			continue
		}

		if err := w.queue.Evict(item.ID); err != nil {
			w.logger.WithError(err).WithField("item_id", item.ID).
				Error("Failed to evict replayed fallback item")
			continue
		}

		flushed++
		metrics.IncrementCounter("fallback_flushed", map[string]string{"kind": string(item.Kind)},
			"Fallback items replayed and evicted")
	}

	if flushed > 0 {
		w.logger.WithField("flushed", flushed).Info("Flushed fallback queue items")
	}

	metrics.SetGauge("fallback_queue_depth", float64(w.queue.Len()), nil, "Pending fallback queue items")
	return flushed
}

func (w *FlushWorker) replay(ctx context.Context, item models.FallbackItem) error {
	switch item.Kind {
	case models.FallbackKindStatusUpdate:
		var payload models.StatusUpdatePayload
		if err := json.Unmarshal(item.Payload, &payload); err != nil {
			return fmt.Errorf("failed to parse status update payload: %w", err)
		}
		return w.store.ApplyStatusUpdate(ctx, payload)

	case models.FallbackKindAudit:
		var payload models.AuditPayload
		if err := json.Unmarshal(item.Payload, &payload); err != nil {
			return fmt.Errorf("failed to parse audit payload: %w", err)
		}
		return w.store.InsertAudit(ctx, payload)

	case models.FallbackKindIncomingMessage:
		var payload models.IncomingMessagePayload
		if err := json.Unmarshal(item.Payload, &payload); err != nil {
			return fmt.Errorf("failed to parse incoming message payload: %w", err)
		}
		record := &models.MessageRecord{
			ChatID:      payload.ChatID,
			Sender:      payload.Sender,
			Destination: payload.Destination,
			Body:        payload.Body,
			MediaURL:    payload.MediaURL,
			Status:      models.MessageStatusReceived,
		}
		return w.store.InsertMessage(ctx, record)

	case models.FallbackKindMediaUpload:
		var payload models.MediaUploadPayload
		if err := json.Unmarshal(item.Payload, &payload); err != nil {
			return fmt.Errorf("failed to parse media upload payload: %w", err)
		}
		_, err := w.objects.Upload(ctx, payload.Key, payload.Data, payload.ContentType)
		return err

	default:
		return fmt.Errorf("unknown fallback kind %q", item.Kind)
	}
}
