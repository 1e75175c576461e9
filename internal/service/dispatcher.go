package service

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"sync"
	"time"

	"courier/internal/constants"
	"courier/internal/database"
	"courier/internal/media"
	"courier/internal/metrics"
	"courier/internal/models"
	"courier/internal/privacy"
	"courier/internal/tracing"
	"courier/pkg/channel"

	"github.com/sirupsen/logrus"
)

// DispatchWorker promotes approved outbox records to sent or failed. It
// polls the store on a fixed interval, claims records through the store's
// conditional write, and records every outcome. A store update that
// cannot be persisted is diverted to the fallback queue rather than lost.
type DispatchWorker struct {
	store   OutboxStore
	queue   Fallback
	channel channel.Client
	media   media.Fetcher
	cfg     models.DispatchConfig
	logger  *logrus.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

func NewDispatchWorker(store OutboxStore, queue Fallback, client channel.Client, fetcher media.Fetcher, cfg models.DispatchConfig, logger *logrus.Logger) *DispatchWorker {
	return &DispatchWorker{
		store:   store,
		queue:   queue,
		channel: client,
		media:   fetcher,
		cfg:     cfg,
		logger:  logger,
	}
}

// Start begins the background dispatch loop.
func (w *DispatchWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("dispatch worker is already running")
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	w.running = true

	w.wg.Add(1)
	go w.loop()

	w.logger.WithFields(logrus.Fields{
		"poll_interval_sec": w.cfg.PollIntervalSec,
		"batch_size":        w.cfg.BatchSize,
		"max_attempts":      w.cfg.MaxAttempts,
	}).Info("Dispatch worker started")

	return nil
}

// Stop cancels the loop and waits for the in-flight iteration to finish,
// so no record is left claimed without a reachable terminal update.
func (w *DispatchWorker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}

	w.cancel()
	w.wg.Wait()
	w.running = false
	w.logger.Info("Dispatch worker stopped")
}

// IsRunning returns whether the worker loop is currently active.
func (w *DispatchWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *DispatchWorker) loop() {
	defer w.wg.Done()

	ticker := time.NewTicker(time.Duration(w.cfg.PollIntervalSec) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.drain(w.ctx)
		}
	}
}

// drain runs dispatch passes back to back while full batches keep
// coming, so a deep backlog is not throttled to one batch per poll
// interval. The interval only paces empty and partial passes.
func (w *DispatchWorker) drain(ctx context.Context) {
	for ctx.Err() == nil {
		if w.RunOnce(ctx) < w.cfg.BatchSize {
			return
		}
	}
}

// RunOnce executes a single dispatch pass and returns how many records
// were processed. It is exported so tests can drive exactly one
// iteration.
func (w *DispatchWorker) RunOnce(ctx context.Context) int {
	ctx, span := tracing.StartSpan(ctx, "dispatch.run_once")
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.RecordTimer("dispatch_cycle", time.Since(start))
	}()

	records, err := w.store.ListClaimable(ctx, w.cfg.BatchSize, w.cfg.MaxAttempts)
	if err != nil {
		w.logger.WithError(err).Warn("Failed to list claimable messages")
		return 0
	}

	processed := 0
	for _, record := range records {
		if ctx.Err() != nil {
			break
		}
		if w.processRecord(ctx, record) {
			processed++
		}
	}

	return processed
}

// processRecord returns true when this worker won the claim and drove the
// record to an outcome.
func (w *DispatchWorker) processRecord(ctx context.Context, record *models.MessageRecord) bool {
	claimed, err := w.store.TryClaim(ctx, record.ID)
	if err != nil {
		// The record was not claimed, so nothing is stuck; the next pass
		// will see it again.
		w.logger.WithError(err).WithField("message_id", record.ID).Warn("Failed to claim message")
		return false
	}
	if !claimed {
		// Another worker won. Expected under horizontal scaling.
		metrics.IncrementCounter("dispatch_claims_lost", nil, "Claims lost to a concurrent worker")
		return false
	}

	// The claim is held from here on. Outcome writes run detached from
	// loop cancellation so a stop signal mid-send cannot strand the
	// record in flight.
	outcomeCtx, cancelOutcome := context.WithTimeout(
		context.WithoutCancel(ctx), constants.OutcomeWriteTimeoutSec*time.Second)
	defer cancelOutcome()

	remoteID, sendErr := w.send(ctx, record)
	if sendErr == nil {
		w.recordSent(outcomeCtx, record, remoteID)
		return true
	}

	w.recordFailedAttempt(outcomeCtx, record, sendErr)
	return true
}

// send resolves the record's content and invokes the channel adapter. A
// panic anywhere inside is converted to an error so the caller always
// reaches a markSent/markFailedAttempt.
func (w *DispatchWorker) send(ctx context.Context, record *models.MessageRecord) (remoteID string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during send: %v", r)
		}
	}()

	content := channel.Content{Text: record.Body}
	if record.MediaURL != "" {
		data, contentType, fetchErr := w.media.Fetch(ctx, record.MediaURL)
		if fetchErr != nil {
			return "", fmt.Errorf("failed to resolve media: %w", fetchErr)
		}
		content.Media = &channel.MediaContent{
			Data:        data,
			ContentType: contentType,
			Filename:    mediaFilename(record.MediaURL),
		}
	}

	return w.channel.Send(ctx, record.Destination, content)
}

func (w *DispatchWorker) recordSent(ctx context.Context, record *models.MessageRecord, remoteID string) {
	metrics.IncrementCounter("dispatch_sent", nil, "Messages acknowledged by the channel")

	if err := w.store.MarkSent(ctx, record.ID, remoteID); err != nil {
		// The channel accepted the message; the outcome must not be lost.
		w.divertStatusUpdate(models.StatusUpdatePayload{
			MessageID:       record.ID,
			Status:          models.MessageStatusSent,
			AttemptCount:    record.AttemptCount,
			RemoteMessageID: &remoteID,
		}, err)
	}

	w.audit(ctx, record.ID, "message.sent", remoteID)

	w.logger.WithFields(logrus.Fields{
		"message_id":  record.ID,
		"destination": privacy.MaskDestination(record.Destination),
		"remote_id":   remoteID,
	}).Info("Message sent")
}

func (w *DispatchWorker) recordFailedAttempt(ctx context.Context, record *models.MessageRecord, sendErr error) {
	attempts := record.AttemptCount + 1
	exhausted := attempts >= w.cfg.MaxAttempts

	metrics.IncrementCounter("dispatch_send_failures", nil, "Send attempts the channel rejected")

	w.logger.WithError(sendErr).WithFields(logrus.Fields{
		"message_id":  record.ID,
		"destination": privacy.MaskDestination(record.Destination),
		"attempt":     attempts,
		"exhausted":   exhausted,
	}).Warn("Send attempt failed")

	if err := w.store.MarkFailedAttempt(ctx, record.ID, attempts, w.cfg.MaxAttempts); err != nil {
		status := models.MessageStatusApproved
		if exhausted {
			status = models.MessageStatusFailed
		}
		w.divertStatusUpdate(models.StatusUpdatePayload{
			MessageID:    record.ID,
			Status:       status,
			AttemptCount: attempts,
		}, err)
	}

	if exhausted {
		metrics.IncrementCounter("dispatch_failed", nil, "Messages that exhausted their attempt budget")
		w.audit(ctx, record.ID, "message.failed", sendErr.Error())
	}
}

// divertStatusUpdate parks a state transition the store refused on the
// fallback queue so the flush worker can replay it. Permanent store
// errors are not parked; replaying them would fail identically.
func (w *DispatchWorker) divertStatusUpdate(update models.StatusUpdatePayload, cause error) {
	if !database.IsTransient(cause) {
		w.logger.WithError(cause).WithFields(logrus.Fields{
			"message_id": update.MessageID,
			"status":     update.Status,
		}).Error("Store rejected status update permanently, dropping")
		return
	}

	w.logger.WithError(cause).WithFields(logrus.Fields{
		"message_id": update.MessageID,
		"status":     update.Status,
	}).Warn("Store update failed, diverting to fallback queue")

	if _, err := w.queue.Enqueue(models.FallbackKindStatusUpdate, update); err != nil {
		w.logger.WithError(err).WithField("message_id", update.MessageID).
			Error("Failed to enqueue fallback status update")
	}
	metrics.IncrementCounter("fallback_diverted", map[string]string{"kind": "status-update"},
		"Writes diverted to the fallback queue")
}

func (w *DispatchWorker) audit(ctx context.Context, messageID int64, event, detail string) {
	entry := models.AuditPayload{MessageID: &messageID, Event: event, Detail: detail}
	if err := w.store.InsertAudit(ctx, entry); err != nil {
		if _, qErr := w.queue.Enqueue(models.FallbackKindAudit, entry); qErr != nil {
			w.logger.WithError(qErr).WithField("message_id", messageID).
				Error("Failed to enqueue fallback audit entry")
		}
		metrics.IncrementCounter("fallback_diverted", map[string]string{"kind": "audit"},
			"Writes diverted to the fallback queue")
	}
}

func mediaFilename(mediaURL string) string {
	parsed, err := url.Parse(mediaURL)
	if err != nil || parsed.Path == "" {
		return "attachment"
	}
	name := path.Base(parsed.Path)
	if name == "." || name == "/" {
		return "attachment"
	}
	return name
}
