package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"courier/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObjectStore struct {
	mu      sync.Mutex
	uploads map[string][]byte
	url     string
	err     error
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{uploads: map[string][]byte{}, url: "https://store.example/bucket/key"}
}

func (s *fakeObjectStore) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.uploads[key] = data
	return s.url, nil
}

func TestFlushReplaysStatusUpdate(t *testing.T) {
	store := newFakeStore()
	queue := newFakeQueue()

	remoteID := "remote-9"
	_, err := queue.Enqueue(models.FallbackKindStatusUpdate, models.StatusUpdatePayload{
		MessageID:       9,
		Status:          models.MessageStatusSent,
		AttemptCount:    2,
		RemoteMessageID: &remoteID,
	})
	require.NoError(t, err)

	w := NewFlushWorker(store, newFakeObjectStore(), queue, time.Second, testLogger())

	flushed := w.RunOnce(context.Background())
	assert.Equal(t, 1, flushed)
	assert.Zero(t, queue.Len())

	require.Len(t, store.statusUpdates, 1)
	assert.Equal(t, int64(9), store.statusUpdates[0].MessageID)
	assert.Equal(t, models.MessageStatusSent, store.statusUpdates[0].Status)
}

func TestFlushReplaysAudit(t *testing.T) {
	store := newFakeStore()
	queue := newFakeQueue()

	_, err := queue.Enqueue(models.FallbackKindAudit, models.AuditPayload{Event: "message.failed"})
	require.NoError(t, err)

	w := NewFlushWorker(store, newFakeObjectStore(), queue, time.Second, testLogger())

	assert.Equal(t, 1, w.RunOnce(context.Background()))
	require.Len(t, store.audits, 1)
	assert.Equal(t, "message.failed", store.audits[0].Event)
}

func TestFlushReplaysIncomingMessage(t *testing.T) {
	store := newFakeStore()
	queue := newFakeQueue()

	chatID := "room-1"
	_, err := queue.Enqueue(models.FallbackKindIncomingMessage, models.IncomingMessagePayload{
		ChatID:      &chatID,
		Sender:      models.SenderChannel,
		Destination: "15551234567",
		Body:        "inbound text",
	})
	require.NoError(t, err)

	w := NewFlushWorker(store, newFakeObjectStore(), queue, time.Second, testLogger())

	assert.Equal(t, 1, w.RunOnce(context.Background()))
	require.Len(t, store.inserted, 1)
	assert.Equal(t, models.MessageStatusReceived, store.inserted[0].Status)
	assert.Equal(t, models.SenderChannel, store.inserted[0].Sender)
	assert.Equal(t, "inbound text", store.inserted[0].Body)
}

func TestFlushReplaysMediaUpload(t *testing.T) {
	queue := newFakeQueue()
	objects := newFakeObjectStore()

	_, err := queue.Enqueue(models.FallbackKindMediaUpload, models.MediaUploadPayload{
		Key:         "incoming/msg-1",
		ContentType: "image/png",
		Data:        []byte{1, 2, 3},
	})
	require.NoError(t, err)

	w := NewFlushWorker(newFakeStore(), objects, queue, time.Second, testLogger())

	assert.Equal(t, 1, w.RunOnce(context.Background()))
	assert.Equal(t, []byte{1, 2, 3}, objects.uploads["incoming/msg-1"])
}

func TestFlushKeepsFailedItems(t *testing.T) {
	store := newFakeStore()
	store.applyErr = errors.New("database is locked")
	queue := newFakeQueue()

	id, err := queue.Enqueue(models.FallbackKindStatusUpdate, models.StatusUpdatePayload{
		MessageID: 1,
		Status:    models.MessageStatusSent,
	})
	require.NoError(t, err)

	w := NewFlushWorker(store, newFakeObjectStore(), queue, time.Second, testLogger())

	assert.Zero(t, w.RunOnce(context.Background()))
	assert.Equal(t, 1, queue.Len())
	assert.Equal(t, 1, queue.failures[id])

	// Once the store recovers the item flushes and is evicted.
	store.applyErr = nil
	assert.Equal(t, 1, w.RunOnce(context.Background()))
	assert.Zero(t, queue.Len())
	assert.Contains(t, queue.evicted, id)
}

func TestFlushContinuesPastFailures(t *testing.T) {
	store := newFakeStore()
	store.applyErr = errors.New("database is locked")
	queue := newFakeQueue()

	_, err := queue.Enqueue(models.FallbackKindStatusUpdate, models.StatusUpdatePayload{MessageID: 1})
	require.NoError(t, err)
	_, err = queue.Enqueue(models.FallbackKindAudit, models.AuditPayload{Event: "message.sent"})
	require.NoError(t, err)

	w := NewFlushWorker(store, newFakeObjectStore(), queue, time.Second, testLogger())

	// The failing status update does not block the audit entry behind it.
	assert.Equal(t, 1, w.RunOnce(context.Background()))
	assert.Equal(t, 1, queue.Len())
	require.Len(t, store.audits, 1)
}

func TestFlushUnknownKindCountsAsFailure(t *testing.T) {
	queue := newFakeQueue()
	id, err := queue.Enqueue(models.FallbackKind("bogus"), map[string]string{"x": "y"})
	require.NoError(t, err)

	w := NewFlushWorker(newFakeStore(), newFakeObjectStore(), queue, time.Second, testLogger())

	assert.Zero(t, w.RunOnce(context.Background()))
	assert.Equal(t, 1, queue.failures[id])
}

func TestFlushEmptyQueueIsNoOp(t *testing.T) {
	w := NewFlushWorker(newFakeStore(), newFakeObjectStore(), newFakeQueue(), time.Second, testLogger())
	assert.Zero(t, w.RunOnce(context.Background()))
}

func TestFlushWorkerStartStop(t *testing.T) {
	w := NewFlushWorker(newFakeStore(), newFakeObjectStore(), newFakeQueue(), time.Second, testLogger())

	require.NoError(t, w.Start(context.Background()))
	assert.Error(t, w.Start(context.Background()))

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop in time")
	}
}
