package queue

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"courier/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func setupQueue(t *testing.T) (*FallbackQueue, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "queue.json")
	q, err := New(path, 20, testLogger())
	require.NoError(t, err)

	return q, path
}

func TestEnqueueAndSnapshot(t *testing.T) {
	q, _ := setupQueue(t)

	id, err := q.Enqueue(models.FallbackKindAudit, models.AuditPayload{Event: "message.failed"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	items := q.Snapshot()
	require.Len(t, items, 1)
	assert.Equal(t, id, items[0].ID)
	assert.Equal(t, models.FallbackKindAudit, items[0].Kind)
	assert.Zero(t, items[0].Attempts)
	assert.False(t, items[0].CreatedAt.IsZero())

	var payload models.AuditPayload
	require.NoError(t, json.Unmarshal(items[0].Payload, &payload))
	assert.Equal(t, "message.failed", payload.Event)
}

func TestSnapshotIsACopy(t *testing.T) {
	q, _ := setupQueue(t)

	_, err := q.Enqueue(models.FallbackKindAudit, models.AuditPayload{Event: "a"})
	require.NoError(t, err)

	snapshot := q.Snapshot()
	_, err = q.Enqueue(models.FallbackKindAudit, models.AuditPayload{Event: "b"})
	require.NoError(t, err)

	assert.Len(t, snapshot, 1)
	assert.Equal(t, 2, q.Len())
}

func TestRestartRestoresItems(t *testing.T) {
	q, path := setupQueue(t)

	remoteID := "remote-1"
	firstID, err := q.Enqueue(models.FallbackKindStatusUpdate, models.StatusUpdatePayload{
		MessageID:       42,
		Status:          models.MessageStatusSent,
		AttemptCount:    1,
		RemoteMessageID: &remoteID,
	})
	require.NoError(t, err)
	secondID, err := q.Enqueue(models.FallbackKindAudit, models.AuditPayload{Event: "message.failed"})
	require.NoError(t, err)

	// A new instance over the same file sees the same items in order.
	restored, err := New(path, 20, testLogger())
	require.NoError(t, err)

	items := restored.Snapshot()
	require.Len(t, items, 2)
	assert.Equal(t, firstID, items[0].ID)
	assert.Equal(t, secondID, items[1].ID)

	var payload models.StatusUpdatePayload
	require.NoError(t, json.Unmarshal(items[0].Payload, &payload))
	assert.Equal(t, int64(42), payload.MessageID)
	assert.Equal(t, models.MessageStatusSent, payload.Status)
	require.NotNil(t, payload.RemoteMessageID)
	assert.Equal(t, remoteID, *payload.RemoteMessageID)
}

func TestEvict(t *testing.T) {
	q, path := setupQueue(t)

	first, err := q.Enqueue(models.FallbackKindAudit, models.AuditPayload{Event: "a"})
	require.NoError(t, err)
	second, err := q.Enqueue(models.FallbackKindAudit, models.AuditPayload{Event: "b"})
	require.NoError(t, err)

	require.NoError(t, q.Evict(first))
	assert.Equal(t, 1, q.Len())

	// Evicting the same ID again is a no-op.
	require.NoError(t, q.Evict(first))
	assert.Equal(t, 1, q.Len())

	// The removal survives a restart.
	restored, err := New(path, 20, testLogger())
	require.NoError(t, err)
	items := restored.Snapshot()
	require.Len(t, items, 1)
	assert.Equal(t, second, items[0].ID)
}

func TestRecordFailure(t *testing.T) {
	q, _ := setupQueue(t)

	id, err := q.Enqueue(models.FallbackKindAudit, models.AuditPayload{Event: "a"})
	require.NoError(t, err)

	require.NoError(t, q.RecordFailure(id))
	require.NoError(t, q.RecordFailure(id))

	items := q.Snapshot()
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Attempts)

	// Unknown IDs are ignored.
	require.NoError(t, q.RecordFailure("no-such-id"))
}

func TestRecordFailureQuarantinesPoisonItem(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.json")
	q, err := New(path, 3, testLogger())
	require.NoError(t, err)

	id, err := q.Enqueue(models.FallbackKindStatusUpdate, models.StatusUpdatePayload{
		MessageID: 7,
		Status:    models.MessageStatusSent,
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, q.RecordFailure(id))
	}

	// The poison item has left the active queue...
	assert.Zero(t, q.Len())

	// ...and landed in the dead letter file as one JSON line.
	f, err := os.Open(path + ".dead")
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	require.True(t, scanner.Scan())

	var item models.FallbackItem
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &item))
	assert.Equal(t, id, item.ID)
	assert.Equal(t, models.FallbackKindStatusUpdate, item.Kind)
	assert.Equal(t, 3, item.Attempts)

	assert.False(t, scanner.Scan())
}

func TestEncryptedQueueRoundTrip(t *testing.T) {
	t.Setenv("COURIER_QUEUE_ENCRYPTION_SECRET", "0123456789abcdef0123456789abcdef")

	path := filepath.Join(t.TempDir(), "queue.json")
	q, err := New(path, 20, testLogger())
	require.NoError(t, err)

	id, err := q.Enqueue(models.FallbackKindAudit, models.AuditPayload{Event: "secret-event"})
	require.NoError(t, err)

	// The on-disk form does not leak the payload.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret-event")

	restored, err := New(path, 20, testLogger())
	require.NoError(t, err)
	items := restored.Snapshot()
	require.Len(t, items, 1)
	assert.Equal(t, id, items[0].ID)
}

func TestNewRejectsShortEncryptionSecret(t *testing.T) {
	t.Setenv("COURIER_QUEUE_ENCRYPTION_SECRET", "too-short")

	_, err := New(filepath.Join(t.TempDir(), "queue.json"), 20, testLogger())
	assert.Error(t, err)
}

func TestNewRejectsTraversalPath(t *testing.T) {
	_, err := New("../queue.json", 20, testLogger())
	assert.Error(t, err)
}
