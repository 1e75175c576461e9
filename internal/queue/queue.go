package queue

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"courier/internal/models"
	"courier/internal/security"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// FallbackQueue is a disk-backed staging area for writes a remote
// dependency refused. It is owned by a single process instance and is not
// a source of truth: items exist only until the flush worker confirms a
// successful replay. The whole log is held in memory and rewritten
// atomically (temp file + rename) on every mutation.
type FallbackQueue struct {
	mu                sync.Mutex
	path              string
	deadLetterPath    string
	maxReplayAttempts int
	items             []models.FallbackItem
	enc               *encryptor
	logger            *logrus.Logger
}

// New opens the queue at path, restoring any items persisted before a
// prior shutdown or crash in their original order.
func New(path string, maxReplayAttempts int, logger *logrus.Logger) (*FallbackQueue, error) {
	if err := security.ValidateStatePath(path); err != nil {
		return nil, fmt.Errorf("invalid queue path: %w", err)
	}

	enc, err := newEncryptor()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize queue encryption: %w", err)
	}

	q := &FallbackQueue{
		path:              path,
		deadLetterPath:    path + ".dead",
		maxReplayAttempts: maxReplayAttempts,
		enc:               enc,
		logger:            logger,
	}

	if err := q.load(); err != nil {
		return nil, err
	}

	if len(q.items) > 0 {
		logger.WithField("pending", len(q.items)).Info("Restored fallback queue from disk")
	}

	return q, nil
}

// Enqueue durably appends an item built from kind and payload. The
// payload must be JSON-serializable; the assigned item ID is returned.
func (q *FallbackQueue) Enqueue(kind models.FallbackKind, payload interface{}) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s payload: %w", kind, err)
	}

	item := models.FallbackItem{
		ID:        uuid.NewString(),
		Kind:      kind,
		Payload:   data,
		CreatedAt: time.Now().UTC(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, item)
	if err := q.persistLocked(); err != nil {
		// Keep the item in memory even when the disk write failed; the
		// next successful persist will carry it.
		q.logger.WithError(err).Error("Failed to persist fallback queue")
		return item.ID, err
	}

	return item.ID, nil
}

// Snapshot returns a copy of the current items so a flush pass never
// observes items enqueued while it runs.
func (q *FallbackQueue) Snapshot() []models.FallbackItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	snapshot := make([]models.FallbackItem, len(q.items))
	copy(snapshot, q.items)
	return snapshot
}

// Len returns the number of pending items.
func (q *FallbackQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Evict removes an item by identity after a confirmed replay. Evicting an
// unknown ID is a no-op: the item was already removed.
func (q *FallbackQueue) Evict(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.removeLocked(id) {
		return nil
	}

	return q.persistLocked()
}

// RecordFailure increments an item's replay attempt counter. When the
// counter reaches the configured maximum the item is quarantined to the
// dead-letter file and removed from the active queue, so one poison item
// cannot occupy the flush worker forever.
func (q *FallbackQueue) RecordFailure(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.items {
		if q.items[i].ID != id {
			continue
		}

		q.items[i].Attempts++
		if q.maxReplayAttempts > 0 && q.items[i].Attempts >= q.maxReplayAttempts {
			item := q.items[i]
			if err := q.quarantineLocked(item); err != nil {
				return err
			}
			q.removeLocked(id)
			q.logger.WithFields(logrus.Fields{
				"item_id":  item.ID,
				"kind":     item.Kind,
				"attempts": item.Attempts,
			}).Error("Fallback item exceeded replay attempts, moved to dead letter file")
		}

		return q.persistLocked()
	}

	return nil
}

func (q *FallbackQueue) removeLocked(id string) bool {
	for i := range q.items {
		if q.items[i].ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

func (q *FallbackQueue) quarantineLocked(item models.FallbackItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter item: %w", err)
	}

	f, err := os.OpenFile(q.deadLetterPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open dead letter file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append dead letter item: %w", err)
	}

	return nil
}

func (q *FallbackQueue) load() error {
	raw, err := os.ReadFile(q.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read queue file: %w", err)
	}
	if len(raw) == 0 {
		return nil
	}

	data, err := q.enc.open(raw)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, &q.items); err != nil {
		return fmt.Errorf("failed to parse queue file: %w", err)
	}

	return nil
}

func (q *FallbackQueue) persistLocked() error {
	data, err := json.Marshal(q.items)
	if err != nil {
		return fmt.Errorf("failed to marshal queue: %w", err)
	}

	sealed, err := q.enc.seal(data)
	if err != nil {
		return err
	}

	dir := filepath.Dir(q.path)
	tmp, err := os.CreateTemp(dir, ".queue-*")
	if err != nil {
		return fmt.Errorf("failed to create temp queue file: %w", err)
	}

	if _, err := tmp.Write(sealed); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write temp queue file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp queue file: %w", err)
	}

	if err := os.Rename(tmp.Name(), q.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace queue file: %w", err)
	}

	return nil
}
