package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"courier/internal/models"
)

// fakeStore is an in-memory OutboxStore with injectable failures.
type fakeStore struct {
	mu sync.Mutex

	claimable []*models.MessageRecord
	listErr   error

	claimWinners map[int64]bool
	claimErr     error

	inserted  []*models.MessageRecord
	insertErr error

	sent        map[int64]string
	markSentErr error

	failedAttempts map[int64]int
	markFailedErr  error

	statusUpdates []models.StatusUpdatePayload
	applyErr      error

	audits   []models.AuditPayload
	auditErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		claimWinners:   map[int64]bool{},
		sent:           map[int64]string{},
		failedAttempts: map[int64]int{},
	}
}

func (s *fakeStore) InsertMessage(ctx context.Context, record *models.MessageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	record.ID = int64(len(s.inserted) + 1)
	s.inserted = append(s.inserted, record)
	return nil
}

func (s *fakeStore) ListClaimable(ctx context.Context, limit, maxAttempts int) ([]*models.MessageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var records []*models.MessageRecord
	for _, record := range s.claimable {
		if _, done := s.sent[record.ID]; done {
			continue
		}
		if s.failedAttempts[record.ID] >= maxAttempts {
			continue
		}
		if len(records) == limit {
			break
		}
		records = append(records, record)
	}
	return records, nil
}

func (s *fakeStore) TryClaim(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimErr != nil {
		return false, s.claimErr
	}
	won, ok := s.claimWinners[id]
	if !ok {
		return true, nil
	}
	return won, nil
}

func (s *fakeStore) MarkSent(ctx context.Context, id int64, remoteMessageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.markSentErr != nil {
		return s.markSentErr
	}
	s.sent[id] = remoteMessageID
	return nil
}

func (s *fakeStore) MarkFailedAttempt(ctx context.Context, id int64, attempts, maxAttempts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.markFailedErr != nil {
		return s.markFailedErr
	}
	s.failedAttempts[id] = attempts
	return nil
}

func (s *fakeStore) ApplyStatusUpdate(ctx context.Context, update models.StatusUpdatePayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.applyErr != nil {
		return s.applyErr
	}
	s.statusUpdates = append(s.statusUpdates, update)
	return nil
}

func (s *fakeStore) InsertAudit(ctx context.Context, entry models.AuditPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditErr != nil {
		return s.auditErr
	}
	s.audits = append(s.audits, entry)
	return nil
}

// fakeQueue is an in-memory Fallback.
type fakeQueue struct {
	mu         sync.Mutex
	items      []models.FallbackItem
	enqueueErr error
	evicted    []string
	failures   map[string]int
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{failures: map[string]int{}}
}

func (q *fakeQueue) Enqueue(kind models.FallbackKind, payload interface{}) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.enqueueErr != nil {
		return "", q.enqueueErr
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	item := models.FallbackItem{
		ID:      fmt.Sprintf("item-%d", len(q.items)+1),
		Kind:    kind,
		Payload: data,
	}
	q.items = append(q.items, item)
	return item.ID, nil
}

func (q *fakeQueue) Snapshot() []models.FallbackItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	snapshot := make([]models.FallbackItem, len(q.items))
	copy(snapshot, q.items)
	return snapshot
}

func (q *fakeQueue) Evict(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.items {
		if q.items[i].ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			break
		}
	}
	q.evicted = append(q.evicted, id)
	return nil
}

func (q *fakeQueue) RecordFailure(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failures[id]++
	return nil
}

func (q *fakeQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *fakeQueue) itemsOfKind(kind models.FallbackKind) []models.FallbackItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []models.FallbackItem
	for _, item := range q.items {
		if item.Kind == kind {
			out = append(out, item)
		}
	}
	return out
}
