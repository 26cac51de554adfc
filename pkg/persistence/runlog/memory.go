package runlog

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// InMemoryStore is a size-limited Store that lives as long as the process.
type InMemoryStore struct {
	mu         sync.Mutex
	maxRecords int
	records    []JobRecord
}

var _ Store = &InMemoryStore{}

func NewInMemoryStore(maxRecords int) *InMemoryStore {
	if maxRecords <= 0 {
		maxRecords = 1000
	}
	return &InMemoryStore{maxRecords: maxRecords}
}

func (s *InMemoryStore) Close() error { return nil }

func (s *InMemoryStore) Save(_ context.Context, rec JobRecord) error {
	if s == nil {
		return errors.New("in-memory runlog: nil store")
	}
	rec, err := normalizeRecord(rec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	if over := len(s.records) - s.maxRecords; over > 0 {
		s.records = append([]JobRecord(nil), s.records[over:]...)
	}
	return nil
}

func (s *InMemoryStore) List(_ context.Context, q Query) ([]JobRecord, error) {
	if s == nil {
		return nil, errors.New("in-memory runlog: nil store")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 200
	}

	s.mu.Lock()
	out := make([]JobRecord, 0, len(s.records))
	for _, rec := range s.records {
		if !q.matches(rec) {
			continue
		}
		rec.Statuses = append([]string(nil), rec.Statuses...)
		out = append(out, rec)
	}
	s.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAtMs > out[j].StartedAtMs })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (q Query) matches(rec JobRecord) bool {
	if v := strings.TrimSpace(q.SessionID); v != "" && rec.SessionID != v {
		return false
	}
	if v := strings.TrimSpace(q.ConversationID); v != "" && rec.ConversationID != v {
		return false
	}
	if v := strings.TrimSpace(q.Outcome); v != "" && rec.Outcome != v {
		return false
	}
	return true
}

func normalizeRecord(rec JobRecord) (JobRecord, error) {
	if strings.TrimSpace(rec.SessionID) == "" {
		return rec, errors.New("runlog: sessionID is empty")
	}
	if strings.TrimSpace(rec.Outcome) == "" {
		return rec, errors.New("runlog: outcome is empty")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := time.Now().UnixMilli()
	if rec.StartedAtMs <= 0 {
		rec.StartedAtMs = now
	}
	if rec.FinishedAtMs <= 0 {
		rec.FinishedAtMs = now
	}
	if rec.Statuses == nil {
		rec.Statuses = []string{}
	}
	return rec, nil
}
