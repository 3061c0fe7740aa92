package archive

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is an in-memory [Store].
type MemStore struct {
	mu      sync.RWMutex
	records []Record
	now     func() time.Time
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{now: time.Now}
}

// Save implements [Store].
func (s *MemStore) Save(ctx context.Context, rec *Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = slices.DeleteFunc(s.records, func(r Record) bool { return r.ID == rec.ID })
	s.records = append(s.records, cloneRecord(*rec))
	return nil
}

// Get implements [Store].
func (s *MemStore) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.records {
		if r.ID == id {
			out := cloneRecord(r)
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

// List implements [Store].
func (s *MemStore) List(ctx context.Context, opts ListOptions) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for i := len(s.records) - 1; i >= 0; i-- {
		r := s.records[i]
		if opts.Subject != "" && r.Subject != opts.Subject {
			continue
		}
		out = append(out, cloneRecord(r))
	}
	slices.SortStableFunc(out, func(a, b Record) int { return b.CreatedAt.Compare(a.CreatedAt) })
	if len(out) > opts.limit() {
		out = out[:opts.limit()]
	}
	return out, nil
}

// Ping implements [Pinger].
func (s *MemStore) Ping(context.Context) error { return nil }

func cloneRecord(r Record) Record {
	r.Tags = slices.Clone(r.Tags)
	r.Document = slices.Clone(r.Document)
	return r
}
