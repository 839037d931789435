// Package memory is a process-local store driver used for development and tests.
package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/modlink/registry-engine/internal/address"
	"github.com/modlink/registry-engine/internal/store"
)

// Store keeps records in a map. Updates are serialized; reads take a shared lock.
type Store struct {
	mu      sync.RWMutex
	records map[address.Key]*store.Record
	closed  bool
	now     func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		records: make(map[address.Key]*store.Record),
		now:     time.Now,
	}
}

var _ store.Store = (*Store)(nil)

type tx struct {
	s      *Store
	staged map[address.Key]*store.Record
}

func (t *tx) Get(_ context.Context, addr address.Key) (*store.Record, error) {
	if rec, ok := t.staged[addr]; ok {
		return clone(rec), nil
	}
	if rec, ok := t.s.records[addr]; ok {
		return clone(rec), nil
	}
	return nil, store.ErrNotFound
}

func (t *tx) Create(ctx context.Context, rec *store.Record) error {
	if _, err := t.Get(ctx, rec.Address); err == nil {
		return store.ErrAlreadyExists
	}
	return t.Put(ctx, rec)
}

func (t *tx) Put(_ context.Context, rec *store.Record) error {
	c := clone(rec)
	c.UpdatedAt = t.s.now().UTC()
	t.staged[rec.Address] = c
	return nil
}

func (t *tx) Count(_ context.Context) (map[address.Kind]int64, error) {
	counts := countKinds(t.s.records)
	for addr, rec := range t.staged {
		if _, ok := t.s.records[addr]; !ok {
			counts[rec.Kind]++
		}
	}
	return counts, nil
}

// Update applies the staged writes only when fn succeeds.
func (s *Store) Update(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	t := &tx{s: s, staged: make(map[address.Key]*store.Record)}
	if err := fn(ctx, t); err != nil {
		return err
	}
	for addr, rec := range t.staged {
		s.records[addr] = rec
	}
	return nil
}

func (s *Store) Get(_ context.Context, addr address.Key) (*store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrClosed
	}
	rec, ok := s.records[addr]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clone(rec), nil
}

func (s *Store) List(_ context.Context, kind address.Kind, parent address.Key) ([]*store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrClosed
	}
	var out []*store.Record
	for _, rec := range s.records {
		if rec.Kind != kind {
			continue
		}
		if !parent.IsZero() && rec.Parent != parent {
			continue
		}
		out = append(out, clone(rec))
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Address[:], out[j].Address[:]) < 0
	})
	return out, nil
}

func (s *Store) Count(_ context.Context) (map[address.Kind]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrClosed
	}
	return countKinds(s.records), nil
}

func countKinds(records map[address.Key]*store.Record) map[address.Kind]int64 {
	counts := make(map[address.Kind]int64)
	for _, rec := range records {
		counts[rec.Kind]++
	}
	return counts
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func clone(rec *store.Record) *store.Record {
	c := *rec
	c.Payload = append([]byte(nil), rec.Payload...)
	return &c
}
