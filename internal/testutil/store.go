package testutil

import (
	"context"
	"errors"
	"sort"
	"sync"

	"realtime-whiteboard/internal/model"
	"realtime-whiteboard/internal/repository"
)

// ErrNotFound is returned by MemoryStore.Update for an unknown id. It is the
// repository's error so handlers map it the same way.
var ErrNotFound = repository.ErrObjectNotFound

// Durable store operations, for FailNext and Calls.
const (
	OpList   = "list"
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
)

// MemoryStore is an in-memory durable store with failure injection.
type MemoryStore struct {
	mu    sync.Mutex
	rows  map[string]model.BoardObject
	fail  map[string]error
	calls map[string]int
}

// NewMemoryStore creates a store holding objs.
func NewMemoryStore(objs ...model.BoardObject) *MemoryStore {
	s := &MemoryStore{
		rows:  make(map[string]model.BoardObject),
		fail:  make(map[string]error),
		calls: make(map[string]int),
	}
	for _, obj := range objs {
		s.rows[obj.ID] = obj.Clone()
	}
	return s
}

// FailNext makes the next call of op return err.
func (s *MemoryStore) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[op] = err
}

// Calls counts calls of op, failed ones included.
func (s *MemoryStore) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *MemoryStore) begin(op string) error {
	s.calls[op]++
	if err, ok := s.fail[op]; ok {
		delete(s.fail, op)
		return err
	}
	return nil
}

func (s *MemoryStore) ListByBoard(_ context.Context, boardID string) ([]model.BoardObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(OpList); err != nil {
		return nil, err
	}
	return s.snapshot(boardID), nil
}

func (s *MemoryStore) Insert(_ context.Context, obj model.BoardObject) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(OpInsert); err != nil {
		return err
	}
	if _, ok := s.rows[obj.ID]; ok {
		return errors.New("duplicate key: " + obj.ID)
	}
	s.rows[obj.ID] = obj.Clone()
	return nil
}

func (s *MemoryStore) Update(_ context.Context, id string, patch model.Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(OpUpdate); err != nil {
		return err
	}
	row, ok := s.rows[id]
	if !ok {
		return ErrNotFound
	}
	patch.Apply(&row)
	s.rows[id] = row
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(OpDelete); err != nil {
		return err
	}
	delete(s.rows, id)
	return nil
}

// Put writes obj directly, the way an out-of-band writer would.
func (s *MemoryStore) Put(obj model.BoardObject) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[obj.ID] = obj.Clone()
}

// Remove deletes id directly.
func (s *MemoryStore) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, id)
}

// Get returns the stored row for id.
func (s *MemoryStore) Get(id string) (model.BoardObject, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.rows[id]
	return obj.Clone(), ok
}

// Snapshot returns the board's rows ordered like ListByBoard.
func (s *MemoryStore) Snapshot(boardID string) []model.BoardObject {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(boardID)
}

func (s *MemoryStore) snapshot(boardID string) []model.BoardObject {
	out := make([]model.BoardObject, 0, len(s.rows))
	for _, obj := range s.rows {
		if obj.BoardID == boardID {
			out = append(out, obj.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ZIndex != out[j].ZIndex {
			return out[i].ZIndex < out[j].ZIndex
		}
		return out[i].ID < out[j].ID
	})
	return out
}
