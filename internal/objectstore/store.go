// Package objectstore holds the in-memory canonical copy of a board's objects.
//
// The store is the single source of truth for rendering on the local client.
// Remote versions are merged through ReconcileRemote, which applies a
// last-write-wins rule keyed on BoardObject.UpdatedAt. The rule does not depend
// on delivery order and applying the same version twice is a no-op.
package objectstore

import (
	"sort"
	"sync"

	"realtime-whiteboard/internal/model"
)

// ChangeKind describes what happened to the store.
type ChangeKind int

const (
	ChangeReplaced ChangeKind = iota // whole snapshot replaced
	ChangeUpserted                   // one object inserted or overwritten
	ChangeRemoved                    // one object removed
)

// String 변경 종류 문자열
func (k ChangeKind) String() string {
	switch k {
	case ChangeReplaced:
		return "replaced"
	case ChangeUpserted:
		return "upserted"
	case ChangeRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Change is delivered to listeners after the store mutated. ID is empty for
// ChangeReplaced.
type Change struct {
	Kind ChangeKind
	ID   string
}

// Store maps object id to object state for the open board.
type Store struct {
	mu        sync.RWMutex
	objects   map[string]model.BoardObject
	listeners []func(Change)
}

// New 빈 Store 생성
func New() *Store {
	return &Store{
		objects: make(map[string]model.BoardObject),
	}
}

// OnChange registers fn to run after every mutation. Listeners run outside the
// store lock, on the goroutine that caused the change.
func (s *Store) OnChange(fn func(Change)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// ReplaceAll swaps the whole snapshot. Used on initial load and after a refresh.
func (s *Store) ReplaceAll(objects []model.BoardObject) {
	next := make(map[string]model.BoardObject, len(objects))
	for _, obj := range objects {
		next[obj.ID] = obj.Clone()
	}

	s.mu.Lock()
	s.objects = next
	listeners := s.listeners
	s.mu.Unlock()

	notify(listeners, Change{Kind: ChangeReplaced})
}

// UpsertLocal inserts or overwrites obj unconditionally. Locally originated
// creates and updates go through here.
func (s *Store) UpsertLocal(obj model.BoardObject) {
	s.mu.Lock()
	s.objects[obj.ID] = obj.Clone()
	listeners := s.listeners
	s.mu.Unlock()

	notify(listeners, Change{Kind: ChangeUpserted, ID: obj.ID})
}

// Merge applies patch to the stored object and returns the merged copy. It
// reports false and changes nothing when id is unknown.
func (s *Store) Merge(id string, patch model.Patch) (model.BoardObject, bool) {
	s.mu.Lock()
	existing, ok := s.objects[id]
	if !ok {
		s.mu.Unlock()
		return model.BoardObject{}, false
	}
	merged := existing.Clone()
	patch.Apply(&merged)
	s.objects[id] = merged
	listeners := s.listeners
	s.mu.Unlock()

	notify(listeners, Change{Kind: ChangeUpserted, ID: id})
	return merged.Clone(), true
}

// Remove deletes id. Removing an unknown id is a no-op.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	_, ok := s.objects[id]
	delete(s.objects, id)
	listeners := s.listeners
	s.mu.Unlock()

	if ok {
		notify(listeners, Change{Kind: ChangeRemoved, ID: id})
	}
}

// ReconcileRemote applies obj only if there is no local copy or the local copy
// is strictly older. Ties keep the local copy so a client that hears its own
// broadcast does not loop. Reports whether obj was applied.
func (s *Store) ReconcileRemote(obj model.BoardObject) bool {
	s.mu.Lock()
	if existing, ok := s.objects[obj.ID]; ok && !existing.UpdatedAt.Before(obj.UpdatedAt) {
		s.mu.Unlock()
		return false
	}
	s.objects[obj.ID] = obj.Clone()
	listeners := s.listeners
	s.mu.Unlock()

	notify(listeners, Change{Kind: ChangeUpserted, ID: obj.ID})
	return true
}

// Get returns a copy of the object with the given id.
func (s *Store) Get(id string) (model.BoardObject, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[id]
	if !ok {
		return model.BoardObject{}, false
	}
	return obj.Clone(), true
}

// Len 객체 수
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// List returns all objects in paint order: z-index ascending, ties by id.
func (s *Store) List() []model.BoardObject {
	s.mu.RLock()
	out := make([]model.BoardObject, 0, len(s.objects))
	for _, obj := range s.objects {
		out = append(out, obj.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].ZIndex != out[j].ZIndex {
			return out[i].ZIndex < out[j].ZIndex
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Connector resolves both ends of the connector with the given id. A missing
// end comes back nil; dangling references are expected after deletes.
func (s *Store) Connector(id string) (from, to *model.BoardObject, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conn, exists := s.objects[id]
	if !exists {
		return nil, nil, false
	}
	fromID, toID, ok := conn.ConnectorEnds()
	if !ok {
		return nil, nil, false
	}
	if obj, found := s.objects[fromID]; found {
		c := obj.Clone()
		from = &c
	}
	if obj, found := s.objects[toID]; found {
		c := obj.Clone()
		to = &c
	}
	return from, to, true
}

// Rect is an axis-aligned area in world coordinates.
type Rect struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Intersecting returns the objects whose bounding box overlaps r, in paint order.
func (s *Store) Intersecting(r Rect) []model.BoardObject {
	var out []model.BoardObject
	for _, obj := range s.List() {
		if obj.X < r.X+r.Width && obj.X+obj.Width > r.X &&
			obj.Y < r.Y+r.Height && obj.Y+obj.Height > r.Y {
			out = append(out, obj)
		}
	}
	return out
}

// At returns the topmost shape whose bounding box contains the world point.
// Lines, connectors and the object with id exclude are never hit.
func (s *Store) At(x, y float64, exclude string) (model.BoardObject, bool) {
	objects := s.List()
	for i := len(objects) - 1; i >= 0; i-- {
		obj := objects[i]
		if obj.ID == exclude || obj.Type == model.TypeConnector || obj.Type == model.TypeLine {
			continue
		}
		if x >= obj.X && x <= obj.X+obj.Width && y >= obj.Y && y <= obj.Y+obj.Height {
			return obj, true
		}
	}
	return model.BoardObject{}, false
}

func notify(listeners []func(Change), change Change) {
	for _, fn := range listeners {
		fn(change)
	}
}
