package boardsync

import (
	"context"
	"sync"

	"realtime-whiteboard/internal/model"
)

// PasteOffset is how far each paste is shifted from the previous one.
const PasteOffset = 40

// Clipboard holds copied objects for repeated pasting. Each paste lands
// PasteOffset further from the last, so pasting three times fans the copies out.
type Clipboard struct {
	c *Coordinator

	mu      sync.Mutex
	objects []model.BoardObject
}

// NewClipboard 보드 클립보드 생성
func NewClipboard(c *Coordinator) *Clipboard {
	return &Clipboard{c: c}
}

// Copy snapshots the given objects from the store, replacing the clipboard.
// Unknown ids are skipped.
func (cb *Clipboard) Copy(ids []string) int {
	var copied []model.BoardObject
	for _, id := range ids {
		if obj, ok := cb.c.store.Get(id); ok {
			copied = append(copied, obj)
		}
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.objects = copied
	return len(copied)
}

// Len 클립보드 객체 수
func (cb *Clipboard) Len() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return len(cb.objects)
}

// Paste creates shifted copies of the clipboard contents and returns them.
// Pasting an empty clipboard does nothing.
func (cb *Clipboard) Paste(ctx context.Context) ([]model.BoardObject, error) {
	cb.mu.Lock()
	originals := make([]model.BoardObject, len(cb.objects))
	for i, obj := range cb.objects {
		originals[i] = obj.Clone()
		cb.objects[i].X += PasteOffset
		cb.objects[i].Y += PasteOffset
	}
	cb.mu.Unlock()

	if len(originals) == 0 {
		return nil, nil
	}
	return cb.c.createCopies(ctx, originals, PasteOffset)
}
