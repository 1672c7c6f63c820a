package boardsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"realtime-whiteboard/internal/model"
	"realtime-whiteboard/internal/throttle"
)

// DuplicateOffset is how far a duplicate is shifted from its original.
const DuplicateOffset = 20

// ErrConnectorTarget is returned when a connector would start and end on the same object.
var ErrConnectorTarget = errors.New("connector needs two different objects")

// Geometry is the full transform of an object.
type Geometry struct {
	X        float64
	Y        float64
	Width    float64
	Height   float64
	Rotation float64
}

// CreateAt places a new object of type t centred on a world position.
func (c *Coordinator) CreateAt(ctx context.Context, t model.ObjectType, worldX, worldY float64) (model.BoardObject, error) {
	if !t.Valid() || t == model.TypeConnector {
		return model.BoardObject{}, fmt.Errorf("cannot place object of type %q", t)
	}
	obj := model.NewObject(c.boardID, t, worldX, worldY, c.clock.Now())
	return obj, c.Create(ctx, obj)
}

// CreateConnector links fromID to toID with an arrow connector.
func (c *Coordinator) CreateConnector(ctx context.Context, fromID, toID string) (model.BoardObject, error) {
	if fromID == "" || toID == "" || fromID == toID {
		return model.BoardObject{}, ErrConnectorTarget
	}
	obj := model.NewConnector(c.boardID, fromID, toID, c.clock.Now())
	return obj, c.Create(ctx, obj)
}

// ConnectAt creates a connector from fromID to the topmost shape under the
// given world point. It reports false when nothing is there.
func (c *Coordinator) ConnectAt(ctx context.Context, fromID string, worldX, worldY float64) (model.BoardObject, bool, error) {
	target, ok := c.store.At(worldX, worldY, fromID)
	if !ok {
		return model.BoardObject{}, false, nil
	}
	obj, err := c.CreateConnector(ctx, fromID, target.ID)
	return obj, true, err
}

// Move sets an object's position.
func (c *Coordinator) Move(ctx context.Context, id string, x, y float64) error {
	return c.Update(ctx, id, model.Patch{X: model.Float(x), Y: model.Float(y)})
}

// Transform sets position, size and rotation in one update.
func (c *Coordinator) Transform(ctx context.Context, id string, g Geometry) error {
	return c.Update(ctx, id, model.Patch{
		X:        model.Float(g.X),
		Y:        model.Float(g.Y),
		Width:    model.Float(g.Width),
		Height:   model.Float(g.Height),
		Rotation: model.Float(g.Rotation),
	})
}

// SetText 텍스트 변경
func (c *Coordinator) SetText(ctx context.Context, id, text string) error {
	return c.Update(ctx, id, model.Patch{Text: model.String(text)})
}

// SetColor recolours every given object. It keeps going past failures and
// returns them joined.
func (c *Coordinator) SetColor(ctx context.Context, ids []string, color string) error {
	var errs []error
	for _, id := range ids {
		if err := c.Update(ctx, id, model.Patch{Color: model.String(color)}); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DeleteAll deletes every given object.
func (c *Coordinator) DeleteAll(ctx context.Context, ids []string) error {
	var errs []error
	for _, id := range ids {
		if err := c.Delete(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Duplicate copies every given object that is in the store, shifted by
// DuplicateOffset, and returns the copies. Unknown ids are skipped.
func (c *Coordinator) Duplicate(ctx context.Context, ids []string) ([]model.BoardObject, error) {
	var originals []model.BoardObject
	for _, id := range ids {
		if obj, ok := c.store.Get(id); ok {
			originals = append(originals, obj)
		}
	}
	return c.createCopies(ctx, originals, DuplicateOffset)
}

// createCopies creates a fresh copy of each object shifted by offset. All
// copies are created even if some fail to persist.
func (c *Coordinator) createCopies(ctx context.Context, originals []model.BoardObject, offset float64) ([]model.BoardObject, error) {
	now := model.Now(c.clock.Now())
	copies := make([]model.BoardObject, 0, len(originals))
	var errs []error
	for _, orig := range originals {
		obj := orig.Clone()
		obj.ID = model.NewID()
		obj.BoardID = c.boardID
		obj.X += offset
		obj.Y += offset
		obj.ZIndex = now.UnixMilli()
		obj.CreatedAt = now
		obj.UpdatedAt = now
		if err := c.Create(ctx, obj); err != nil {
			errs = append(errs, err)
		}
		copies = append(copies, obj)
	}
	return copies, errors.Join(errs...)
}

// =============================================================================
// Drag
// =============================================================================

// Drag streams position updates for one object while it is being dragged.
// Intermediate moves are throttled; End always writes the final position.
type Drag struct {
	c        *Coordinator
	id       string
	ctx      context.Context
	throttle *throttle.Throttle[[2]float64]
}

// BeginDrag starts a drag of id. interval <= 0 uses 50ms.
func (c *Coordinator) BeginDrag(ctx context.Context, id string, interval time.Duration) *Drag {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	d := &Drag{c: c, id: id, ctx: ctx}
	d.throttle = throttle.New(c.clock, interval, func(pos [2]float64) {
		// intermediate failures are already logged by Update
		_ = c.Move(d.ctx, d.id, pos[0], pos[1])
	})
	return d
}

// Move records an intermediate position.
func (d *Drag) Move(x, y float64) {
	d.throttle.Call([2]float64{x, y})
}

// End drops any pending intermediate move and writes the final position.
func (d *Drag) End(x, y float64) error {
	d.throttle.Stop()
	return d.c.Move(d.ctx, d.id, x, y)
}
