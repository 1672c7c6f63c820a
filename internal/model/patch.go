package model

import (
	"time"

	"gorm.io/datatypes"
)

// Patch 부분 업데이트 필드 (nil = 변경 없음)
type Patch struct {
	X         *float64          `json:"x,omitempty"`
	Y         *float64          `json:"y,omitempty"`
	Width     *float64          `json:"width,omitempty"`
	Height    *float64          `json:"height,omitempty"`
	Rotation  *float64          `json:"rotation,omitempty"`
	Color     *string           `json:"color,omitempty"`
	Text      *string           `json:"text,omitempty"`
	ZIndex    *int64            `json:"z_index,omitempty"`
	Metadata  datatypes.JSONMap `json:"metadata,omitempty"`
	UpdatedAt *time.Time        `json:"updated_at,omitempty"`
}

// Float returns a pointer to v, for building patches.
func Float(v float64) *float64 { return &v }

// String returns a pointer to v, for building patches.
func String(v string) *string { return &v }

// Empty reports whether the patch changes nothing besides the timestamp.
func (p Patch) Empty() bool {
	return p.X == nil && p.Y == nil && p.Width == nil && p.Height == nil &&
		p.Rotation == nil && p.Color == nil && p.Text == nil && p.ZIndex == nil &&
		p.Metadata == nil
}

// Apply merges the set fields into obj.
func (p Patch) Apply(obj *BoardObject) {
	if p.X != nil {
		obj.X = *p.X
	}
	if p.Y != nil {
		obj.Y = *p.Y
	}
	if p.Width != nil {
		obj.Width = *p.Width
	}
	if p.Height != nil {
		obj.Height = *p.Height
	}
	if p.Rotation != nil {
		obj.Rotation = *p.Rotation
	}
	if p.Color != nil {
		obj.Color = *p.Color
	}
	if p.Text != nil {
		obj.Text = *p.Text
	}
	if p.ZIndex != nil {
		obj.ZIndex = *p.ZIndex
	}
	if p.Metadata != nil {
		meta := make(datatypes.JSONMap, len(p.Metadata))
		for k, v := range p.Metadata {
			meta[k] = v
		}
		obj.Metadata = meta
	}
	if p.UpdatedAt != nil {
		obj.UpdatedAt = *p.UpdatedAt
	}
}

// Columns 영속 저장소 UPDATE 용 컬럼 맵
func (p Patch) Columns() map[string]any {
	cols := make(map[string]any)
	if p.X != nil {
		cols["x"] = *p.X
	}
	if p.Y != nil {
		cols["y"] = *p.Y
	}
	if p.Width != nil {
		cols["width"] = *p.Width
	}
	if p.Height != nil {
		cols["height"] = *p.Height
	}
	if p.Rotation != nil {
		cols["rotation"] = *p.Rotation
	}
	if p.Color != nil {
		cols["color"] = *p.Color
	}
	if p.Text != nil {
		cols["text"] = *p.Text
	}
	if p.ZIndex != nil {
		cols["z_index"] = *p.ZIndex
	}
	if p.Metadata != nil {
		cols["metadata"] = p.Metadata
	}
	if p.UpdatedAt != nil {
		cols["updated_at"] = *p.UpdatedAt
	}
	return cols
}
