package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ObjectType 보드 객체 종류 (closed set)
type ObjectType string

const (
	TypeStickyNote ObjectType = "sticky_note"
	TypeRectangle  ObjectType = "rectangle"
	TypeCircle     ObjectType = "circle"
	TypeLine       ObjectType = "line"
	TypeConnector  ObjectType = "connector"
	TypeFrame      ObjectType = "frame"
	TypeText       ObjectType = "text"
)

// Valid reports whether t is one of the known object types.
func (t ObjectType) Valid() bool {
	switch t {
	case TypeStickyNote, TypeRectangle, TypeCircle, TypeLine, TypeConnector, TypeFrame, TypeText:
		return true
	}
	return false
}

// Connector metadata keys
const (
	MetaFromID = "fromId"
	MetaToID   = "toId"
	MetaStyle  = "style"
)

// BoardObject 화이트보드 위의 공유 객체
//
// UpdatedAt is the conflict clock. It is always supplied by the client that made the
// edit, so gorm must never stamp it on its own.
type BoardObject struct {
	ID        string            `gorm:"primaryKey;type:varchar(64)" json:"id"`
	BoardID   string            `gorm:"type:varchar(64);not null;index:idx_board_objects_board_z" json:"board_id"`
	Type      ObjectType        `gorm:"type:varchar(20);not null" json:"type"`
	X         float64           `json:"x"`
	Y         float64           `json:"y"`
	Width     float64           `json:"width"`
	Height    float64           `json:"height"`
	Rotation  float64           `json:"rotation"`
	Color     string            `gorm:"type:varchar(20)" json:"color"`
	Text      string            `gorm:"type:text" json:"text"`
	ZIndex    int64             `gorm:"index:idx_board_objects_board_z" json:"z_index"`
	Metadata  datatypes.JSONMap `gorm:"type:jsonb" json:"metadata"`
	CreatedAt time.Time         `gorm:"autoCreateTime:false" json:"created_at"`
	UpdatedAt time.Time         `gorm:"autoUpdateTime:false" json:"updated_at"`
}

func (BoardObject) TableName() string {
	return "board_objects"
}

// Clone returns a copy that shares nothing mutable with o.
func (o BoardObject) Clone() BoardObject {
	if o.Metadata != nil {
		meta := make(datatypes.JSONMap, len(o.Metadata))
		for k, v := range o.Metadata {
			meta[k] = v
		}
		o.Metadata = meta
	}
	return o
}

// ConnectorEnds returns the ids a connector points at. ok is false for
// non-connectors and for connectors missing either end.
func (o BoardObject) ConnectorEnds() (fromID, toID string, ok bool) {
	if o.Type != TypeConnector || o.Metadata == nil {
		return "", "", false
	}
	fromID, _ = o.Metadata[MetaFromID].(string)
	toID, _ = o.Metadata[MetaToID].(string)
	return fromID, toID, fromID != "" && toID != ""
}

// Now returns the conflict clock reading for t: UTC, millisecond precision.
// Postgres keeps microseconds and JSON keeps nanoseconds, so truncating keeps the
// broadcast copy and the durable row comparable.
func Now(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// NewID 클라이언트 측 객체 ID 생성
func NewID() string {
	return uuid.NewString()
}

// StickyColors 스티키 노트 기본 색상
var StickyColors = []string{"#FDFD96", "#FFB7B2", "#B5EAD7", "#C7CEEA", "#FFD8B1"}

// NewObject builds an object of type t centred on the given world position with
// the per-type default size and colour.
func NewObject(boardID string, t ObjectType, worldX, worldY float64, now time.Time) BoardObject {
	now = Now(now)
	obj := BoardObject{
		ID:        NewID(),
		BoardID:   boardID,
		Type:      t,
		X:         worldX,
		Y:         worldY,
		Width:     200,
		Height:    200,
		Color:     "#FDFD96",
		ZIndex:    now.UnixMilli(),
		Metadata:  datatypes.JSONMap{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	switch t {
	case TypeStickyNote:
		obj.Color = StickyColors[int(now.UnixMilli()%int64(len(StickyColors)))]
	case TypeRectangle:
		obj.Color = "#4ECDC4"
		obj.Width, obj.Height = 250, 150
	case TypeCircle:
		obj.Color = "#FF6B6B"
		obj.Width, obj.Height = 150, 150
	case TypeLine:
		obj.Color = "#888888"
		obj.Width, obj.Height = 200, 0
	case TypeText:
		obj.Color = "#e0e0e0"
		obj.Text = "Double-click to edit"
		obj.Width, obj.Height = 200, 30
	case TypeFrame:
		obj.Color = "#6c63ff"
		obj.Text = "Frame"
		obj.Width, obj.Height = 400, 300
	}

	obj.X = worldX - obj.Width/2
	obj.Y = worldY - obj.Height/2
	return obj
}

// NewConnector 두 객체를 잇는 커넥터 생성
func NewConnector(boardID, fromID, toID string, now time.Time) BoardObject {
	now = Now(now)
	return BoardObject{
		ID:      NewID(),
		BoardID: boardID,
		Type:    TypeConnector,
		Color:   "#888888",
		ZIndex:  now.UnixMilli(),
		Metadata: datatypes.JSONMap{
			MetaFromID: fromID,
			MetaToID:   toID,
			MetaStyle:  "arrow",
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}
