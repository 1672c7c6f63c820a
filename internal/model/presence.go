package model

// CursorPosition 원격 커서 (world 좌표, 저장하지 않음)
type CursorPosition struct {
	UserID   string  `json:"userId"`
	UserName string  `json:"userName"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Color    string  `json:"color"`
}

// PresenceUser 채널에 track 되는 접속자 상태
type PresenceUser struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	Email    string `json:"email,omitempty"`
	Color    string `json:"color"`
	OnlineAt string `json:"onlineAt,omitempty"`
}

// Broadcast event names carried over a board channel.
const (
	EventObjectCreate = "object_create"
	EventObjectUpdate = "object_update"
	EventObjectDelete = "object_delete"
	EventBoardRefresh = "board_refresh"
	EventCursor       = "cursor"
)

// DeletePayload object_delete 페이로드
type DeletePayload struct {
	ID string `json:"id"`
}
