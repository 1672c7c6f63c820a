package middleware

import (
	"github.com/gofiber/fiber/v2"

	"realtime-whiteboard/internal/auth"
)

// MaxIDLength matches the varchar(64) id columns.
const MaxIDLength = 64

// LocalBoardID 컨텍스트에 저장되는 보드 ID 키
const LocalBoardID = "boardID"

// validID accepts the characters generated ids and board slugs use.
func validID(id string) bool {
	if id == "" || len(id) > MaxIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		ch := id[i]
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
		case ch == '-', ch == '_', ch == '.', ch == ':':
		default:
			return false
		}
	}
	return true
}

// RequireBoard 보드 ID 검증 미들웨어. Must run after auth.AuthMiddleware.
func RequireBoard() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := c.Locals(auth.LocalUserID).(string); !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "unauthorized",
			})
		}

		boardID := c.Params("boardId")
		if !validID(boardID) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid board ID",
			})
		}

		c.Locals(LocalBoardID, boardID)
		return c.Next()
	}
}

// RequireObjectID 객체 ID 검증 미들웨어
func RequireObjectID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !validID(c.Params("id")) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid object ID",
			})
		}
		return c.Next()
	}
}
