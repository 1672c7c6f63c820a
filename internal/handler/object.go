package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"realtime-whiteboard/internal/model"
	"realtime-whiteboard/internal/repository"
)

// ObjectHandler 보드 객체 REST 핸들러
type ObjectHandler struct {
	repo   repository.ObjectRepositoryInterface
	logger *zap.Logger
}

func NewObjectHandler(repo repository.ObjectRepositoryInterface, logger *zap.Logger) *ObjectHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ObjectHandler{repo: repo, logger: logger.Named("objects")}
}

// ListObjects GET /api/boards/:boardId/objects
func (h *ObjectHandler) ListObjects(c *fiber.Ctx) error {
	boardID := c.Params("boardId")

	objects, err := h.repo.ListByBoard(c.UserContext(), boardID)
	if err != nil {
		h.logger.Error("list objects failed", zap.String("board_id", boardID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch objects"})
	}
	if objects == nil {
		objects = []model.BoardObject{}
	}
	return c.JSON(objects)
}

// CreateObject POST /api/boards/:boardId/objects
//
// The client supplies the id and timestamps; the server stores them as sent.
func (h *ObjectHandler) CreateObject(c *fiber.Ctx) error {
	boardID := c.Params("boardId")

	var obj model.BoardObject
	if err := c.BodyParser(&obj); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if obj.BoardID == "" {
		obj.BoardID = boardID
	}
	switch {
	case obj.ID == "":
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "id is required"})
	case obj.BoardID != boardID:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "board_id does not match path"})
	case !obj.Type.Valid():
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown object type"})
	}

	if err := h.repo.Insert(c.UserContext(), obj); err != nil {
		h.logger.Error("insert object failed", zap.String("id", obj.ID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create object"})
	}
	return c.Status(fiber.StatusCreated).JSON(obj)
}

// UpdateObject PATCH /api/objects/:id
func (h *ObjectHandler) UpdateObject(c *fiber.Ctx) error {
	id := c.Params("id")

	var patch model.Patch
	if err := c.BodyParser(&patch); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if patch.Empty() && patch.UpdatedAt == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "empty patch"})
	}

	err := h.repo.Update(c.UserContext(), id, patch)
	if errors.Is(err, repository.ErrObjectNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "object not found"})
	}
	if err != nil {
		h.logger.Error("update object failed", zap.String("id", id), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to update object"})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// DeleteObject DELETE /api/objects/:id
func (h *ObjectHandler) DeleteObject(c *fiber.Ctx) error {
	id := c.Params("id")

	if err := h.repo.Delete(c.UserContext(), id); err != nil {
		h.logger.Error("delete object failed", zap.String("id", id), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to delete object"})
	}
	return c.SendStatus(fiber.StatusNoContent)
}
