package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"realtime-whiteboard/internal/model"
)

// ErrObjectNotFound 대상 객체 없음
var ErrObjectNotFound = errors.New("object not found")

// ObjectRepository stores board objects in the board_objects table.
type ObjectRepository struct {
	db *gorm.DB
}

// ObjectRepositoryInterface is what the relay server and the sync engine need
// from durable storage.
type ObjectRepositoryInterface interface {
	ListByBoard(ctx context.Context, boardID string) ([]model.BoardObject, error)
	Insert(ctx context.Context, obj model.BoardObject) error
	Update(ctx context.Context, id string, patch model.Patch) error
	Delete(ctx context.Context, id string) error
}

var _ ObjectRepositoryInterface = (*ObjectRepository)(nil)

func NewObjectRepository(db *gorm.DB) *ObjectRepository {
	return &ObjectRepository{db: db}
}

// ListByBoard returns the board's objects in paint order.
func (r *ObjectRepository) ListByBoard(ctx context.Context, boardID string) ([]model.BoardObject, error) {
	var objects []model.BoardObject
	err := r.db.WithContext(ctx).
		Where("board_id = ?", boardID).
		Order("z_index asc").
		Order("id asc").
		Find(&objects).Error
	if err != nil {
		return nil, fmt.Errorf("list objects of board %s: %w", boardID, err)
	}
	return objects, nil
}

func (r *ObjectRepository) Insert(ctx context.Context, obj model.BoardObject) error {
	if err := r.db.WithContext(ctx).Create(&obj).Error; err != nil {
		return fmt.Errorf("insert object %s: %w", obj.ID, err)
	}
	return nil
}

// Update writes only the fields set in patch.
func (r *ObjectRepository) Update(ctx context.Context, id string, patch model.Patch) error {
	cols := patch.Columns()
	if len(cols) == 0 {
		return nil
	}

	result := r.db.WithContext(ctx).
		Model(&model.BoardObject{}).
		Where("id = ?", id).
		Updates(cols)
	if result.Error != nil {
		return fmt.Errorf("update object %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrObjectNotFound
	}
	return nil
}

// Delete is a no-op for an id that is already gone.
func (r *ObjectRepository) Delete(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.BoardObject{}).Error
	if err != nil {
		return fmt.Errorf("delete object %s: %w", id, err)
	}
	return nil
}
