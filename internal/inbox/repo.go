package inbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/circleup-app/circleup-backend/pkg/db/models"
	"github.com/circleup-app/circleup-backend/pkg/pagination"
)

// Repository exposes persistence helpers for the in-app notification feed.
type Repository interface {
	Create(ctx context.Context, item *models.InboxItem) error
	List(ctx context.Context, params listInboxParams) ([]models.InboxItem, *pagination.Cursor, error)
	MarkRead(ctx context.Context, userID, itemID uuid.UUID, now time.Time) (inboxMarkResult, error)
	MarkAllRead(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns an inbox repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

// listInboxParams scopes a feed query to exactly one of a user or a group.
type listInboxParams struct {
	UserID     uuid.UUID
	GroupID    uuid.UUID
	Limit      int
	Cursor     *pagination.Cursor
	UnreadOnly bool
}

type inboxMarkResult struct {
	Updated bool
	Found   bool
}

func (r *repositoryImpl) Create(ctx context.Context, item *models.InboxItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *repositoryImpl) List(ctx context.Context, params listInboxParams) ([]models.InboxItem, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)
	query := r.db.WithContext(ctx).Model(&models.InboxItem{})
	if params.GroupID != uuid.Nil {
		query = query.Where("group_id = ?", params.GroupID)
	} else {
		query = query.Where("user_id = ?", params.UserID)
	}
	if params.UnreadOnly {
		query = query.Where("read_at IS NULL")
	}
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.Timestamp, params.Cursor.ID)
	}

	var items []models.InboxItem
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&items).Error; err != nil {
		return nil, nil, err
	}

	if len(items) > normalized {
		items = items[:normalized]
		last := items[len(items)-1]
		return items, &pagination.Cursor{Timestamp: last.CreatedAt, ID: last.ID}, nil
	}
	return items, nil, nil
}

func (r *repositoryImpl) MarkRead(ctx context.Context, userID, itemID uuid.UUID, now time.Time) (inboxMarkResult, error) {
	result := r.db.WithContext(ctx).
		Model(&models.InboxItem{}).
		Where("id = ? AND user_id = ? AND read_at IS NULL", itemID, userID).
		UpdateColumn("read_at", now)
	if result.Error != nil {
		return inboxMarkResult{}, result.Error
	}

	mark := inboxMarkResult{Updated: result.RowsAffected > 0}
	if result.RowsAffected > 0 {
		mark.Found = true
		return mark, nil
	}

	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.InboxItem{}).
		Where("id = ? AND user_id = ?", itemID, userID).
		Count(&count).Error; err != nil {
		return inboxMarkResult{}, err
	}
	mark.Found = count > 0
	return mark, nil
}

func (r *repositoryImpl) MarkAllRead(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.InboxItem{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		UpdateColumn("read_at", now)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repositoryImpl) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.InboxItem{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
