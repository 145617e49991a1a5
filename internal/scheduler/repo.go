package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/circleup-app/circleup-backend/pkg/db/models"
	"github.com/circleup-app/circleup-backend/pkg/enums"
	"github.com/circleup-app/circleup-backend/pkg/pagination"
)

// Repository is the durable store for scheduled notifications. Status writes go
// through conditional updates so concurrent dispatchers and cancel requests
// never clobber each other: the guard is always "current status still equals
// what I last saw".
type Repository interface {
	Create(ctx context.Context, entry *models.ScheduledNotification) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.ScheduledNotification, error)
	Delete(ctx context.Context, id uuid.UUID) (int64, error)
	List(ctx context.Context, query ListQuery) ([]models.ScheduledNotification, *pagination.Cursor, error)

	// ClaimDue atomically flips due pending entries to processing and returns
	// the claimed rows ordered by scheduled_for, priority, id.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]models.ScheduledNotification, error)

	// UpdateStatusIf applies updates only while the row still carries the
	// expected status. A false return means the guard lost a race, not an error.
	UpdateStatusIf(ctx context.Context, id uuid.UUID, expected enums.NotificationStatus, updates map[string]any) (bool, error)

	// ReleaseStale returns processing rows untouched since the cutoff to
	// pending so a crashed worker's claims get picked up again.
	ReleaseStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// ListQuery filters and paginates schedule listings.
type ListQuery struct {
	Status *enums.NotificationStatus
	Limit  int
	Cursor *pagination.Cursor
}

// priorityRank orders the priority enum for dispatch tie-breaks; urgent first.
const priorityRank = "CASE priority WHEN 'urgent' THEN 0 WHEN 'high' THEN 1 WHEN 'normal' THEN 2 ELSE 3 END"

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a schedule repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) Create(ctx context.Context, entry *models.ScheduledNotification) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.ScheduledNotification, error) {
	var entry models.ScheduledNotification
	if err := r.db.WithContext(ctx).First(&entry, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repositoryImpl) Delete(ctx context.Context, id uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).Delete(&models.ScheduledNotification{}, "id = ?", id)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repositoryImpl) List(ctx context.Context, query ListQuery) ([]models.ScheduledNotification, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(query.Limit)
	normalized := pagination.NormalizeLimit(query.Limit)

	q := r.db.WithContext(ctx).Model(&models.ScheduledNotification{})
	if query.Status != nil {
		q = q.Where("status = ?", *query.Status)
	}
	if query.Cursor != nil {
		q = q.Where("(created_at, id) < (?, ?)", query.Cursor.Timestamp, query.Cursor.ID)
	}

	var entries []models.ScheduledNotification
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&entries).Error; err != nil {
		return nil, nil, err
	}

	if len(entries) > normalized {
		entries = entries[:normalized]
		last := entries[len(entries)-1]
		return entries, &pagination.Cursor{Timestamp: last.CreatedAt, ID: last.ID}, nil
	}
	return entries, nil, nil
}

func (r *repositoryImpl) ClaimDue(ctx context.Context, now time.Time, limit int) ([]models.ScheduledNotification, error) {
	if limit <= 0 {
		return nil, nil
	}

	var candidates []models.ScheduledNotification
	err := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_for <= ?", enums.NotificationStatusPending, now).
		Order("scheduled_for ASC").
		Order(priorityRank + " ASC").
		Order("id ASC").
		Limit(limit).
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}

	claimed := make([]models.ScheduledNotification, 0, len(candidates))
	for _, candidate := range candidates {
		// Conditional flip per row; a concurrent claimer losing the race just
		// skips the entry.
		ok, err := r.UpdateStatusIf(ctx, candidate.ID, enums.NotificationStatusPending, map[string]any{
			"status": enums.NotificationStatusProcessing,
		})
		if err != nil {
			return claimed, err
		}
		if !ok {
			continue
		}
		entry, err := r.FindByID(ctx, candidate.ID)
		if err != nil {
			return claimed, err
		}
		claimed = append(claimed, *entry)
	}
	return claimed, nil
}

func (r *repositoryImpl) UpdateStatusIf(ctx context.Context, id uuid.UUID, expected enums.NotificationStatus, updates map[string]any) (bool, error) {
	if updates == nil {
		updates = map[string]any{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}

	result := r.db.WithContext(ctx).
		Model(&models.ScheduledNotification{}).
		Where("id = ? AND status = ?", id, expected).
		UpdateColumns(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repositoryImpl) ReleaseStale(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.ScheduledNotification{}).
		Where("status = ? AND updated_at < ?", enums.NotificationStatusProcessing, cutoff).
		UpdateColumns(map[string]any{
			"status":     enums.NotificationStatusPending,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
