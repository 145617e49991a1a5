package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/circleup-app/circleup-backend/internal/recurrence"
	"github.com/circleup-app/circleup-backend/pkg/db/models"
	dbtypes "github.com/circleup-app/circleup-backend/pkg/db/types"
	"github.com/circleup-app/circleup-backend/pkg/enums"
	pkgerrors "github.com/circleup-app/circleup-backend/pkg/errors"
	"github.com/circleup-app/circleup-backend/pkg/pagination"
)

// Service creates, inspects, and retires scheduled notifications.
type Service interface {
	ScheduleOnce(ctx context.Context, params OnceParams) (*models.ScheduledNotification, error)
	ScheduleRecurring(ctx context.Context, params RecurringParams) (*models.ScheduledNotification, error)
	Get(ctx context.Context, id uuid.UUID) (*models.ScheduledNotification, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	Cancel(ctx context.Context, id uuid.UUID) (*models.ScheduledNotification, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Target names the single recipient or group a notification addresses.
type Target struct {
	RecipientID *uuid.UUID
	GroupID     *uuid.UUID
}

// OnceParams configures a one-time schedule entry.
type OnceParams struct {
	Kind         string
	Content      string
	ScheduledFor time.Time
	Target       Target
	Priority     enums.NotificationPriority
	Channels     []enums.DeliveryChannel
	Metadata     json.RawMessage
	EntityType   *string
	EntityID     *string
}

// RecurringParams configures a recurring schedule entry. StartDate is trusted
// as the first fire time; the pattern only governs subsequent occurrences.
type RecurringParams struct {
	Kind              string
	Content           string
	StartDate         time.Time
	RecurrencePattern string
	RecurrenceEnd     *time.Time
	Target            Target
	Priority          enums.NotificationPriority
	Channels          []enums.DeliveryChannel
	Metadata          json.RawMessage
	EntityType        *string
	EntityID          *string
}

// ListParams filters and paginates schedule listings.
type ListParams struct {
	Status string
	Limit  int
	Cursor string
}

// ListResult wraps returned entries and the cursor for the next page.
type ListResult struct {
	Items  []models.ScheduledNotification `json:"items"`
	Cursor string                         `json:"cursor"`
}

type service struct {
	repo Repository
	now  func() time.Time
}

// NewService wires scheduler dependencies.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "scheduler repository required")
	}
	return &service{repo: repo, now: time.Now}, nil
}

func (s *service) ScheduleOnce(ctx context.Context, params OnceParams) (*models.ScheduledNotification, error) {
	entry, err := s.buildEntry(params.Kind, params.Content, params.Target, params.Priority, params.Channels, params.Metadata, params.EntityType, params.EntityID)
	if err != nil {
		return nil, err
	}
	if !params.ScheduledFor.After(s.now()) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "scheduledFor must be in the future")
	}
	entry.ScheduledFor = params.ScheduledFor.UTC()

	if err := s.repo.Create(ctx, entry); err != nil {
		return nil, persistError(err)
	}
	return entry, nil
}

func (s *service) ScheduleRecurring(ctx context.Context, params RecurringParams) (*models.ScheduledNotification, error) {
	entry, err := s.buildEntry(params.Kind, params.Content, params.Target, params.Priority, params.Channels, params.Metadata, params.EntityType, params.EntityID)
	if err != nil {
		return nil, err
	}
	if params.StartDate.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "startDate required")
	}
	pattern := strings.TrimSpace(params.RecurrencePattern)
	if pattern == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "recurrencePattern required")
	}
	// Reject unusable patterns before anything is persisted.
	if _, err := recurrence.Parse(pattern); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid recurrence pattern")
	}
	if params.RecurrenceEnd != nil && !params.RecurrenceEnd.After(params.StartDate) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "recurrenceEnd must be after startDate")
	}

	entry.ScheduledFor = params.StartDate.UTC()
	entry.Recurring = true
	entry.RecurrencePattern = &pattern
	if params.RecurrenceEnd != nil {
		end := params.RecurrenceEnd.UTC()
		entry.RecurrenceEnd = &end
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		return nil, persistError(err)
	}
	return entry, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.ScheduledNotification, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "schedule id required")
	}
	entry, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "schedule entry not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load schedule entry")
	}
	return entry, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	query := ListQuery{Limit: params.Limit}
	if params.Status != "" {
		status, err := enums.ParseNotificationStatus(params.Status)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		query.Status = &status
	}
	if params.Cursor != "" {
		cursor, err := pagination.Parse(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list schedule entries")
	}

	cursor := ""
	if next != nil {
		cursor = next.Encode()
	}
	return &ListResult{Items: rows, Cursor: cursor}, nil
}

// Cancel retires a pending or failed entry. Cancelling an already-cancelled
// entry succeeds without touching the row; processing and sent entries report
// a state conflict since delivery is either in flight or already done.
func (s *service) Cancel(ctx context.Context, id uuid.UUID) (*models.ScheduledNotification, error) {
	entry, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if entry.Status == enums.NotificationStatusCancelled {
		return entry, nil
	}
	if !entry.Status.Cancellable() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "schedule entry is "+string(entry.Status)).
			WithDetails(map[string]any{"status": entry.Status})
	}

	ok, err := s.repo.UpdateStatusIf(ctx, id, entry.Status, map[string]any{
		"status": enums.NotificationStatusCancelled,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel schedule entry")
	}
	if !ok {
		// Lost a race, likely against the dispatcher claiming the row.
		current, getErr := s.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		if current.Status == enums.NotificationStatusCancelled {
			return current, nil
		}
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "schedule entry is "+string(current.Status)).
			WithDetails(map[string]any{"status": current.Status})
	}

	return s.Get(ctx, id)
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "schedule id required")
	}
	rows, err := s.repo.Delete(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete schedule entry")
	}
	if rows == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "schedule entry not found")
	}
	return nil
}

// persistError maps constraint violations to validation errors so a bad write
// (both target columns set, duplicate id) reads as a client problem, not an
// outage.
func persistError(err error) error {
	if constraint := pkgerrors.ViolatedConstraint(err); constraint != "" {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "schedule entry rejected by database").
			WithDetails(map[string]any{"constraint": constraint})
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist schedule entry")
}

func (s *service) buildEntry(
	kind, content string,
	target Target,
	priority enums.NotificationPriority,
	channels []enums.DeliveryChannel,
	metadata json.RawMessage,
	entityType, entityID *string,
) (*models.ScheduledNotification, error) {
	normalizedKind := enums.NormalizeNotificationKind(kind)
	if normalizedKind == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "kind required")
	}
	if strings.TrimSpace(content) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "content required")
	}

	hasRecipient := target.RecipientID != nil && *target.RecipientID != uuid.Nil
	hasGroup := target.GroupID != nil && *target.GroupID != uuid.Nil
	if hasRecipient == hasGroup {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "exactly one of recipientId or groupId required")
	}

	if priority == "" {
		priority = enums.NotificationPriorityNormal
	}
	if !priority.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid priority")
	}

	if len(channels) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one delivery channel required")
	}
	channelList := make(dbtypes.ChannelList, 0, len(channels))
	for _, channel := range channels {
		if !channel.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid delivery channel "+string(channel))
		}
		if channelList.Contains(channel) {
			continue
		}
		channelList = append(channelList, channel)
	}

	entry := &models.ScheduledNotification{
		Kind:       normalizedKind,
		Content:    content,
		Priority:   priority,
		Channels:   channelList,
		Status:     enums.NotificationStatusPending,
		Metadata:   metadata,
		EntityType: entityType,
		EntityID:   entityID,
	}
	if hasRecipient {
		entry.RecipientID = target.RecipientID
	}
	if hasGroup {
		entry.GroupID = target.GroupID
	}
	return entry, nil
}
