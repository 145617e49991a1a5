package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/circleup-app/circleup-backend/pkg/db/types"
	"github.com/circleup-app/circleup-backend/pkg/enums"
)

// ScheduledNotification is a unit of future delivery work. One-time entries run
// once and settle in a terminal status; recurring entries reuse the same row,
// with scheduled_for advanced after each fire until cancelled or past
// recurrence_end.
type ScheduledNotification struct {
	ID                uuid.UUID                  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Kind              enums.NotificationKind     `gorm:"type:text;not null" json:"kind"`
	Content           string                     `gorm:"type:text;not null" json:"content"`
	RecipientID       *uuid.UUID                 `gorm:"type:uuid" json:"recipientId,omitempty"`
	GroupID           *uuid.UUID                 `gorm:"type:uuid" json:"groupId,omitempty"`
	Priority          enums.NotificationPriority `gorm:"type:notification_priority;not null;default:'normal'" json:"priority"`
	Channels          dbtypes.ChannelList        `gorm:"type:text[];not null" json:"channels"`
	Status            enums.NotificationStatus   `gorm:"type:notification_status;not null;default:'pending';index:idx_scheduled_notifications_due,priority:1" json:"status"`
	ScheduledFor      time.Time                  `gorm:"type:timestamptz;not null;index:idx_scheduled_notifications_due,priority:2" json:"scheduledFor"`
	Recurring         bool                       `gorm:"not null;default:false" json:"recurring"`
	RecurrencePattern *string                    `gorm:"type:text" json:"recurrencePattern,omitempty"`
	RecurrenceEnd     *time.Time                 `gorm:"type:timestamptz" json:"recurrenceEnd,omitempty"`
	AttemptCount      int                        `gorm:"not null;default:0" json:"attemptCount"`
	LastError         *string                    `gorm:"type:text" json:"lastError,omitempty"`
	Metadata          json.RawMessage            `gorm:"type:jsonb" json:"metadata,omitempty"`
	EntityType        *string                    `gorm:"type:text" json:"entityType,omitempty"`
	EntityID          *string                    `gorm:"type:text" json:"entityId,omitempty"`
	CreatedAt         time.Time                  `gorm:"type:timestamptz;autoCreateTime" json:"createdAt"`
	UpdatedAt         time.Time                  `gorm:"type:timestamptz;autoUpdateTime" json:"updatedAt"`
}

// RecurrenceEnded reports whether the recurring series is past its end bound.
func (n *ScheduledNotification) RecurrenceEnded(now time.Time) bool {
	return n.RecurrenceEnd != nil && !n.RecurrenceEnd.After(now)
}
