package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/circleup-app/circleup-backend/pkg/enums"
)

// InboxItem stores delivered in-app notification payloads scoped to users.
type InboxItem struct {
	ID          uuid.UUID              `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID      *uuid.UUID             `gorm:"type:uuid;index" json:"userId,omitempty"`
	GroupID     *uuid.UUID             `gorm:"type:uuid;index" json:"groupId,omitempty"`
	Kind        enums.NotificationKind `gorm:"type:text;not null" json:"kind"`
	Content     string                 `gorm:"type:text;not null" json:"content"`
	EntityType  *string                `gorm:"type:text" json:"entityType,omitempty"`
	EntityID    *string                `gorm:"type:text" json:"entityId,omitempty"`
	Metadata    json.RawMessage        `gorm:"type:jsonb" json:"metadata,omitempty"`
	DeliveredBy uuid.UUID              `gorm:"type:uuid;not null" json:"deliveredBy"`
	ReadAt      *time.Time             `gorm:"type:timestamptz" json:"readAt,omitempty"`
	CreatedAt   time.Time              `gorm:"type:timestamptz;autoCreateTime" json:"createdAt"`
}
