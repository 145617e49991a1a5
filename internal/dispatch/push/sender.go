package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/circleup-app/circleup-backend/pkg/db/models"
)

// publisher abstracts the Pub/Sub handle so tests can stub delivery.
type publisher interface {
	Publish(ctx context.Context, msg *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(ctx context.Context) (string, error)
}

// Sender hands push notifications to the delivery pipeline via Pub/Sub. The
// downstream consumer owns device token lookup and APNS/FCM fan-out.
type Sender struct {
	pub publisher
}

// NewSender builds a push sender on the given Pub/Sub publisher.
func NewSender(pub *gcppubsub.Publisher) (*Sender, error) {
	if pub == nil {
		return nil, errors.New("push publisher is required")
	}
	return &Sender{pub: &gcpPublisher{Publisher: pub}}, nil
}

type pushPayload struct {
	NotificationID uuid.UUID       `json:"notificationId"`
	Kind           string          `json:"kind"`
	Content        string          `json:"content"`
	Priority       string          `json:"priority"`
	RecipientID    *uuid.UUID      `json:"recipientId,omitempty"`
	GroupID        *uuid.UUID      `json:"groupId,omitempty"`
	EntityType     *string         `json:"entityType,omitempty"`
	EntityID       *string         `json:"entityId,omitempty"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
}

// Send publishes one notification and waits for the server ack.
func (s *Sender) Send(ctx context.Context, entry *models.ScheduledNotification) error {
	payload := pushPayload{
		NotificationID: entry.ID,
		Kind:           string(entry.Kind),
		Content:        entry.Content,
		Priority:       string(entry.Priority),
		RecipientID:    entry.RecipientID,
		GroupID:        entry.GroupID,
		EntityType:     entry.EntityType,
		EntityID:       entry.EntityID,
		Metadata:       entry.Metadata,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode push payload: %w", err)
	}

	msg := &gcppubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"notification_id": entry.ID.String(),
			"kind":            string(entry.Kind),
			"priority":        string(entry.Priority),
			"scheduled_for":   entry.ScheduledFor.Format(time.RFC3339Nano),
		},
	}

	result := s.pub.Publish(ctx, msg)
	if result == nil {
		return errors.New("publisher returned nil result")
	}
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish push notification: %w", err)
	}
	return nil
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return p.Publisher.Publish(ctx, msg)
}
