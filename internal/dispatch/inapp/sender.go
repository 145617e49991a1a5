package inapp

import (
	"context"
	"errors"
	"fmt"

	"github.com/circleup-app/circleup-backend/pkg/db/models"
)

// inboxWriter is the slice of the inbox repository the sender needs.
type inboxWriter interface {
	Create(ctx context.Context, item *models.InboxItem) error
}

// Sender materializes notifications as inbox rows the feed endpoints read back.
type Sender struct {
	repo inboxWriter
}

// NewSender builds an in-app sender on the inbox repository.
func NewSender(repo inboxWriter) (*Sender, error) {
	if repo == nil {
		return nil, errors.New("inbox repository is required")
	}
	return &Sender{repo: repo}, nil
}

// Send writes one inbox item for the notification's target.
func (s *Sender) Send(ctx context.Context, entry *models.ScheduledNotification) error {
	item := &models.InboxItem{
		UserID:      entry.RecipientID,
		GroupID:     entry.GroupID,
		Kind:        entry.Kind,
		Content:     entry.Content,
		EntityType:  entry.EntityType,
		EntityID:    entry.EntityID,
		Metadata:    entry.Metadata,
		DeliveredBy: entry.ID,
	}
	if err := s.repo.Create(ctx, item); err != nil {
		return fmt.Errorf("write inbox item: %w", err)
	}
	return nil
}
