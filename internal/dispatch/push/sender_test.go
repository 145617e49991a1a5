package push

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/circleup-app/circleup-backend/pkg/db/models"
	"github.com/circleup-app/circleup-backend/pkg/enums"
)

type fakeResult struct {
	id  string
	err error
}

func (r *fakeResult) Get(context.Context) (string, error) {
	return r.id, r.err
}

type fakePublisher struct {
	published []*gcppubsub.Message
	result    publishResult
}

func (p *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	p.published = append(p.published, msg)
	return p.result
}

func TestSendPublishesPayloadAndAttributes(t *testing.T) {
	recipient := uuid.New()
	entry := &models.ScheduledNotification{
		ID:           uuid.New(),
		Kind:         enums.NotificationKindMessage,
		Content:      "You have a new message",
		RecipientID:  &recipient,
		Priority:     enums.NotificationPriorityUrgent,
		ScheduledFor: time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC),
	}

	pub := &fakePublisher{result: &fakeResult{id: "server-id"}}
	sender := &Sender{pub: pub}

	if err := sender.Send(context.Background(), entry); err != nil {
		t.Fatalf("send: %v", err)
	}

	if len(pub.published) != 1 {
		t.Fatalf("expected one published message, got %d", len(pub.published))
	}
	msg := pub.published[0]

	var payload pushPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.NotificationID != entry.ID {
		t.Fatalf("unexpected notification id %s", payload.NotificationID)
	}
	if payload.RecipientID == nil || *payload.RecipientID != recipient {
		t.Fatalf("recipient not carried over")
	}
	if payload.Content != entry.Content {
		t.Fatalf("unexpected content %q", payload.Content)
	}

	if msg.Attributes["notification_id"] != entry.ID.String() {
		t.Fatalf("missing notification_id attribute")
	}
	if msg.Attributes["kind"] != "message" || msg.Attributes["priority"] != "urgent" {
		t.Fatalf("unexpected attributes %v", msg.Attributes)
	}
	if msg.Attributes["scheduled_for"] != entry.ScheduledFor.Format(time.RFC3339Nano) {
		t.Fatalf("unexpected scheduled_for attribute %q", msg.Attributes["scheduled_for"])
	}
}

func TestSendSurfacesPublishError(t *testing.T) {
	pub := &fakePublisher{result: &fakeResult{err: errors.New("topic gone")}}
	sender := &Sender{pub: pub}

	entry := &models.ScheduledNotification{ID: uuid.New(), Kind: enums.NotificationKindSystem}
	if err := sender.Send(context.Background(), entry); err == nil {
		t.Fatal("expected publish error to propagate")
	}
}

func TestSendNilResultFails(t *testing.T) {
	sender := &Sender{pub: &fakePublisher{}}

	entry := &models.ScheduledNotification{ID: uuid.New(), Kind: enums.NotificationKindSystem}
	if err := sender.Send(context.Background(), entry); err == nil {
		t.Fatal("expected error for nil publish result")
	}
}

func TestNewSenderRequiresPublisher(t *testing.T) {
	if _, err := NewSender(nil); err == nil {
		t.Fatal("expected error for nil publisher")
	}
}
