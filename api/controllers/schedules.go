package controllers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/circleup-app/circleup-backend/api/responses"
	"github.com/circleup-app/circleup-backend/api/validators"
	"github.com/circleup-app/circleup-backend/internal/scheduler"
	"github.com/circleup-app/circleup-backend/pkg/enums"
	pkgerrors "github.com/circleup-app/circleup-backend/pkg/errors"
	"github.com/circleup-app/circleup-backend/pkg/logger"
)

type createScheduleRequest struct {
	Kind         string          `json:"kind" validate:"required"`
	Content      string          `json:"content" validate:"required"`
	ScheduledFor time.Time       `json:"scheduledFor" validate:"required"`
	RecipientID  *uuid.UUID      `json:"recipientId,omitempty"`
	GroupID      *uuid.UUID      `json:"groupId,omitempty"`
	Priority     string          `json:"priority,omitempty"`
	Channels     []string        `json:"channels" validate:"required,min=1"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	EntityType   *string         `json:"entityType,omitempty"`
	EntityID     *string         `json:"entityId,omitempty"`
}

type createRecurringScheduleRequest struct {
	Kind              string          `json:"kind" validate:"required"`
	Content           string          `json:"content" validate:"required"`
	StartDate         time.Time       `json:"startDate" validate:"required"`
	RecurrencePattern string          `json:"recurrencePattern" validate:"required"`
	RecurrenceEnd     *time.Time      `json:"recurrenceEnd,omitempty"`
	RecipientID       *uuid.UUID      `json:"recipientId,omitempty"`
	GroupID           *uuid.UUID      `json:"groupId,omitempty"`
	Priority          string          `json:"priority,omitempty"`
	Channels          []string        `json:"channels" validate:"required,min=1"`
	Metadata          json.RawMessage `json:"metadata,omitempty"`
	EntityType        *string         `json:"entityType,omitempty"`
	EntityID          *string         `json:"entityId,omitempty"`
}

// CreateSchedule registers a one-time notification.
func CreateSchedule(svc scheduler.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body createScheduleRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		channels, err := parseChannels(body.Channels)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entry, err := svc.ScheduleOnce(r.Context(), scheduler.OnceParams{
			Kind:         body.Kind,
			Content:      body.Content,
			ScheduledFor: body.ScheduledFor,
			Target:       scheduler.Target{RecipientID: body.RecipientID, GroupID: body.GroupID},
			Priority:     enums.NotificationPriority(body.Priority),
			Channels:     channels,
			Metadata:     body.Metadata,
			EntityType:   body.EntityType,
			EntityID:     body.EntityID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, entry)
	}
}

// CreateRecurringSchedule registers a recurring notification series.
func CreateRecurringSchedule(svc scheduler.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body createRecurringScheduleRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		channels, err := parseChannels(body.Channels)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entry, err := svc.ScheduleRecurring(r.Context(), scheduler.RecurringParams{
			Kind:              body.Kind,
			Content:           body.Content,
			StartDate:         body.StartDate,
			RecurrencePattern: body.RecurrencePattern,
			RecurrenceEnd:     body.RecurrenceEnd,
			Target:            scheduler.Target{RecipientID: body.RecipientID, GroupID: body.GroupID},
			Priority:          enums.NotificationPriority(body.Priority),
			Channels:          channels,
			Metadata:          body.Metadata,
			EntityType:        body.EntityType,
			EntityID:          body.EntityID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, entry)
	}
}

// GetSchedule returns one schedule entry by id.
func GetSchedule(svc scheduler.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := scheduleID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		entry, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, entry)
	}
}

// ListSchedules returns paginated schedule entries, optionally filtered by status.
func ListSchedules(svc scheduler.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params := scheduler.ListParams{
			Status: strings.TrimSpace(r.URL.Query().Get("status")),
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}

		if limitStr := strings.TrimSpace(r.URL.Query().Get("limit")); limitStr != "" {
			value, err := strconv.Atoi(limitStr)
			if err != nil || value <= 0 {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "limit must be a positive integer"))
				return
			}
			params.Limit = value
		}

		result, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// CancelSchedule retires a pending or failed entry.
func CancelSchedule(svc scheduler.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := scheduleID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		entry, err := svc.Cancel(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, entry)
	}
}

// DeleteSchedule removes an entry permanently.
func DeleteSchedule(svc scheduler.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := scheduleID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "deleted"})
	}
}

func scheduleID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "scheduleId")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid schedule id")
	}
	return id, nil
}

func parseChannels(raw []string) ([]enums.DeliveryChannel, error) {
	channels := make([]enums.DeliveryChannel, 0, len(raw))
	for _, value := range raw {
		channel, err := enums.ParseDeliveryChannel(value)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid delivery channel")
		}
		channels = append(channels, channel)
	}
	return channels, nil
}
