package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/circleup-app/circleup-backend/internal/recurrence"
	"github.com/circleup-app/circleup-backend/internal/scheduler"
	"github.com/circleup-app/circleup-backend/pkg/config"
	"github.com/circleup-app/circleup-backend/pkg/db/models"
	"github.com/circleup-app/circleup-backend/pkg/enums"
	"github.com/circleup-app/circleup-backend/pkg/logger"
	"github.com/circleup-app/circleup-backend/pkg/metrics"
)

// Sender delivers one notification over a single channel.
type Sender interface {
	Send(ctx context.Context, entry *models.ScheduledNotification) error
}

// Report summarizes one dispatch batch.
type Report struct {
	Claimed        int          `json:"claimed"`
	Sent           int          `json:"sent"`
	Failed         int          `json:"failed"`
	Rescheduled    int          `json:"rescheduled"`
	TerminalFailed int          `json:"terminalFailed"`
	Released       int64        `json:"released"`
	Errors         []EntryError `json:"errors,omitempty"`
	StartedAt      time.Time    `json:"startedAt"`
	DurationMS     int64        `json:"durationMs"`
}

// EntryError records a per-entry delivery problem without failing the batch.
type EntryError struct {
	NotificationID uuid.UUID `json:"notificationId"`
	Message        string    `json:"message"`
}

// ProcessorParams configure the dispatch processor.
type ProcessorParams struct {
	Config  config.DispatchConfig
	Logger  *logger.Logger
	Repo    scheduler.Repository
	Senders map[enums.DeliveryChannel]Sender
	Metrics *metrics.DispatchMetrics
}

// Processor drains due notifications: it reclaims stale work, claims a batch of
// due pending entries, fans each entry out to its channel senders, and settles
// every claimed row in exactly one of sent, pending (retry or reschedule), or
// failed.
type Processor struct {
	cfg     config.DispatchConfig
	logg    *logger.Logger
	repo    scheduler.Repository
	senders map[enums.DeliveryChannel]Sender
	metrics *metrics.DispatchMetrics
	now     func() time.Time
}

// NewProcessor builds a dispatch processor.
func NewProcessor(params ProcessorParams) (*Processor, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Repo == nil {
		return nil, errors.New("schedule repository is required")
	}
	if len(params.Senders) == 0 {
		return nil, errors.New("at least one channel sender is required")
	}

	cfg := params.Config
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.StalenessThreshold <= 0 {
		cfg.StalenessThreshold = 5 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Minute
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = time.Hour
	}

	return &Processor{
		cfg:     cfg,
		logg:    params.Logger,
		repo:    params.Repo,
		senders: params.Senders,
		metrics: params.Metrics,
		now:     time.Now,
	}, nil
}

// ProcessDue runs one dispatch batch. The trigger label distinguishes the cron
// endpoint from the background worker in logs and metrics.
func (p *Processor) ProcessDue(ctx context.Context, trigger string) (*Report, error) {
	started := time.Now()
	now := p.now().UTC()
	report := &Report{StartedAt: now}
	ctx = p.logg.WithField(ctx, "trigger", trigger)

	released, err := p.repo.ReleaseStale(ctx, now.Add(-p.cfg.StalenessThreshold))
	if err != nil {
		p.metrics.IncBatch(trigger, "error")
		return nil, fmt.Errorf("release stale claims: %w", err)
	}
	report.Released = released
	if released > 0 {
		p.logg.Warn(p.logg.WithField(ctx, "released", released), "returned stale processing entries to pending")
	}

	claimed, err := p.repo.ClaimDue(ctx, now, p.cfg.BatchSize)
	if err != nil {
		p.metrics.IncBatch(trigger, "error")
		return nil, fmt.Errorf("claim due entries: %w", err)
	}
	report.Claimed = len(claimed)

	if len(claimed) > 0 {
		p.runPool(ctx, claimed, now, report)
	}

	report.DurationMS = time.Since(started).Milliseconds()
	p.metrics.ObserveBatch(trigger, time.Duration(report.DurationMS)*time.Millisecond)
	p.metrics.AddOutcome(metrics.OutcomeSent, report.Sent)
	p.metrics.AddOutcome(metrics.OutcomeFailed, report.Failed)
	p.metrics.AddOutcome(metrics.OutcomeRescheduled, report.Rescheduled)
	p.metrics.AddOutcome(metrics.OutcomeTerminalFailed, report.TerminalFailed)
	p.metrics.AddOutcome(metrics.OutcomeReleased, int(report.Released))
	p.metrics.IncBatch(trigger, "ok")

	summaryCtx := p.logg.WithFields(ctx, map[string]any{
		"claimed":         report.Claimed,
		"sent":            report.Sent,
		"failed":          report.Failed,
		"rescheduled":     report.Rescheduled,
		"terminal_failed": report.TerminalFailed,
		"released":        report.Released,
		"duration_ms":     report.DurationMS,
	})
	p.logg.Info(summaryCtx, "dispatch batch complete")
	return report, nil
}

func (p *Processor) runPool(ctx context.Context, entries []models.ScheduledNotification, now time.Time, report *Report) {
	var mu sync.Mutex
	var wg sync.WaitGroup
	work := make(chan models.ScheduledNotification)

	workers := p.cfg.Workers
	if workers > len(entries) {
		workers = len(entries)
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for entry := range work {
				outcome, entryErr := p.processEntry(ctx, entry, now)
				mu.Lock()
				switch outcome {
				case metrics.OutcomeSent:
					report.Sent++
				case metrics.OutcomeFailed:
					report.Failed++
				case metrics.OutcomeRescheduled:
					report.Rescheduled++
				case metrics.OutcomeTerminalFailed:
					report.TerminalFailed++
				}
				if entryErr != nil {
					report.Errors = append(report.Errors, *entryErr)
				}
				mu.Unlock()
			}
		}()
	}

	for _, entry := range entries {
		work <- entry
	}
	close(work)
	wg.Wait()
}

// processEntry delivers one claimed entry and settles its row. The returned
// outcome is one of the metrics outcome labels, or empty when the row was
// stolen from under us.
func (p *Processor) processEntry(ctx context.Context, entry models.ScheduledNotification, now time.Time) (string, *EntryError) {
	ctx = p.logg.WithNotificationID(ctx, entry.ID.String())
	attempt := entry.AttemptCount + 1

	delivered, failures := p.fanOut(ctx, &entry)
	if delivered {
		return p.settleSuccess(ctx, entry, attempt, failures)
	}
	return p.settleFailure(ctx, entry, now, attempt, failures)
}

// fanOut sends over every configured channel concurrently. One reachable
// channel is enough to count the notification as delivered.
func (p *Processor) fanOut(ctx context.Context, entry *models.ScheduledNotification) (bool, []string) {
	type channelResult struct {
		channel enums.DeliveryChannel
		err     error
	}

	results := make(chan channelResult, len(entry.Channels))
	for _, channel := range entry.Channels {
		go func(channel enums.DeliveryChannel) {
			sender, ok := p.senders[channel]
			if !ok {
				results <- channelResult{channel: channel, err: fmt.Errorf("no sender registered for channel %s", channel)}
				return
			}
			sendCtx, cancel := context.WithTimeout(ctx, p.cfg.SendTimeout)
			defer cancel()
			results <- channelResult{channel: channel, err: sender.Send(sendCtx, entry)}
		}(channel)
	}

	delivered := false
	var failures []string
	for range entry.Channels {
		result := <-results
		if result.err == nil {
			delivered = true
			continue
		}
		failures = append(failures, fmt.Sprintf("%s: %s", result.channel, result.err.Error()))
	}
	return delivered, failures
}

func (p *Processor) settleSuccess(ctx context.Context, entry models.ScheduledNotification, attempt int, failures []string) (string, *EntryError) {
	var lastError *string
	if len(failures) > 0 {
		joined := "partial delivery: " + strings.Join(failures, "; ")
		lastError = &joined
		p.logg.Warn(p.logg.WithField(ctx, "failures", failures), "notification delivered on a subset of channels")
	}

	if entry.Recurring {
		return p.advanceSeries(ctx, entry, lastError)
	}

	ok, err := p.repo.UpdateStatusIf(ctx, entry.ID, enums.NotificationStatusProcessing, map[string]any{
		"status":        enums.NotificationStatusSent,
		"attempt_count": attempt,
		"last_error":    lastError,
	})
	if err != nil {
		return metrics.OutcomeSent, p.entryError(ctx, entry.ID, fmt.Errorf("mark sent: %w", err))
	}
	if !ok {
		return "", p.lostClaim(ctx, entry.ID)
	}
	p.logg.Info(ctx, "notification sent")
	return metrics.OutcomeSent, nil
}

// advanceSeries moves a recurring entry to its next occurrence, or retires the
// series when no further occurrence exists. The next occurrence is anchored on
// the entry's own fire time, not the batch clock, so a late batch leaves missed
// occurrences immediately due instead of skipping them.
func (p *Processor) advanceSeries(ctx context.Context, entry models.ScheduledNotification, lastError *string) (string, *EntryError) {
	schedule, err := recurrence.Parse(derefString(entry.RecurrencePattern))
	if err != nil {
		// The stored pattern no longer parses; the series cannot continue.
		msg := fmt.Sprintf("recurrence pattern unusable: %s", err.Error())
		return p.retireSeries(ctx, entry, &msg)
	}

	next, err := schedule.Next(entry.ScheduledFor.UTC())
	if errors.Is(err, recurrence.ErrNotRepresentable) {
		return p.retireSeries(ctx, entry, lastError)
	}
	if err != nil {
		return metrics.OutcomeSent, p.entryError(ctx, entry.ID, fmt.Errorf("compute next occurrence: %w", err))
	}
	if entry.RecurrenceEnd != nil && next.After(*entry.RecurrenceEnd) {
		return p.retireSeries(ctx, entry, lastError)
	}

	ok, err := p.repo.UpdateStatusIf(ctx, entry.ID, enums.NotificationStatusProcessing, map[string]any{
		"status":        enums.NotificationStatusPending,
		"scheduled_for": next,
		"attempt_count": 0,
		"last_error":    lastError,
	})
	if err != nil {
		return metrics.OutcomeRescheduled, p.entryError(ctx, entry.ID, fmt.Errorf("reschedule series: %w", err))
	}
	if !ok {
		return "", p.lostClaim(ctx, entry.ID)
	}
	p.logg.Info(p.logg.WithField(ctx, "next_occurrence", next), "recurring notification rescheduled")
	return metrics.OutcomeRescheduled, nil
}

// retireSeries marks a recurring entry sent with no further occurrences.
func (p *Processor) retireSeries(ctx context.Context, entry models.ScheduledNotification, lastError *string) (string, *EntryError) {
	ok, err := p.repo.UpdateStatusIf(ctx, entry.ID, enums.NotificationStatusProcessing, map[string]any{
		"status":     enums.NotificationStatusSent,
		"last_error": lastError,
	})
	if err != nil {
		return metrics.OutcomeSent, p.entryError(ctx, entry.ID, fmt.Errorf("retire series: %w", err))
	}
	if !ok {
		return "", p.lostClaim(ctx, entry.ID)
	}
	p.logg.Info(ctx, "recurring series complete")
	return metrics.OutcomeSent, nil
}

func (p *Processor) settleFailure(ctx context.Context, entry models.ScheduledNotification, now time.Time, attempt int, failures []string) (string, *EntryError) {
	joined := strings.Join(failures, "; ")
	failCtx := p.logg.WithFields(ctx, map[string]any{
		"attempt_count": attempt,
		"error":         joined,
	})

	if attempt >= p.cfg.MaxAttempts {
		ok, err := p.repo.UpdateStatusIf(ctx, entry.ID, enums.NotificationStatusProcessing, map[string]any{
			"status":        enums.NotificationStatusFailed,
			"attempt_count": attempt,
			"last_error":    joined,
		})
		if err != nil {
			return metrics.OutcomeTerminalFailed, p.entryError(ctx, entry.ID, fmt.Errorf("mark failed: %w", err))
		}
		if !ok {
			return "", p.lostClaim(ctx, entry.ID)
		}
		p.logg.Error(failCtx, "notification failed permanently", errors.New(joined))
		return metrics.OutcomeTerminalFailed, &EntryError{NotificationID: entry.ID, Message: joined}
	}

	retryAt := now.Add(p.backoff(attempt))
	ok, err := p.repo.UpdateStatusIf(ctx, entry.ID, enums.NotificationStatusProcessing, map[string]any{
		"status":        enums.NotificationStatusPending,
		"scheduled_for": retryAt,
		"attempt_count": attempt,
		"last_error":    joined,
	})
	if err != nil {
		return metrics.OutcomeFailed, p.entryError(ctx, entry.ID, fmt.Errorf("schedule retry: %w", err))
	}
	if !ok {
		return "", p.lostClaim(ctx, entry.ID)
	}
	p.logg.Warn(p.logg.WithField(failCtx, "retry_at", retryAt), "notification delivery failed; retry scheduled")
	return metrics.OutcomeFailed, &EntryError{NotificationID: entry.ID, Message: joined}
}

// backoff doubles the base delay per prior attempt, capped.
func (p *Processor) backoff(attempt int) time.Duration {
	delay := p.cfg.BackoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.cfg.BackoffCap {
			return p.cfg.BackoffCap
		}
	}
	if delay > p.cfg.BackoffCap {
		return p.cfg.BackoffCap
	}
	return delay
}

func (p *Processor) entryError(ctx context.Context, id uuid.UUID, err error) *EntryError {
	p.logg.Error(ctx, "dispatch entry settlement failed", err)
	return &EntryError{NotificationID: id, Message: err.Error()}
}

func (p *Processor) lostClaim(ctx context.Context, id uuid.UUID) *EntryError {
	// Another actor moved the row while we held it, likely a stale-claim sweep.
	p.logg.Warn(ctx, "claim lost before settlement; leaving row to its new owner")
	return &EntryError{NotificationID: id, Message: "claim lost before settlement"}
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
