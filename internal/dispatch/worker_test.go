package dispatch

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/circleup-app/circleup-backend/pkg/enums"
	"github.com/circleup-app/circleup-backend/pkg/logger"
)

type fakeLock struct {
	held     bool
	acquires int
	releases int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	f.acquires++
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.held = false
	f.releases++
	return nil
}

type fakeRetention struct {
	calls  int
	cutoff time.Time
}

func (f *fakeRetention) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	f.calls++
	f.cutoff = cutoff
	return 4, nil
}

func newTestWorker(t *testing.T, lock Lock, retention RetentionStore) *Worker {
	t.Helper()
	repo := &fakeRepo{updateResult: true}
	processor := newTestProcessor(t, repo, map[enums.DeliveryChannel]Sender{
		enums.DeliveryChannelInApp: &fakeSender{},
	})
	worker, err := NewWorker(WorkerParams{
		Logger:        logger.New(logger.Options{ServiceName: "worker-test", Output: io.Discard}),
		Processor:     processor,
		Lock:          lock,
		Retention:     retention,
		RetentionDays: 90,
	})
	if err != nil {
		t.Fatalf("NewWorker failed: %v", err)
	}
	return worker
}

func TestWorkerCycleAcquiresAndReleasesLock(t *testing.T) {
	lock := &fakeLock{}
	worker := newTestWorker(t, lock, nil)

	if err := worker.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle failed: %v", err)
	}
	if lock.acquires != 1 || lock.releases != 1 {
		t.Fatalf("expected one acquire/release pair, got %d/%d", lock.acquires, lock.releases)
	}
}

func TestWorkerCycleSkipsWhenLockHeld(t *testing.T) {
	lock := &fakeLock{held: true}
	worker := newTestWorker(t, lock, nil)

	if err := worker.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle failed: %v", err)
	}
	if lock.releases != 0 {
		t.Fatal("a skipped cycle must not release a lock it does not own")
	}
}

func TestWorkerSweepsRetentionOncePerDay(t *testing.T) {
	lock := &fakeLock{}
	retention := &fakeRetention{}
	worker := newTestWorker(t, lock, retention)

	if err := worker.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle failed: %v", err)
	}
	if err := worker.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle failed: %v", err)
	}
	if retention.calls != 1 {
		t.Fatalf("expected a single retention sweep, got %d", retention.calls)
	}
	expected := time.Now().UTC().AddDate(0, 0, -90)
	if retention.cutoff.Sub(expected) > time.Minute || expected.Sub(retention.cutoff) > time.Minute {
		t.Fatalf("unexpected retention cutoff %s", retention.cutoff)
	}
}
