package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

type stubEngine struct {
	overdue   atomic.Int32
	expired   atomic.Int32
	reminders atomic.Int32
	flush     atomic.Int32

	overdueErr error
}

func (e *stubEngine) SweepOverdue(_ context.Context) error {
	e.overdue.Add(1)
	return e.overdueErr
}

func (e *stubEngine) SweepExpiredReservations(_ context.Context) error {
	e.expired.Add(1)
	return nil
}

func (e *stubEngine) SendOverdueReminders(_ context.Context) error {
	e.reminders.Add(1)
	return nil
}

func (e *stubEngine) FlushPendingNotifications(_ context.Context) error {
	e.flush.Add(1)
	return nil
}

func TestScheduler_RunsAllTasksOnce(t *testing.T) {
	engine := &stubEngine{}
	s := NewScheduler(engine, zap.NewNop(), time.Hour)

	s.runOnce(context.Background())

	if engine.overdue.Load() != 1 || engine.expired.Load() != 1 ||
		engine.reminders.Load() != 1 || engine.flush.Load() != 1 {
		t.Fatalf("expected each task to run once: %d %d %d %d",
			engine.overdue.Load(), engine.expired.Load(),
			engine.reminders.Load(), engine.flush.Load())
	}
}

func TestScheduler_TaskErrorDoesNotStopOthers(t *testing.T) {
	engine := &stubEngine{overdueErr: errors.New("db unavailable")}
	s := NewScheduler(engine, zap.NewNop(), time.Hour)

	s.runOnce(context.Background())

	if engine.flush.Load() != 1 {
		t.Fatalf("tasks after a failed one must still run")
	}
}

func TestScheduler_StopsOnContextCancel(t *testing.T) {
	engine := &stubEngine{}
	s := NewScheduler(engine, zap.NewNop(), time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not stop after context cancel")
	}

	if engine.overdue.Load() < 1 {
		t.Fatalf("expected at least one sweep before cancel")
	}
}
