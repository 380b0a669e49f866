package backup

import (
	"context"
	"testing"
	"time"

	"github.com/fvaldez/recordvault/internal/testutil"
)

func TestScheduler_EmptyScheduleIdles(t *testing.T) {
	env := newTestEnv(t)
	s := NewScheduler(env.manager, env.manager.logger)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s.Running() {
		t.Error("scheduler running with no schedule configured")
	}
}

func TestScheduler_InvalidExpression(t *testing.T) {
	env := newTestEnv(t)
	env.settings.schedule = "not a cron line"
	s := NewScheduler(env.manager, env.manager.logger)

	if err := s.Start(context.Background()); err == nil {
		t.Fatal("Start accepted an invalid schedule")
	}
	if s.Running() {
		t.Error("scheduler running after rejected schedule")
	}
}

func TestScheduler_StartStop(t *testing.T) {
	env := newTestEnv(t)
	env.settings.schedule = "@hourly"
	s := NewScheduler(env.manager, testutil.Logger())

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !s.Running() {
		t.Fatal("scheduler not running after Start")
	}

	s.Stop()
	if s.Running() {
		t.Error("scheduler still running after Stop")
	}

	// Stop is idempotent.
	s.Stop()
}

func TestScheduler_StopsOnContextCancel(t *testing.T) {
	env := newTestEnv(t)
	env.settings.schedule = "@hourly"
	s := NewScheduler(env.manager, env.manager.logger)

	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()

	deadline := time.After(2 * time.Second)
	for s.Running() {
		select {
		case <-deadline:
			t.Fatal("scheduler did not stop after context cancellation")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
