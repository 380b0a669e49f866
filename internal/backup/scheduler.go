package backup

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler runs automatic backups on a cron schedule taken from the
// settings collaborator. A failed scheduled backup is logged and the
// schedule keeps running; backups are best-effort protection.
type Scheduler struct {
	manager *Manager
	cron    *cron.Cron
	logger  *zap.Logger

	mu      sync.Mutex
	running bool
}

// NewScheduler creates a scheduler for the given backup manager.
func NewScheduler(m *Manager, logger *zap.Logger) *Scheduler {
	return &Scheduler{manager: m, cron: cron.New(), logger: logger}
}

// Start begins scheduled backups. An empty schedule disables the
// scheduler; an invalid cron expression is an error. The scheduler stops
// itself when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	schedule := s.manager.settings.BackupSchedule()
	if schedule == "" {
		s.logger.Info("backup schedule not configured, scheduler idle")
		return nil
	}

	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid backup schedule %q: %w", schedule, err)
	}

	_, err := s.cron.AddFunc(schedule, func() {
		s.runScheduled(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule backups: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("backup scheduler started", zap.String("schedule", schedule))

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

func (s *Scheduler) runScheduled(ctx context.Context) {
	rec, err := s.manager.Create(ctx, KindScheduled, "scheduled backup", nil)
	if err != nil {
		s.logger.Error("scheduled backup failed", zap.Error(err))
		return
	}
	s.logger.Info("scheduled backup completed", zap.String("file", rec.Filename))
}

// Stop halts the schedule and waits for a running backup to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("backup scheduler stopped")
}

// Running reports whether the schedule is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
