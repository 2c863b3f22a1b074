// Package scheduler runs a job on a wall-clock schedule.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mtzanidakis/convoy/internal/schedule"
)

// Job is invoked once per due time.
type Job func(ctx context.Context, at time.Time)

type Scheduler struct {
	name     string
	job      Job
	reloadCh chan struct{}

	mu    sync.Mutex
	sched *schedule.Schedule
}

func New(name string, sched *schedule.Schedule, job Job) *Scheduler {
	return &Scheduler{
		name:     name,
		job:      job,
		sched:    sched,
		reloadCh: make(chan struct{}, 1),
	}
}

// UpdateSchedule swaps the schedule and signals the run loop to re-arm.
func (s *Scheduler) UpdateSchedule(sched *schedule.Schedule) {
	s.mu.Lock()
	s.sched = sched
	s.mu.Unlock()

	select {
	case s.reloadCh <- struct{}{}:
	default:
	}
}

func (s *Scheduler) schedule() *schedule.Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sched
}

// Start blocks until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	arm := func(ref time.Time) {
		next, err := s.schedule().Next(ref)
		if err != nil {
			timer.Stop()
			slog.Error("scheduler cannot compute next run", "name", s.name, "error", err)
			return
		}
		timer.Reset(time.Until(next))
		slog.Debug("scheduler armed", "name", s.name, "next", next)
	}

	arm(time.Now())
	slog.Info("scheduler started", "name", s.name, "schedule", s.schedule().String())

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped", "name", s.name)
			return
		case <-s.reloadCh:
			arm(time.Now())
			slog.Info("scheduler reloaded", "name", s.name, "schedule", s.schedule().String())
		case at := <-timer.C:
			s.job(ctx, at)
			arm(at)
		}
	}
}
