// Package scheduler запускает периодические задачи сервиса.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"market-system/internal/logger"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Job периодическая задача. Каждая задача крутится в своей горутине,
// общего состояния между задачами нет.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler запускает задачи по тикерам
type Scheduler struct {
	jobs       []Job
	runOnStart bool
	log        *logger.Logger
}

// New создаёт планировщик. runOnStart выполняет каждую задачу сразу при запуске.
func New(log *logger.Logger, runOnStart bool, jobs ...Job) *Scheduler {
	return &Scheduler{
		jobs:       jobs,
		runOnStart: runOnStart,
		log:        log,
	}
}

// Run блокируется до отмены ctx. Ошибки задач логируются и не останавливают остальные задачи.
func (s *Scheduler) Run(ctx context.Context) error {
	for _, job := range s.jobs {
		if job.Interval <= 0 {
			return fmt.Errorf("job %s: interval must be positive", job.Name)
		}
		if job.Run == nil {
			return fmt.Errorf("job %s: run func is nil", job.Name)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, job := range s.jobs {
		g.Go(func() error {
			s.loop(ctx, job)
			return nil
		})
	}
	return g.Wait()
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	entry := s.log.WithFields(logrus.Fields{
		"job":      job.Name,
		"interval": job.Interval.String(),
	})
	entry.Info("Scheduled job started")

	if s.runOnStart {
		s.runOnce(ctx, job, entry)
	}

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			entry.Info("Scheduled job stopped")
			return
		case <-ticker.C:
			s.runOnce(ctx, job, entry)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, job Job, entry *logrus.Entry) {
	started := time.Now()
	if err := job.Run(ctx); err != nil {
		entry.WithError(err).Error("Scheduled job failed")
		return
	}
	entry.WithField("duration", time.Since(started).String()).Debug("Scheduled job finished")
}
