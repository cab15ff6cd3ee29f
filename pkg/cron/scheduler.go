// Package cron runs periodic maintenance jobs: a small job registry over
// robfig/cron, scheduling plain Go closures so any background maintenance
// (today, connection pool recycling) can run without inventing a new job
// type per task.
package cron

import (
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is a named, schedulable unit of maintenance work.
type Job struct {
	Name     string
	Schedule string // cron expression, e.g. "@every 1m"
	Run      func()
}

// Scheduler manages cron jobs.
type Scheduler struct {
	logger *zap.Logger
	cron   *cron.Cron
	jobs   map[string]Job
	mu     sync.RWMutex
}

// NewScheduler creates a cron scheduler.
func NewScheduler(logger *zap.Logger) *Scheduler {
	return &Scheduler{
		logger: logger,
		cron:   cron.New(),
		jobs:   make(map[string]Job),
	}
}

// Start begins the scheduler in the background.
func (s *Scheduler) Start() {
	s.logger.Info("starting cron scheduler")
	s.cron.Start()
}

// Stop stops the scheduler, waiting for any in-flight job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// AddJob registers and schedules job.
func (s *Scheduler) AddJob(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.cron.AddFunc(job.Schedule, func() {
		s.logger.Debug("running cron job", zap.String("name", job.Name))
		job.Run()
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for job %q: %w", job.Schedule, job.Name, err)
	}

	s.jobs[job.Name] = job
	s.logger.Info("added cron job", zap.String("name", job.Name), zap.String("schedule", job.Schedule), zap.Int("id", int(id)))
	return nil
}

// ListJobs returns every registered job.
func (s *Scheduler) ListJobs() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		list = append(list, j)
	}
	return list
}
