package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Task is one run of a scheduled job.
type Task func(ctx context.Context) error

// Scheduler wraps a gocron scheduler for periodic housekeeping.
type Scheduler struct {
	scheduler gocron.Scheduler
	logger    *log.Logger
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewScheduler creates a scheduler. A nil logger silences job failures.
func NewScheduler(logger *log.Logger) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("jobs: create scheduler: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{scheduler: s, logger: logger, ctx: ctx, cancel: cancel}, nil
}

// Every runs task at a fixed interval, starting immediately. Overlapping runs are skipped.
func (s *Scheduler) Every(name string, interval time.Duration, task Task) (string, error) {
	if interval <= 0 {
		return "", fmt.Errorf("jobs: %s: interval must be positive", name)
	}
	if task == nil {
		return "", errors.New("jobs: nil task")
	}
	job, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.run, name, task),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return "", fmt.Errorf("jobs: schedule %s: %w", name, err)
	}
	return job.ID().String(), nil
}

// Start begins running scheduled jobs.
func (s *Scheduler) Start() {
	s.scheduler.Start()
}

// Stop cancels running tasks and shuts the scheduler down.
func (s *Scheduler) Stop() error {
	s.cancel()
	return s.scheduler.Shutdown()
}

func (s *Scheduler) run(name string, task Task) {
	if err := task(s.ctx); err != nil && s.logger != nil {
		s.logger.Printf("jobs: %s failed: %v", name, err)
	}
}
