package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
)

// Scheduler runs named jobs on cron schedules. A job still running when its
// next tick fires is skipped, so a slow snapshot batch never stacks.
type Scheduler struct {
	cron   *cron.Cron
	logger arbor.ILogger

	mu      sync.Mutex
	running map[string]bool
}

// New creates a scheduler using standard 5-field cron expressions.
func New(logger arbor.ILogger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		logger:  logger,
		running: make(map[string]bool),
	}
}

// Add registers a job under name with the given cron expression.
func (s *Scheduler) Add(name, spec string, fn func(ctx context.Context)) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.mu.Lock()
		if s.running[name] {
			s.mu.Unlock()
			s.logger.Warn().Str("job", name).Msg("previous run still active, skipping tick")
			return
		}
		s.running[name] = true
		s.mu.Unlock()

		defer func() {
			s.mu.Lock()
			s.running[name] = false
			s.mu.Unlock()
		}()

		s.logger.Info().Str("job", name).Msg("scheduled job start")
		fn(context.Background())
		s.logger.Info().Str("job", name).Msg("scheduled job done")
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q for %s: %w", spec, name, err)
	}
	s.logger.Info().Str("job", name).Str("schedule", spec).Msg("job scheduled")
	return nil
}

// Start begins dispatching jobs in background goroutines.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts dispatch and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
