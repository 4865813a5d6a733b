package cron

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type job struct {
	name     string
	interval time.Duration
	fn       func(ctx context.Context) error
}

// Scheduler runs periodic maintenance jobs on fixed intervals.
type Scheduler struct {
	jobs []job
}

func NewScheduler() *Scheduler {
	return &Scheduler{}
}

func (s *Scheduler) AddJob(name string, interval time.Duration, fn func(ctx context.Context) error) {
	s.jobs = append(s.jobs, job{name: name, interval: interval, fn: fn})
}

// Start runs every job on its own ticker until the context is cancelled.
// Each job also fires once at startup so a restarted process catches up.
func (s *Scheduler) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for _, j := range s.jobs {
		wg.Add(1)
		go func(j job) {
			defer wg.Done()
			s.runJob(ctx, j)

			ticker := time.NewTicker(j.interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					s.runJob(ctx, j)
				}
			}
		}(j)
	}
	wg.Wait()
}

func (s *Scheduler) runJob(ctx context.Context, j job) {
	start := time.Now()
	if err := j.fn(ctx); err != nil {
		log.Error().Err(err).Str("job", j.name).Msg("cron job failed")
		return
	}
	log.Debug().Str("job", j.name).Dur("took", time.Since(start)).Msg("cron job done")
}
