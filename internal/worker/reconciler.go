package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/phdwriter/essay_go_server/internal/pkg/queue"
	"github.com/phdwriter/essay_go_server/internal/service"
)

const (
	popTimeout  = 5 * time.Second
	maxAttempts = 3
)

// Reconciler drains the webhook queue and applies each event through the
// reconcile service. Multiple workers are safe: the per-account lock and
// the event dedup make concurrent processing of different events sound.
type Reconciler struct {
	queue   *queue.Queue
	svc     *service.ReconcileService
	workers int
}

func NewReconciler(q *queue.Queue, svc *service.ReconcileService, workers int) *Reconciler {
	if workers < 1 {
		workers = 1
	}
	return &Reconciler{
		queue:   q,
		svc:     svc,
		workers: workers,
	}
}

// Run blocks until the context is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	log.Info().Int("workers", r.workers).Msg("reconcile worker starting")

	var wg sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			r.loop(ctx, id)
		}(i)
	}
	wg.Wait()
	log.Info().Msg("reconcile worker stopped")
}

func (r *Reconciler) loop(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg, err := r.queue.Pop(ctx, popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Int("worker", id).Msg("queue pop failed")
			time.Sleep(time.Second)
			continue
		}
		if msg == nil {
			continue
		}

		r.process(ctx, msg)
	}
}

func (r *Reconciler) process(ctx context.Context, msg *queue.EventMessage) {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := r.svc.Apply(ctx, msg)
		if err == nil {
			return
		}
		log.Warn().
			Err(err).
			Str("event_id", msg.EventID).
			Int("attempt", attempt).
			Msg("failed to apply billing event")

		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
	}
	// The event row is marked failed in the database. Clearing the ingress
	// marker lets the provider's redelivery re-enter through the webhook
	// endpoint and resume the failed row.
	if err := r.queue.Forget(ctx, msg.EventID); err != nil {
		log.Warn().Err(err).Str("event_id", msg.EventID).Msg("failed to clear idempotency marker")
	}
	log.Error().Str("event_id", msg.EventID).Msg("billing event abandoned after retries")
}
