// Package webhook consumes authenticated webhook deliveries off the queue
// and turns them into canonical transaction updates. Processing is
// at-least-once: deliveries are retried on transient failure and
// dead-lettered once the retry limit is reached.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	json "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"

	"github.com/paygate-ng/paygate/internal/models"
	"github.com/paygate-ng/paygate/internal/services/cache"
	"github.com/paygate-ng/paygate/internal/services/driver"
	"github.com/paygate-ng/paygate/internal/services/events"
	"github.com/paygate-ng/paygate/internal/services/status"
	"github.com/paygate-ng/paygate/internal/services/store"
)

const (
	QueueMain    = "paygate:webhooks:queue"
	QueueDelayed = "paygate:webhooks:queue:delayed"
	QueueDead    = "paygate:webhooks:queue:dead"

	lockPrefix = "paygate:webhooks:lock:"
	lockTTL    = 30 * time.Second

	maxAttempts  = 3
	retryBackoff = 60 * time.Second
)

var errReferenceLocked = errors.New("webhook: reference locked by another delivery")

// DriverResolver hands out the cached singleton driver for a provider.
type DriverResolver interface {
	Driver(provider string) (driver.Driver, error)
}

type Processor struct {
	numWorkers int
	queue      cache.Queue
	locker     cache.Locker
	store      store.TransactionStore
	normalizer *status.Normalizer
	drivers    DriverResolver
	hub        *events.Hub

	waitGroup  sync.WaitGroup
	cancelFunc context.CancelFunc
}

func NewProcessor(
	numWorkers int,
	queue cache.Queue,
	locker cache.Locker,
	txStore store.TransactionStore,
	normalizer *status.Normalizer,
	drivers DriverResolver,
	hub *events.Hub,
) *Processor {
	return &Processor{
		numWorkers: numWorkers,
		queue:      queue,
		locker:     locker,
		store:      txStore,
		normalizer: normalizer,
		drivers:    drivers,
		hub:        hub,
	}
}

// Enqueue pushes an authenticated delivery onto the main queue. The HTTP
// handler calls this and answers 202 immediately.
func (p *Processor) Enqueue(ctx context.Context, job *models.WebhookJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("webhook: failed to marshal job: %w", err)
	}
	return p.queue.Push(ctx, QueueMain, data)
}

func (p *Processor) Start() {
	log.Info().Str("component", "webhook").Int("workers", p.numWorkers).Msg("starting webhook workers")

	var ctx context.Context
	ctx, p.cancelFunc = context.WithCancel(context.Background())

	for i := 1; i <= p.numWorkers; i++ {
		p.waitGroup.Add(1)
		go p.worker(ctx, i)
	}
}

func (p *Processor) worker(ctx context.Context, id int) {
	defer p.waitGroup.Done()
	log.Info().Str("component", "webhook").Int("worker", id).Msg("worker waiting for jobs")

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("component", "webhook").Int("worker", id).Msg("worker shutting down")
			return
		default:
			data, err := p.queue.Pop(ctx, QueueMain, 0)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, cache.ErrMiss) {
					continue
				}
				log.Error().Str("component", "webhook").Int("worker", id).Err(err).Msg("failed to pop job")
				continue
			}

			var job models.WebhookJob
			if err := json.Unmarshal(data, &job); err != nil {
				log.Error().Str("component", "webhook").Int("worker", id).Err(err).Msg("discarding malformed job")
				continue
			}
			if err := p.process(ctx, &job); err != nil {
				p.handleFailure(ctx, &job, err)
			}
		}
	}
}

func (p *Processor) Stop() {
	log.Info().Str("component", "webhook").Msg("stopping webhook workers")
	if p.cancelFunc != nil {
		p.cancelFunc()
	}
	p.waitGroup.Wait()
	log.Info().Str("component", "webhook").Msg("all webhook workers stopped")
}

// process applies one delivery under the per-reference lock. Concurrent
// deliveries for the same reference serialize here, and a delivery that
// repeats the current canonical status is a no-op: no second durable
// transition, no second event.
func (p *Processor) process(ctx context.Context, job *models.WebhookJob) error {
	drv, err := p.drivers.Driver(job.Provider)
	if err != nil {
		return err
	}

	reference, err := drv.ExtractWebhookReference(job.Payload)
	if err != nil {
		return err
	}
	if reference == "" {
		return fmt.Errorf("webhook: %s payload carries no reference", job.Provider)
	}
	statusToken, err := drv.ExtractWebhookStatus(job.Payload)
	if err != nil {
		return err
	}
	channelToken, err := drv.ExtractWebhookChannel(job.Payload)
	if err != nil {
		return err
	}
	canonical := p.normalizer.Normalize(job.Provider, statusToken)

	acquired, err := p.locker.Acquire(ctx, lockPrefix+reference, lockTTL)
	if err != nil {
		return err
	}
	if !acquired {
		return errReferenceLocked
	}
	defer p.locker.Release(ctx, lockPrefix+reference)

	tx, err := p.store.FindByReference(ctx, reference)
	switch {
	case errors.Is(err, store.ErrNotFound):
		// Webhook for a charge this node never recorded; create the row
		// so the status still lands.
		tx = &models.Transaction{
			Reference: reference,
			Provider:  job.Provider,
			Status:    canonical,
			Channel:   channelToken,
		}
		if err := p.store.Create(ctx, tx); err != nil {
			return err
		}
	case err != nil:
		return err
	case tx.Status == canonical:
		log.Debug().Str("component", "webhook").Str("reference", reference).Str("status", string(canonical)).Msg("duplicate delivery, already applied")
		return nil
	default:
		fields := store.Update{Status: &canonical}
		if channelToken != "" {
			fields.Channel = &channelToken
		}
		if canonical == models.StatusSuccess && tx.PaidAt == nil {
			now := job.ReceivedAt
			if now.IsZero() {
				now = time.Now().UTC()
			}
			fields.PaidAt = &now
		}
		if err := p.store.Update(ctx, reference, fields); err != nil {
			return err
		}
	}

	log.Info().Str("component", "webhook").Str("provider", job.Provider).Str("reference", reference).Str("status", string(canonical)).Msg("webhook applied")
	p.hub.Publish(events.WebhookProcessed{
		Provider:  job.Provider,
		Reference: reference,
		Status:    canonical,
		Payload:   job.Payload,
	})
	return nil
}

func (p *Processor) handleFailure(ctx context.Context, job *models.WebhookJob, cause error) {
	job.Attempts++
	data, err := json.Marshal(job)
	if err != nil {
		log.Error().Str("component", "webhook").Err(err).Msg("failed to marshal job for retry")
		return
	}

	if job.Attempts < maxAttempts {
		log.Warn().Str("component", "webhook").Str("provider", job.Provider).Int("attempt", job.Attempts).Err(cause).Msg("delivery failed, scheduling retry")
		if err := p.queue.PushDelayed(ctx, QueueDelayed, data, time.Now().Add(retryBackoff)); err != nil {
			log.Error().Str("component", "webhook").Err(err).Msg("failed to schedule retry")
		}
		return
	}

	log.Error().Str("component", "webhook").Str("provider", job.Provider).Int("attempts", job.Attempts).Err(cause).Msg("delivery exhausted retries, dead-lettering")
	if err := p.queue.Push(ctx, QueueDead, data); err != nil {
		log.Error().Str("component", "webhook").Err(err).Msg("failed to dead-letter job")
	}
}
