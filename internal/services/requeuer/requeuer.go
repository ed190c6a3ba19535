// Package requeuer moves webhook jobs whose retry backoff has elapsed from
// the delayed sorted set back onto the main queue.
package requeuer

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const pollInterval = 5 * time.Second

type Requeuer struct {
	redisClient   *redis.Client
	delayedQueue  string
	mainQueueName string
	stopChan      chan struct{}
}

func New(client *redis.Client, delayedQueue, mainQueueName string) *Requeuer {
	return &Requeuer{
		redisClient:   client,
		delayedQueue:  delayedQueue,
		mainQueueName: mainQueueName,
		stopChan:      make(chan struct{}),
	}
}

func (r *Requeuer) Start() {
	log.Info().Str("component", "requeuer").Str("delayed_queue", r.delayedQueue).Msg("starting requeuer")
	ticker := time.NewTicker(pollInterval)

	go func() {
		for {
			select {
			case <-ticker.C:
				r.processDelayedItems()
			case <-r.stopChan:
				ticker.Stop()
				log.Info().Str("component", "requeuer").Msg("requeuer stopped")
				return
			}
		}
	}()
}

func (r *Requeuer) Stop() {
	close(r.stopChan)
}

func (r *Requeuer) processDelayedItems() {
	ctx := context.Background()
	maxScore := fmt.Sprintf("%d", time.Now().Unix())

	items, err := r.redisClient.ZRangeByScore(ctx, r.delayedQueue, &redis.ZRangeBy{
		Min:   "0",
		Max:   maxScore,
		Count: 100,
	}).Result()
	if err != nil || len(items) == 0 {
		return
	}

	log.Info().Str("component", "requeuer").Int("count", len(items)).Msg("requeuing due webhook jobs")
	pipe := r.redisClient.Pipeline()
	for _, item := range items {
		pipe.LPush(ctx, r.mainQueueName, item)
	}
	pipe.ZRemRangeByScore(ctx, r.delayedQueue, "0", maxScore)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Error().Str("component", "requeuer").Err(err).Msg("failed to execute requeue pipeline")
	}
}
