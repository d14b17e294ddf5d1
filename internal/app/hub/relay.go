package hub

import (
	"context"
	"encoding/json"
	"fmt"

	"recruit_exec/internal/domain/model"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type relayEnvelope struct {
	InterviewID string          `json:"interview_id"`
	Event       model.LiveEvent `json:"event"`
}

// RedisRelay fans live events out to every server instance over Redis Pub/Sub, so the instance
// holding a candidate's connection delivers it regardless of which one handled the callback.
type RedisRelay struct {
	rdb     *redis.Client
	channel string
	hub     *Hub
	logger  *zap.Logger
	ready   chan struct{}
}

func NewRedisRelay(rdb *redis.Client, channel string, hub *Hub, logger *zap.Logger) *RedisRelay {
	return &RedisRelay{
		rdb:     rdb,
		channel: channel,
		hub:     hub,
		logger:  logger,
		ready:   make(chan struct{}),
	}
}

// Notify publishes the event. When Redis is unreachable the event is pushed to the local hub only.
func (r *RedisRelay) Notify(ctx context.Context, interviewID string, event model.LiveEvent) {
	data, err := json.Marshal(relayEnvelope{InterviewID: interviewID, Event: event})
	if err != nil {
		r.logger.Error("failed to marshal relay envelope", zap.Error(err))
		return
	}
	if err := r.rdb.Publish(ctx, r.channel, data).Err(); err != nil {
		r.logger.Warn("failed to publish live event, delivering locally",
			zap.String("interview_id", interviewID), zap.Error(err))
		r.hub.Notify(ctx, interviewID, event)
	}
}

// Ready is closed once the subscription is confirmed.
func (r *RedisRelay) Ready() <-chan struct{} { return r.ready }

// Run subscribes to the relay channel and pushes every received event into the local hub until
// ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) error {
	pubsub := r.rdb.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}
	close(r.ready)
	r.logger.Info("live event relay subscribed", zap.String("channel", r.channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env relayEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.logger.Warn("dropping malformed relay message", zap.Error(err))
				continue
			}
			r.hub.Notify(ctx, env.InterviewID, env.Event)
		}
	}
}
