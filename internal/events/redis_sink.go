package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/finesse-monitor/internal/domain"
)

// RedisSink публикует смены статусов в Redis Pub/Sub, по одному JSON-сообщению на событие.
type RedisSink struct {
	rdb     redis.UniversalClient
	channel string
	logger  *zap.Logger
}

func NewRedisSink(rdb redis.UniversalClient, channel string, logger *zap.Logger) *RedisSink {
	return &RedisSink{
		rdb:     rdb,
		channel: channel,
		logger:  logger.Named("redis_sink"),
	}
}

// PublishBatch отправляет всю пачку одним пайплайном.
func (s *RedisSink) PublishBatch(ctx context.Context, changes []domain.StateChange) error {
	if len(changes) == 0 {
		return nil
	}

	pipe := s.rdb.Pipeline()
	for _, c := range changes {
		payload, err := Encode(c)
		if err != nil {
			// битое событие не должно топить всю пачку
			s.logger.Warn("skipping unencodable state change", zap.String("id", c.ID), zap.Error(err))
			continue
		}
		pipe.Publish(ctx, s.channel, payload)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish %d state changes to %s: %w", len(changes), s.channel, err)
	}

	s.logger.Debug("state changes published", zap.String("channel", s.channel), zap.Int("count", len(changes)))
	return nil
}

// Encode - формат сообщения в канале.
func Encode(c domain.StateChange) ([]byte, error) {
	return json.Marshal(c)
}
