package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StreamConfig names the Redis stream and consumer group.
type StreamConfig struct {
	Stream   string
	Group    string
	Consumer string
	// Block bounds each XREADGROUP wait and therefore shutdown latency.
	Block time.Duration
	Count int64
}

// StreamBus publishes events with XADD and consumes them through a consumer
// group. Every delivered message is acknowledged, whether or not the handler
// succeeded.
type StreamBus struct {
	rdb    redis.UniversalClient
	cfg    StreamConfig
	logger *zap.Logger
}

func NewStreamBus(rdb redis.UniversalClient, cfg StreamConfig, logger *zap.Logger) *StreamBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Block <= 0 {
		cfg.Block = 2 * time.Second
	}
	if cfg.Count <= 0 {
		cfg.Count = 10
	}
	return &StreamBus{rdb: rdb, cfg: cfg, logger: logger}
}

// EnsureGroup creates the stream and consumer group if they do not exist.
func (b *StreamBus) EnsureGroup(ctx context.Context) error {
	err := b.rdb.XGroupCreateMkStream(ctx, b.cfg.Stream, b.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s: %w", b.cfg.Group, err)
	}
	return nil
}

func (b *StreamBus) Publish(ctx context.Context, ev Created) error {
	payload, err := encode(ev)
	if err != nil {
		return err
	}
	return b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: b.cfg.Stream,
		Values: map[string]any{
			"data":      string(payload),
			"timestamp": time.Now().Unix(),
		},
	}).Err()
}

// Subscribe reads new messages for this consumer until ctx is cancelled.
func (b *StreamBus) Subscribe(ctx context.Context, h Handler) error {
	if err := b.EnsureGroup(ctx); err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		streams, err := b.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    b.cfg.Group,
			Consumer: b.cfg.Consumer,
			Streams:  []string{b.cfg.Stream, ">"},
			Count:    b.cfg.Count,
			Block:    b.cfg.Block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logger.Error("Failed to read from stream", zap.String("stream", b.cfg.Stream), zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				b.handle(ctx, msg, h)
			}
		}
	}
}

func (b *StreamBus) handle(ctx context.Context, msg redis.XMessage, h Handler) {
	defer func() {
		if err := b.rdb.XAck(ctx, b.cfg.Stream, b.cfg.Group, msg.ID).Err(); err != nil {
			b.logger.Warn("Failed to ack message", zap.String("id", msg.ID), zap.Error(err))
		}
	}()

	raw, _ := msg.Values["data"].(string)
	ev, err := decode([]byte(raw))
	if err != nil {
		b.logger.Warn("Dropping malformed stream message", zap.String("id", msg.ID), zap.Error(err))
		return
	}
	if err := h(ctx, ev); err != nil {
		b.logger.Warn("Event handler failed",
			zap.String("id", msg.ID),
			zap.String("path", ev.Path),
			zap.Error(err),
		)
	}
}
