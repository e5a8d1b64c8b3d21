package events

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrBusClosed is returned by Publish after Close.
var ErrBusClosed = errors.New("event bus closed")

// ChannelBus is an in-process bus backed by a buffered channel. Events are
// lost on restart; use StreamBus when that matters.
type ChannelBus struct {
	ch     chan Created
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
}

func NewChannelBus(buffer int, logger *zap.Logger) *ChannelBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChannelBus{ch: make(chan Created, buffer), logger: logger}
}

// Publish blocks while the buffer is full, until ctx is done.
func (b *ChannelBus) Publish(ctx context.Context, ev Created) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}

	select {
	case b.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe runs h for each event until ctx is cancelled or the bus is closed.
// Only one subscriber should consume a ChannelBus.
func (b *ChannelBus) Subscribe(ctx context.Context, h Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-b.ch:
			if !ok {
				return nil
			}
			if err := h(ctx, ev); err != nil {
				b.logger.Warn("Event handler failed",
					zap.String("path", ev.Path),
					zap.Error(err),
				)
			}
		}
	}
}

// Close stops accepting events. Buffered events are still delivered.
func (b *ChannelBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.ch)
	}
}
