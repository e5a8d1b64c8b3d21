package events

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Worker runs one subscriber on its own context, so it outlives the
// signal that starts shutdown and keeps consuming while publishers drain.
type Worker struct {
	bus    Bus
	cancel context.CancelFunc
	done   chan struct{}
}

// StartWorker subscribes h to bus in a background goroutine.
func StartWorker(bus Bus, h Handler, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{bus: bus, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(w.done)
		err := bus.Subscribe(ctx, h)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Event subscriber stopped", zap.Error(err))
		}
	}()
	return w
}

// Stop must be called once every publisher has finished. A ChannelBus is
// closed and its buffered events are handled before Stop returns; other
// buses are cancelled since undelivered messages stay in the broker. When
// ctx expires first the subscriber is cancelled and ctx.Err is returned.
func (w *Worker) Stop(ctx context.Context) error {
	if cb, ok := w.bus.(*ChannelBus); ok {
		cb.Close()
	} else {
		w.cancel()
	}

	select {
	case <-w.done:
		w.cancel()
		return nil
	case <-ctx.Done():
		w.cancel()
		<-w.done
		return ctx.Err()
	}
}
