// Package events carries document creation events from the store to the
// enrichment trigger.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/celerix-dev/celerix-telemetry/pkg/schema"
)

// Created is emitted once for every document added to a watched collection.
type Created struct {
	Path       string         `json:"path"`
	Collection string         `json:"collection"`
	ID         string         `json:"id"`
	Data       map[string]any `json:"data"`
}

// Publisher hands events to a bus.
type Publisher interface {
	Publish(ctx context.Context, ev Created) error
}

// Handler processes one event. A returned error is logged by the bus;
// the event is not redelivered.
type Handler func(ctx context.Context, ev Created) error

// Subscriber delivers events to a handler until ctx is cancelled.
type Subscriber interface {
	Subscribe(ctx context.Context, h Handler) error
}

// Bus is both ends of an event transport.
type Bus interface {
	Publisher
	Subscriber
}

// encode keeps timestamps typed across the JSON boundary.
func encode(ev Created) ([]byte, error) {
	wire := ev
	wire.Data, _ = schema.EncodeValue(ev.Data).(map[string]any)
	return json.Marshal(wire)
}

func decode(b []byte) (Created, error) {
	var ev Created
	if err := json.Unmarshal(b, &ev); err != nil {
		return Created{}, fmt.Errorf("decode event: %w", err)
	}
	ev.Data, _ = schema.DecodeValue(ev.Data).(map[string]any)
	if ev.Data == nil {
		ev.Data = map[string]any{}
	}
	return ev, nil
}
