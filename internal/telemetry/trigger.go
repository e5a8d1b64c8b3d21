package telemetry

import (
	"context"
	"fmt"

	"github.com/celerix-dev/celerix-telemetry/internal/events"
	"github.com/celerix-dev/celerix-telemetry/internal/observability"
	"github.com/celerix-dev/celerix-telemetry/internal/places"
	"github.com/celerix-dev/celerix-telemetry/pkg/schema"
	"github.com/celerix-dev/celerix-telemetry/pkg/sdk"
	"go.uber.org/zap"
)

// Fields merged into a document once it has been enriched.
const (
	FieldAttractionsList  = "nearbyAttractionsList"
	FieldAttractionsCount = "nearbyAttractionsCount"
)

// triggerStore is what the trigger needs from the store.
type triggerStore interface {
	sdk.DocumentReader
	sdk.DocumentWriter
}

// Trigger enriches documents after creation and merges the result back.
type Trigger struct {
	store        triggerStore
	finder       places.Finder
	collection   string
	skipEnriched bool
	logger       *zap.Logger
}

// TriggerOption configures a Trigger.
type TriggerOption func(*Trigger)

// WithSkipEnriched makes the trigger ignore documents that already carry
// an attraction list, so redelivered events cost no provider call.
func WithSkipEnriched(skip bool) TriggerOption {
	return func(t *Trigger) { t.skipEnriched = skip }
}

// WithCollection sets the watched collection (default sensor-data).
func WithCollection(collection string) TriggerOption {
	return func(t *Trigger) { t.collection = collection }
}

func NewTrigger(store triggerStore, finder places.Finder, logger *zap.Logger, opts ...TriggerOption) *Trigger {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Trigger{
		store:      store,
		finder:     finder,
		collection: sdk.SensorDataCollection,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Collection is the collection whose creations the trigger handles.
func (t *Trigger) Collection() string { return t.collection }

// Handle is an events.Handler. A provider failure leaves the document
// untouched and is returned; nothing is retried.
func (t *Trigger) Handle(ctx context.Context, ev events.Created) error {
	if ev.Collection != t.collection {
		return nil
	}

	data := ev.Data
	if t.skipEnriched || data["location"] == nil {
		current, err := t.store.Get(ctx, ev.Path)
		if err != nil {
			observability.TriggerEvents.WithLabelValues("failed").Inc()
			return fmt.Errorf("%w: read %s: %w", ErrPersistenceFailure, ev.Path, err)
		}
		if t.skipEnriched {
			if _, done := current[FieldAttractionsList]; done {
				observability.TriggerEvents.WithLabelValues("skipped").Inc()
				t.logger.Debug("Document already enriched", zap.String("path", ev.Path))
				return nil
			}
		}
		data = current
	}

	loc, ok := locationOf(data)
	if !ok {
		observability.TriggerEvents.WithLabelValues("failed").Inc()
		return fmt.Errorf("%w: %s has no location", ErrInvalidPayload, ev.Path)
	}

	attractions, err := t.finder.NearbyPlaces(ctx, loc.Latitude, loc.Longitude)
	if err != nil {
		observability.TriggerEvents.WithLabelValues("failed").Inc()
		return err
	}

	err = t.store.Merge(ctx, ev.Path, map[string]any{
		FieldAttractionsList:  schema.PlacesDocument(attractions),
		FieldAttractionsCount: len(attractions),
	})
	if err != nil {
		observability.TriggerEvents.WithLabelValues("failed").Inc()
		return fmt.Errorf("%w: merge %s: %w", ErrPersistenceFailure, ev.Path, err)
	}

	observability.TriggerEvents.WithLabelValues("enriched").Inc()
	t.logger.Info("Document enriched",
		zap.String("path", ev.Path),
		zap.Int("attractions", len(attractions)),
	)
	return nil
}

func locationOf(data map[string]any) (schema.Location, bool) {
	m, ok := data["location"].(map[string]any)
	if !ok {
		return schema.Location{}, false
	}
	lat, okLat := schema.AsFloat(m["lat"])
	lon, okLon := schema.AsFloat(m["lon"])
	if !okLat || !okLon {
		return schema.Location{}, false
	}
	return schema.Location{Latitude: lat, Longitude: lon}, true
}
