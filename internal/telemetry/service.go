package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/celerix-dev/celerix-telemetry/internal/observability"
	"github.com/celerix-dev/celerix-telemetry/internal/places"
	"github.com/celerix-dev/celerix-telemetry/pkg/schema"
	"github.com/celerix-dev/celerix-telemetry/pkg/sdk"
	"go.uber.org/zap"
)

// Flow labels used for metrics and logs.
const (
	FlowSync     = "sync"
	FlowDeferred = "deferred"
	FlowRaw      = "raw"
)

// Service runs the ingestion flows against one store and one places finder.
type Service struct {
	writer   *Writer
	finder   places.Finder
	logger   *zap.Logger
	deferred string
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithDeferredCollection sets where IngestDeferred writes bare records. It
// must match the collection the enrichment trigger watches.
func WithDeferredCollection(collection string) ServiceOption {
	return func(s *Service) {
		if collection != "" {
			s.deferred = collection
		}
	}
}

func NewService(store sdk.DocumentWriter, finder places.Finder, logger *zap.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		writer:   NewWriter(store),
		finder:   finder,
		logger:   logger,
		deferred: sdk.SensorDataCollection,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest parses a batch, enriches it inline and writes it under the user's
// sensor-data collection. A provider failure is logged and the record is
// written with an empty attraction list.
func (s *Service) Ingest(ctx context.Context, uid string, raw []schema.RawReading) (string, error) {
	if err := ValidateUserID(uid); err != nil {
		observability.IngestedBatches.WithLabelValues(FlowSync, "rejected").Inc()
		return "", err
	}
	batch, err := ParseBatch(raw)
	if err != nil {
		observability.IngestedBatches.WithLabelValues(FlowSync, "rejected").Inc()
		return "", err
	}

	attractions, err := s.finder.NearbyPlaces(ctx, batch.Location.Latitude, batch.Location.Longitude)
	if err != nil {
		s.logger.Warn("Enrichment failed, storing record without attractions",
			zap.String("uid", uid),
			zap.Error(err),
		)
		attractions = []schema.PointOfInterest{}
	}

	rec := Assemble(batch, attractions)
	id, err := s.writer.AddPartitioned(ctx, uid, rec.Document(true))
	if err != nil {
		observability.IngestedBatches.WithLabelValues(FlowSync, "error").Inc()
		return "", err
	}

	observability.IngestedBatches.WithLabelValues(FlowSync, "ok").Inc()
	s.logger.Info("Sensor batch stored",
		zap.String("flow", FlowSync),
		zap.String("uid", uid),
		zap.String("id", id),
		zap.Int("devices", len(rec.NearbyDevices)),
		zap.Int("attractions", len(rec.NearbyAttractions)),
	)
	return id, nil
}

// IngestDeferred writes a bare record to the flat deferred collection
// (sensor-data unless configured otherwise).
// Enrichment happens later through the creation trigger.
func (s *Service) IngestDeferred(ctx context.Context, raw []schema.RawReading) (string, error) {
	batch, err := ParseBatch(raw)
	if err != nil {
		observability.IngestedBatches.WithLabelValues(FlowDeferred, "rejected").Inc()
		return "", err
	}

	rec := AssembleBare(batch)
	id, err := s.writer.AddFlat(ctx, s.deferred, rec.Document(false))
	if err != nil {
		observability.IngestedBatches.WithLabelValues(FlowDeferred, "error").Inc()
		return "", err
	}

	observability.IngestedBatches.WithLabelValues(FlowDeferred, "ok").Inc()
	s.logger.Info("Sensor batch stored",
		zap.String("flow", FlowDeferred),
		zap.String("id", id),
		zap.Int("devices", len(rec.NearbyDevices)),
	)
	return id, nil
}

// StoreRaw writes an unparsed payload to example-data. Objects are stored as
// they are; any other JSON value is kept under a "payload" field.
func (s *Service) StoreRaw(ctx context.Context, payload json.RawMessage) (string, error) {
	if len(payload) == 0 {
		observability.IngestedBatches.WithLabelValues(FlowRaw, "rejected").Inc()
		return "", fmt.Errorf("%w: payload is empty", ErrInvalidPayload)
	}

	var value any
	if err := json.Unmarshal(payload, &value); err != nil {
		observability.IngestedBatches.WithLabelValues(FlowRaw, "rejected").Inc()
		return "", fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	doc, ok := value.(map[string]any)
	if !ok {
		doc = map[string]any{"payload": value}
	}

	id, err := s.writer.AddFlat(ctx, sdk.ExampleDataCollection, doc)
	if err != nil {
		observability.IngestedBatches.WithLabelValues(FlowRaw, "error").Inc()
		return "", err
	}
	observability.IngestedBatches.WithLabelValues(FlowRaw, "ok").Inc()
	return id, nil
}

// IsClientError reports whether err was caused by the request rather than
// by a dependency.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidPayload) || errors.Is(err, ErrMissingIdentity)
}
