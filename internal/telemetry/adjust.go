package telemetry

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/celerix-dev/celerix-telemetry/internal/observability"
	"github.com/celerix-dev/celerix-telemetry/pkg/schema"
	"github.com/celerix-dev/celerix-telemetry/pkg/sdk"
	"go.uber.org/zap"
)

// maxAdjustMinutes bounds the shift so the millisecond offset and the
// shifted instants stay inside int64.
const maxAdjustMinutes = 1e12

// adjustStore is what the correction job needs from the store.
type adjustStore interface {
	sdk.DocumentReader
	sdk.BatchWriter
}

// AdjustResult reports what one correction run saw and changed.
type AdjustResult struct {
	// Found is the number of documents in the user's collection.
	Found int
	// Adjusted is the number of documents whose time was shifted.
	Adjusted int
}

// Adjuster shifts stored timestamps of one user in a single atomic batch.
type Adjuster struct {
	store  adjustStore
	logger *zap.Logger
}

func NewAdjuster(store adjustStore, logger *zap.Logger) *Adjuster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adjuster{store: store, logger: logger}
}

// Adjust subtracts minutes from the time field of every document under
// users/{uid}/sensor-data. Documents without a timestamp are skipped. Either
// every update lands or none does.
func (a *Adjuster) Adjust(ctx context.Context, uid string, minutes float64) (AdjustResult, error) {
	if err := ValidateUserID(uid); err != nil {
		return AdjustResult{}, err
	}
	if math.IsNaN(minutes) || math.Abs(minutes) > maxAdjustMinutes {
		return AdjustResult{}, fmt.Errorf("%w: minutes %v is out of range", ErrInvalidPayload, minutes)
	}

	collection := sdk.UserSensorData(uid)
	docs, err := a.store.List(ctx, collection)
	if err != nil {
		return AdjustResult{}, fmt.Errorf("%w: list %s: %w", ErrPersistenceFailure, collection, err)
	}

	result := AdjustResult{Found: len(docs)}
	if len(docs) == 0 {
		return result, nil
	}

	offsetMillis := int64(minutes * 60 * 1000)
	batch := a.store.Batch()
	for _, doc := range docs {
		t, ok := schema.AsTimestamp(doc.Data["time"])
		if !ok {
			continue
		}
		adjusted := time.UnixMilli(t.UnixMilli() - offsetMillis).UTC()
		batch.Update(doc.Path, map[string]any{"time": adjusted})
	}

	result.Adjusted = batch.Len()
	if result.Adjusted == 0 {
		return result, nil
	}
	if err := batch.Commit(ctx); err != nil {
		return AdjustResult{Found: result.Found}, fmt.Errorf("%w: commit: %w", ErrPersistenceFailure, err)
	}

	observability.TimestampsAdjusted.Add(float64(result.Adjusted))
	a.logger.Info("Timestamps adjusted",
		zap.String("uid", uid),
		zap.Float64("minutes", minutes),
		zap.Int("found", result.Found),
		zap.Int("adjusted", result.Adjusted),
	)
	return result, nil
}
