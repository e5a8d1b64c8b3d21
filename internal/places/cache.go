package places

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/celerix-dev/celerix-telemetry/internal/observability"
	"github.com/celerix-dev/celerix-telemetry/pkg/schema"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const cacheKeyPrefix = "places:nearby:"

// CachedFinder answers repeated lookups for the same coordinate from Redis.
// Cache failures fall through to the wrapped Finder; provider failures are
// never cached.
type CachedFinder struct {
	next   Finder
	rdb    redis.UniversalClient
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedFinder(next Finder, rdb redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *CachedFinder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedFinder{next: next, rdb: rdb, ttl: ttl, logger: logger}
}

// cacheKey rounds to six decimals (about 10 cm), well inside the search radius.
func cacheKey(lat, lon float64) string {
	return fmt.Sprintf("%s%.6f,%.6f", cacheKeyPrefix, lat, lon)
}

func (f *CachedFinder) NearbyPlaces(ctx context.Context, lat, lon float64) ([]schema.PointOfInterest, error) {
	key := cacheKey(lat, lon)

	raw, err := f.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached []schema.PointOfInterest
		if jerr := json.Unmarshal(raw, &cached); jerr == nil {
			observability.EnrichmentCacheHits.Inc()
			if cached == nil {
				cached = []schema.PointOfInterest{}
			}
			return cached, nil
		}
		f.logger.Warn("Dropping undecodable cache entry", zap.String("key", key))
	case err != redis.Nil:
		f.logger.Warn("Places cache read failed", zap.String("key", key), zap.Error(err))
	}

	result, err := f.next.NearbyPlaces(ctx, lat, lon)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(result)
	if err == nil {
		err = f.rdb.Set(ctx, key, payload, f.ttl).Err()
	}
	if err != nil {
		f.logger.Warn("Places cache write failed", zap.String("key", key), zap.Error(err))
	}
	return result, nil
}
