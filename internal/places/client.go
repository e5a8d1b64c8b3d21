// Package places looks up points of interest around a coordinate.
package places

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/celerix-dev/celerix-telemetry/internal/observability"
	"github.com/celerix-dev/celerix-telemetry/pkg/schema"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// ErrUnavailable is returned when the provider could not produce a usable answer:
// transport failure, timeout, non-2xx status or an undecodable body.
var ErrUnavailable = errors.New("places provider unavailable")

const (
	// SearchRadiusMeters is the radius of the circle searched around a coordinate.
	SearchRadiusMeters = 500
	// MaxResults is the provider page limit and the cap on returned places.
	MaxResults = 20

	categories = "building.tourism,tourism.attraction"
	placesPath = "/v2/places"
)

// Finder returns the places near a coordinate.
type Finder interface {
	NearbyPlaces(ctx context.Context, lat, lon float64) ([]schema.PointOfInterest, error)
}

type featureCollection struct {
	Features json.RawMessage `json:"features"`
}

type feature struct {
	Properties struct {
		Formatted string  `json:"formatted"`
		Lon       float64 `json:"lon"`
		Lat       float64 `json:"lat"`
	} `json:"properties"`
}

// Client queries the Geoapify places API.
type Client struct {
	httpClient *resty.Client
	apiKey     string
	logger     *zap.Logger
}

// NewClient creates a places client. Calls are never retried.
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Accept", "application/json")

	return &Client{
		httpClient: client,
		apiKey:     apiKey,
		logger:     logger,
	}
}

// NearbyPlaces issues one provider request and normalizes the features.
// A coordinate with no results yields an empty, non-nil list.
func (c *Client) NearbyPlaces(ctx context.Context, lat, lon float64) ([]schema.PointOfInterest, error) {
	start := time.Now()
	defer observability.ObserveEnrichmentLatency(start)

	latStr := strconv.FormatFloat(lat, 'f', -1, 64)
	lonStr := strconv.FormatFloat(lon, 'f', -1, 64)

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"categories": categories,
			"filter":     fmt.Sprintf("circle:%s,%s,%d", lonStr, latStr, SearchRadiusMeters),
			"bias":       fmt.Sprintf("proximity:%s,%s", lonStr, latStr),
			"limit":      strconv.Itoa(MaxResults),
			"apiKey":     c.apiKey,
		}).
		Get(placesPath)
	if err != nil {
		c.logger.Warn("Places API call failed", zap.Error(err))
		observability.EnrichmentCalls.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.IsError() {
		c.logger.Warn("Places API returned error",
			zap.Int("status_code", resp.StatusCode()),
		)
		observability.EnrichmentCalls.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode())
	}

	result, err := decodeFeatures(resp.Body())
	if err != nil {
		c.logger.Warn("Failed to decode places response", zap.Error(err))
		observability.EnrichmentCalls.WithLabelValues("malformed").Inc()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	observability.EnrichmentCalls.WithLabelValues("ok").Inc()
	c.logger.Debug("Retrieved nearby places",
		zap.Float64("lat", lat),
		zap.Float64("lon", lon),
		zap.Int("count", len(result)),
	)
	return result, nil
}

func decodeFeatures(body []byte) ([]schema.PointOfInterest, error) {
	var fc featureCollection
	if err := json.Unmarshal(body, &fc); err != nil {
		return nil, err
	}
	if fc.Features == nil {
		return nil, errors.New("response has no features field")
	}

	var features []feature
	if err := json.Unmarshal(fc.Features, &features); err != nil {
		return nil, err
	}
	if len(features) > MaxResults {
		features = features[:MaxResults]
	}

	result := make([]schema.PointOfInterest, 0, len(features))
	for _, f := range features {
		result = append(result, schema.PointOfInterest{
			Address:   f.Properties.Formatted,
			Longitude: f.Properties.Lon,
			Latitude:  f.Properties.Lat,
		})
	}
	return result, nil
}
