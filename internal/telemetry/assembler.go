package telemetry

import (
	"time"

	"github.com/celerix-dev/celerix-telemetry/pkg/schema"
)

const nanosPerMilli = int64(time.Millisecond)

// MillisTime truncates a nanosecond instant to millisecond precision,
// flooring toward negative infinity.
func MillisTime(nanos int64) time.Time {
	ms := nanos / nanosPerMilli
	if nanos%nanosPerMilli < 0 {
		ms--
	}
	return time.UnixMilli(ms).UTC()
}

// Assemble builds the record of the synchronous flow.
func Assemble(b Batch, attractions []schema.PointOfInterest) schema.EnrichedRecord {
	rec := AssembleBare(b)
	if attractions == nil {
		attractions = []schema.PointOfInterest{}
	}
	rec.NearbyAttractions = attractions
	return rec
}

// AssembleBare builds the record of the deferred flow, without attractions.
func AssembleBare(b Batch) schema.EnrichedRecord {
	devices := b.Devices
	if devices == nil {
		devices = []string{}
	}
	return schema.EnrichedRecord{
		Location:      b.Location,
		NearbyDevices: devices,
		Time:          MillisTime(b.CapturedAtNanos),
	}
}
