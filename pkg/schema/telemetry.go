// Package schema defines universal data structures used across the Celerix telemetry platform.
package schema

import (
	"encoding/json"
	"time"
)

// Reading kinds understood by the parser. Anything else is carried as an UnknownReading.
const (
	KindBluetooth = "bluetooth"
	KindLocation  = "location"
)

// RawReading is one element of an ingested payload, before it is typed.
// Time is the capture instant in nanoseconds since the Unix epoch.
type RawReading struct {
	Name   string          `json:"name"`
	Values json.RawMessage `json:"values"`
	Time   json.Number     `json:"time"`
}

// SensorReading is the closed set of typed readings. The unexported marker
// keeps other packages from adding variants.
type SensorReading interface {
	Kind() string
	CapturedAt() int64
	sensorReading()
}

// BluetoothReading records one nearby device seen by the phone.
type BluetoothReading struct {
	DeviceID  string
	TimeNanos int64
}

func (BluetoothReading) Kind() string        { return KindBluetooth }
func (r BluetoothReading) CapturedAt() int64 { return r.TimeNanos }
func (BluetoothReading) sensorReading()      {}

// LocationReading is a GPS fix.
type LocationReading struct {
	Longitude float64
	Latitude  float64
	TimeNanos int64
}

func (LocationReading) Kind() string        { return KindLocation }
func (r LocationReading) CapturedAt() int64 { return r.TimeNanos }
func (LocationReading) sensorReading()      {}

// UnknownReading is a kind this version does not interpret. It is kept so the
// first element of a batch still provides the batch time.
type UnknownReading struct {
	Name      string
	TimeNanos int64
}

func (r UnknownReading) Kind() string      { return r.Name }
func (r UnknownReading) CapturedAt() int64 { return r.TimeNanos }
func (UnknownReading) sensorReading()      {}

// Location is a latitude/longitude pair as stored on a record.
type Location struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// PointOfInterest is a place returned by the places provider.
type PointOfInterest struct {
	Address   string  `json:"address"`
	Longitude float64 `json:"lon"`
	Latitude  float64 `json:"lat"`
}

// EnrichedRecord is the persisted shape of one ingested batch.
type EnrichedRecord struct {
	ID                string            `json:"id,omitempty"`
	Location          Location          `json:"location"`
	NearbyDevices     []string          `json:"nearbyDevices"`
	NearbyAttractions []PointOfInterest `json:"nearbyAttractions,omitempty"`
	Time              time.Time         `json:"time"`
}

// Document converts the record into the map written to the store. The time
// field stays a time.Time so stores keep it as a native timestamp.
// When withAttractions is false the nearbyAttractions field is left out.
func (r EnrichedRecord) Document(withAttractions bool) map[string]any {
	devices := make([]any, 0, len(r.NearbyDevices))
	for _, d := range r.NearbyDevices {
		devices = append(devices, d)
	}

	doc := map[string]any{
		"location":      LocationDocument(r.Location),
		"nearbyDevices": devices,
		"time":          r.Time,
	}
	if withAttractions {
		doc["nearbyAttractions"] = PlacesDocument(r.NearbyAttractions)
	}
	return doc
}

// LocationDocument is the stored form of a Location.
func LocationDocument(l Location) map[string]any {
	return map[string]any{
		"lat": l.Latitude,
		"lon": l.Longitude,
	}
}

// PlacesDocument is the stored form of a list of places. It is never nil.
func PlacesDocument(places []PointOfInterest) []any {
	out := make([]any, 0, len(places))
	for _, p := range places {
		out = append(out, map[string]any{
			"address": p.Address,
			"lon":     p.Longitude,
			"lat":     p.Latitude,
		})
	}
	return out
}

// AsTimestamp reports whether v is a stored timestamp and returns it.
func AsTimestamp(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	}
	return time.Time{}, false
}

// AsFloat reads a numeric document value.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
