package telemetry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/celerix-dev/celerix-telemetry/pkg/schema"
)

// Batch is the aggregate of one ingested reading sequence.
type Batch struct {
	Location    schema.Location
	HasLocation bool
	// Devices lists bluetooth device IDs in arrival order, duplicates kept.
	Devices []string
	// CapturedAtNanos is the first reading's instant and the batch time.
	CapturedAtNanos int64
}

type bluetoothValues struct {
	ID *string `json:"id"`
}

type locationValues struct {
	Longitude *float64 `json:"longitude"`
	Latitude  *float64 `json:"latitude"`
}

// ParseReadings types every raw reading. The first reading must carry a
// time; unrecognized kinds become UnknownReading.
func ParseReadings(raw []schema.RawReading) ([]schema.SensorReading, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: payload is empty", ErrInvalidPayload)
	}

	readings := make([]schema.SensorReading, 0, len(raw))
	for i, r := range raw {
		reading, err := parseReading(r, i == 0)
		if err != nil {
			return nil, fmt.Errorf("%w: reading %d: %v", ErrInvalidPayload, i, err)
		}
		readings = append(readings, reading)
	}
	return readings, nil
}

func parseReading(r schema.RawReading, timeRequired bool) (schema.SensorReading, error) {
	if strings.TrimSpace(r.Name) == "" {
		return nil, fmt.Errorf("missing name")
	}

	nanos, err := parseNanos(r.Time, timeRequired)
	if err != nil {
		return nil, err
	}

	switch r.Name {
	case schema.KindBluetooth:
		var v bluetoothValues
		if err := decodeValues(r.Values, &v); err != nil {
			return nil, err
		}
		if v.ID == nil {
			return nil, fmt.Errorf("bluetooth reading without id")
		}
		return schema.BluetoothReading{DeviceID: *v.ID, TimeNanos: nanos}, nil

	case schema.KindLocation:
		var v locationValues
		if err := decodeValues(r.Values, &v); err != nil {
			return nil, err
		}
		if v.Longitude == nil || v.Latitude == nil {
			return nil, fmt.Errorf("location reading needs latitude and longitude")
		}
		return schema.LocationReading{Longitude: *v.Longitude, Latitude: *v.Latitude, TimeNanos: nanos}, nil

	default:
		return schema.UnknownReading{Name: r.Name, TimeNanos: nanos}, nil
	}
}

func parseNanos(n json.Number, required bool) (int64, error) {
	if n == "" {
		if required {
			return 0, fmt.Errorf("first reading has no time")
		}
		return 0, nil
	}
	if v, err := n.Int64(); err == nil {
		return v, nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, fmt.Errorf("time %q is not a number", n.String())
	}
	// float64(math.MaxInt64) rounds up to 2^63, which does not fit.
	if math.IsNaN(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("time %q is out of range", n.String())
	}
	return int64(f), nil
}

func decodeValues(raw json.RawMessage, dst any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return fmt.Errorf("values must be an object")
	}
	if err := json.Unmarshal(trimmed, dst); err != nil {
		return fmt.Errorf("values: %v", err)
	}
	return nil
}

// Aggregate folds typed readings into a Batch. The last location wins and
// a batch without one stays at {0,0}.
func Aggregate(readings []schema.SensorReading) Batch {
	b := Batch{Devices: []string{}}
	if len(readings) > 0 {
		b.CapturedAtNanos = readings[0].CapturedAt()
	}

	for _, r := range readings {
		switch v := r.(type) {
		case schema.BluetoothReading:
			b.Devices = append(b.Devices, v.DeviceID)
		case schema.LocationReading:
			b.Location = schema.Location{Latitude: v.Latitude, Longitude: v.Longitude}
			b.HasLocation = true
		case schema.UnknownReading:
			// ignored
		}
	}
	return b
}

// ParseBatch is ParseReadings followed by Aggregate.
func ParseBatch(raw []schema.RawReading) (Batch, error) {
	readings, err := ParseReadings(raw)
	if err != nil {
		return Batch{}, err
	}
	return Aggregate(readings), nil
}
