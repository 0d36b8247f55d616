// Package sensor fuses ranging sensor readings into smoothed distance
// estimates and classifies them into obstacle zones.
package sensor

import (
	"context"
	"errors"
	"math"
)

const (
	// DefaultSampleSize is the number of readings averaged per channel.
	DefaultSampleSize = 5

	// TimeoutValue replaces any faulted or out-of-range reading.
	TimeoutValue = 1000.0

	// MaxRange is the largest raw distance in mm accepted from a sensor.
	// VL53L0X modules are specified up to roughly 2 m.
	MaxRange = 2000.0
)

// Sensor faults. They never leave this package as failures; Normalize turns
// them into TimeoutValue.
var (
	ErrTimeout    = errors.New("sensor timeout")
	ErrOutOfRange = errors.New("sensor out of range")
	ErrBus        = errors.New("sensor bus error")

	// ErrUnavailable marks a channel whose bring-up failed.
	ErrUnavailable = errors.New("sensor unavailable")
)

// Reading is a single raw sample: a distance in millimetres, or a fault.
type Reading struct {
	MM    float64
	Fault error
}

// Fault returns a faulted reading.
func Fault(err error) Reading {
	return Reading{Fault: err}
}

// Ranger is one physical ranging sensor.
type Ranger interface {
	// Read returns a distance in millimetres. A non-nil error is a fault.
	Read(ctx context.Context) (float64, error)
}

// Normalizer substitutes a sentinel for unusable readings.
type Normalizer struct {
	MaxRange     float64
	TimeoutValue float64
}

// DefaultNormalizer returns the normalizer with the calibrated constants.
func DefaultNormalizer() Normalizer {
	return Normalizer{MaxRange: MaxRange, TimeoutValue: TimeoutValue}
}

// Normalize returns the value to store for r. Faults, NaN and readings above
// the range ceiling become the timeout sentinel.
func (n Normalizer) Normalize(r Reading) float64 {
	if r.Fault != nil || math.IsNaN(r.MM) || r.MM > n.MaxRange {
		return n.TimeoutValue
	}
	return r.MM
}
