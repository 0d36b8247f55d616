package robot

import (
	"fmt"

	"github.com/gwillem/rover/pkg/drive"
)

// OutputCalibration holds wiring and trim for a single output.
type OutputCalibration struct {
	Pin int `json:"pin"`
	// Trim is added to the duty whenever the output is driven.
	Trim int `json:"trim"`
}

// Calibration holds calibration data for all outputs, keyed by output name.
type Calibration map[OutputName]OutputCalibration

// DefaultCalibration returns the stock wiring with no trim.
func DefaultCalibration() Calibration {
	return Calibration{
		ESC1M1: {Pin: 21},
		ESC1M2: {Pin: 20},
		ESC2M1: {Pin: 1},
		ESC2M2: {Pin: 12},
	}
}

// Validate checks that every output is present on a distinct pin.
func (c Calibration) Validate() error {
	seen := make(map[int]OutputName, len(c))
	for _, name := range AllOutputs() {
		oc, ok := c[name]
		if !ok {
			return fmt.Errorf("output %s not configured", name)
		}
		if other, dup := seen[oc.Pin]; dup {
			return fmt.Errorf("outputs %s and %s share pin %d", other, name, oc.Pin)
		}
		seen[oc.Pin] = name
	}
	for name := range c {
		if _, ok := name.Output(); !ok {
			return fmt.Errorf("unknown output %q", name)
		}
	}
	return nil
}

// Pins returns the pin of every output in drive.Output order.
func (c Calibration) Pins() [drive.NumOutputs]int {
	var pins [drive.NumOutputs]int
	// Use AllOutputs() to ensure consistent ordering
	for i, name := range AllOutputs() {
		pins[i] = c[name].Pin
	}
	return pins
}

// Trim returns the per-output trim as a mapper offset.
func (c Calibration) Trim() drive.Target {
	var t drive.Target
	for i, name := range AllOutputs() {
		t[i] = c[name].Trim
	}
	return t
}

// ByPin returns output name and calibration for a given pin.
func (c Calibration) ByPin(pin int) (OutputName, OutputCalibration, bool) {
	for name, oc := range c {
		if oc.Pin == pin {
			return name, oc, true
		}
	}
	return "", OutputCalibration{}, false
}
