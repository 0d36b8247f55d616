// Package robot assembles the rover from its configuration: hardware,
// sensor channels, the monitor and the command executor.
package robot

import "github.com/gwillem/rover/pkg/drive"

// OutputName identifies an ESC input in the configuration file.
type OutputName string

// Output names for the two ESC pairs.
const (
	ESC1M1 OutputName = "esc1_m1"
	ESC1M2 OutputName = "esc1_m2"
	ESC2M1 OutputName = "esc2_m1"
	ESC2M2 OutputName = "esc2_m2"
)

// AllOutputs returns all output names in drive.Output order.
func AllOutputs() []OutputName {
	return []OutputName{
		ESC1M1,
		ESC1M2,
		ESC2M1,
		ESC2M2,
	}
}

// Output returns the drive output for name.
func (n OutputName) Output() (drive.Output, bool) {
	for i, name := range AllOutputs() {
		if name == n {
			return drive.Output(i), true
		}
	}
	return 0, false
}

// Sensor labels, by channel index, for the default four-sensor ring.
const (
	Front = "Front"
	Right = "Right"
	Back  = "Back"
	Left  = "Left"
)
