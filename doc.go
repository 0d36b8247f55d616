// Package rover is the control core for a four-ESC wheeled robot with a ring
// of time-of-flight ranging sensors.
//
// It smooths each sensor's readings over a short window, classifies the
// result into Clear, Warning and Danger zones, and maps movement commands
// onto PWM duty cycles for the two ESC pairs.
//
// # Installation
//
//	go install github.com/gwillem/rover/cmd/rover@latest
//
// # Usage
//
// First, run setup to find the bridge board and bring up the sensors:
//
//	rover setup
//
// Then drive from the console, or watch the sensors:
//
//	rover drive
//	rover sensors
//
// Every command accepts --sim to run against the in-memory simulator.
//
// # Packages
//
// The module is organized into the following packages:
//
//   - cmd/rover: CLI with setup, drive and sensors commands
//   - pkg/sensor: Sliding windows, zone classification, bring-up and the read loop
//   - pkg/drive: Movement intents, the duty mapper and the command executor
//   - pkg/console: Command-line parsing and the interactive session
//   - pkg/hw: Serial bridge board and simulator
//   - pkg/telemetry: Log sink and SQLite telemetry recorder
//   - pkg/robot: Configuration, calibration and rover assembly
package rover
