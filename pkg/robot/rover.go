package robot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/gwillem/rover/pkg/drive"
	"github.com/gwillem/rover/pkg/hw"
	"github.com/gwillem/rover/pkg/sensor"
	"github.com/gwillem/rover/pkg/telemetry"
)

// Hardware is everything the rover needs from the board.
type Hardware interface {
	drive.Driver
	sensor.ShutdownLines
	sensor.Addresser
	sensor.EchoTimer
	Configure(pin, hz, rangeMax int) error
	Close() error
}

// OpenHardware opens the bridge named by cfg.Port, or a simulator for
// SimPort.
func OpenHardware(cfg *Config) (Hardware, error) {
	if cfg.Port == SimPort || cfg.Port == "" {
		return hw.NewSim(len(cfg.Sensors)), nil
	}
	return hw.OpenBridge(cfg.Port, cfg.BaudRate, cfg.XShutPins())
}

// Options tune rover assembly.
type Options struct {
	Logf func(format string, args ...any)
	// Publisher receives telemetry in addition to the log sink and the
	// recorder.
	Publisher sensor.Publisher
	// SkipSensors leaves the sensor bank empty.
	SkipSensors bool
	// Snapshots also logs every read cycle, not only zone changes.
	Snapshots bool
}

// Rover owns the hardware handle and everything built on it.
type Rover struct {
	Config   *Config
	Executor *drive.Executor
	Monitor  *sensor.Monitor
	// BringUp holds the per-sensor bring-up outcome.
	BringUp []sensor.Result

	hw       Hardware
	recorder *telemetry.Recorder
	logf     func(format string, args ...any)

	closeOnce sync.Once
	closeErr  error
}

// NewRover initializes every output to zero duty, brings up the sensors and
// assembles the executor. A PWM initialization failure closes hw and is
// returned; the rover never runs with outputs in an unknown state.
func NewRover(ctx context.Context, cfg *Config, h Hardware, opts Options) (*Rover, error) {
	if err := cfg.Validate(); err != nil {
		h.Close()
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logf := opts.Logf
	if logf == nil {
		logf = log.Printf
	}

	r := &Rover{Config: cfg, hw: h, logf: logf}

	if err := r.initPWM(); err != nil {
		h.Close()
		return nil, fmt.Errorf("initialize pwm: %w", err)
	}

	if cfg.RecordPath != "" {
		rec, err := telemetry.OpenRecorder(cfg.RecordPath, cfg.Port)
		if err != nil {
			r.shutdownPWM()
			h.Close()
			return nil, err
		}
		rec.Logf = logf
		r.recorder = rec
		logf("recording telemetry to %s (run %s)", cfg.RecordPath, rec.RunID())
	}

	channels, err := r.bringUpSensors(ctx, opts.SkipSensors)
	if err != nil {
		r.Close()
		return nil, err
	}

	pub := telemetry.Fanout{telemetry.LogSink{Logf: logf, Snapshots: opts.Snapshots}}
	if r.recorder != nil {
		pub = append(pub, r.recorder)
	}
	if opts.Publisher != nil {
		pub = append(pub, opts.Publisher)
	}
	r.Monitor = sensor.NewMonitor(sensor.NewBank(channels, cfg.Thresholds), sensor.MonitorConfig{
		Hz:        cfg.ReadHz,
		Publisher: pub,
	})

	var guard drive.Guard
	if cfg.Guard {
		guard = NewZoneGuard(r.Monitor)
	}
	r.Executor = drive.NewExecutor(drive.Config{
		Driver: h,
		Pins:   cfg.Outputs.Pins(),
		Mapper: drive.Mapper{
			Trim: cfg.Outputs.Trim(),
			Max:  cfg.PWM.Range,
		},
		DefaultSpeed: cfg.DefaultSpeed,
		Guard:        guard,
		Logf:         logf,
	})

	return r, nil
}

func (r *Rover) initPWM() error {
	for _, name := range AllOutputs() {
		pin := r.Config.Outputs[name].Pin
		if err := r.hw.Configure(pin, r.Config.PWM.Frequency, r.Config.PWM.Range); err != nil {
			return fmt.Errorf("configure %s (pin %d): %w", name, pin, err)
		}
		if err := r.hw.SetDuty(pin, 0); err != nil {
			return fmt.Errorf("zero %s (pin %d): %w", name, pin, err)
		}
	}
	r.logf("pwm ready: %d outputs at %d Hz, range %d", len(AllOutputs()), r.Config.PWM.Frequency, r.Config.PWM.Range)
	return nil
}

// shutdownPWM zeroes outputs before an executor exists.
func (r *Rover) shutdownPWM() {
	for _, name := range AllOutputs() {
		r.hw.SetDuty(r.Config.Outputs[name].Pin, 0)
	}
}

func (r *Rover) bringUpSensors(ctx context.Context, skip bool) ([]*sensor.Channel, error) {
	if skip {
		return nil, nil
	}

	var results []sensor.Result
	if len(r.Config.Sensors) > 0 {
		var err error
		results, err = sensor.BringUp{
			Lines:        r.hw,
			Addresser:    r.hw,
			TimingBudget: r.Config.TimingBudgetDuration(),
			Logf:         r.logf,
		}.Run(ctx, r.Config.Addresses())
		r.BringUp = results
		if err != nil {
			return nil, fmt.Errorf("sensor bring-up: %w", err)
		}
	}

	channels := make([]*sensor.Channel, len(results), len(results)+len(r.Config.Ultrasonic))
	for i, res := range results {
		label := r.Config.Sensors[i].Label
		window := sensor.NewWindow(r.Config.SampleSize, sensor.DefaultNormalizer())
		channels[i] = sensor.NewChannel(i, label, res.Ranger, window)
		if res.Err != nil {
			channels[i].Disable(res.Err)
			r.logf("sensor %d (%s) excluded: %v", i, label, res.Err)
		}
	}

	// ultrasonic sensors need no bring-up and follow the ranging sensors
	for _, u := range r.Config.Ultrasonic {
		ranger := &sensor.Ultrasonic{Timer: r.hw, Trig: u.Trig, Echo: u.Echo}
		window := sensor.NewWindow(r.Config.SampleSize, sensor.DefaultNormalizer())
		channels = append(channels, sensor.NewChannel(len(channels), u.Label, ranger, window))
	}
	return channels, nil
}

// Hardware returns the underlying board.
func (r *Rover) Hardware() Hardware {
	return r.hw
}

// Recorder returns the telemetry recorder, or nil when recording is off.
func (r *Rover) Recorder() *telemetry.Recorder {
	return r.recorder
}

// Close stops the actuators, then releases the recorder and the hardware.
// It is safe to call more than once.
func (r *Rover) Close() error {
	r.closeOnce.Do(func() {
		var errs []error
		if r.Executor != nil {
			errs = append(errs, r.Executor.Shutdown())
		} else {
			r.shutdownPWM()
		}
		if r.recorder != nil {
			errs = append(errs, r.recorder.Close())
		}
		errs = append(errs, r.hw.Close())
		r.closeErr = errors.Join(errs...)
	})
	return r.closeErr
}
