package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gwillem/rover/pkg/console"
	"github.com/gwillem/rover/pkg/robot"
)

type DriveCommand struct {
	Guard     bool    `long:"guard" description:"Refuse to drive toward an obstacle in the Danger zone"`
	Speed     float64 `long:"speed" description:"Default speed until a command sets one (0.0-1.0)"`
	Sim       bool    `long:"sim" description:"Use the in-memory simulator instead of the bridge board"`
	Record    string  `long:"record" description:"Record sensor telemetry to this SQLite file"`
	NoSensors bool    `long:"no-sensors" description:"Skip sensor bring-up"`
	Verbose   bool    `short:"v" long:"verbose" description:"Log every sensor read cycle, not only zone changes"`
}

// loadConfig reads the --config file and applies the flags shared by the
// hardware commands.
func loadConfig(sim bool, record string) (*robot.Config, error) {
	cfg, err := robot.LoadOrDefault(opts.Config)
	if err != nil {
		return nil, err
	}
	if sim {
		cfg.Port = robot.SimPort
	}
	if record != "" {
		cfg.RecordPath = record
	}
	return cfg, nil
}

func (c *DriveCommand) Execute(args []string) error {
	cfg, err := loadConfig(c.Sim, c.Record)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if c.Guard {
		cfg.Guard = true
	}
	if c.Speed > 0 {
		cfg.DefaultSpeed = c.Speed
	}

	// SIGINT is handled by the console: it cancels the running command.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	h, err := robot.OpenHardware(cfg)
	if err != nil {
		return fmt.Errorf("open hardware on %s: %w", cfg.Port, err)
	}
	rover, err := robot.NewRover(ctx, cfg, h, robot.Options{SkipSensors: c.NoSensors, Snapshots: c.Verbose})
	if err != nil {
		return err
	}
	// runs on return and on panic, so the motors are always stopped
	defer func() {
		if err := rover.Close(); err != nil {
			log.Printf("close: %v", err)
		}
	}()

	// deferred after Close, so it runs first: no reads race the shutdown
	stopMonitor := runMonitor(ctx, rover.Monitor, log.Printf)
	defer stopMonitor()

	logCtx, stopLogs := context.WithCancel(ctx)
	defer stopLogs()
	go func() {
		for {
			select {
			case <-logCtx.Done():
				return
			case msg := <-rover.Monitor.Logs():
				fmt.Fprintln(log.Writer(), msg)
			}
		}
	}()

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	session := console.NewSession(rover.Executor)
	session.Interrupt = interrupts
	err = session.Run(ctx, os.Stdin, os.Stdout)

	fmt.Println("\nStopping motors and cleaning up...")
	stopMonitor()
	if rec := rover.Recorder(); rec != nil {
		if err := printRecording(os.Stdout, rec); err != nil {
			log.Printf("recording summary: %v", err)
		}
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
