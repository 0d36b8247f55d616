package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/huh"

	"github.com/gwillem/rover/pkg/hw"
	"github.com/gwillem/rover/pkg/robot"
	"github.com/gwillem/rover/pkg/sensor"
	"github.com/gwillem/rover/pkg/telemetry"
)

func quiet(string, ...any) {}

func TestRunMonitor_StopWaitsForLoop(t *testing.T) {
	sim := hw.NewSim(4)
	cfg := robot.DefaultConfig()
	cfg.RecordPath = filepath.Join(t.TempDir(), "telemetry.db")
	r, err := robot.NewRover(context.Background(), cfg, sim, robot.Options{Logf: quiet})
	if err != nil {
		t.Fatalf("NewRover: %v", err)
	}

	stop := runMonitor(context.Background(), r.Monitor, quiet)
	select {
	case <-r.Monitor.States():
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot from the monitor")
	}
	stop()
	stop()

	// a loop still running would refuse a second start
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Monitor.Start(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Start() after stop error = %v, want context.Canceled", err)
	}

	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if n := r.Recorder().Errors(); n != 0 {
		t.Errorf("recorder had %d failed writes around Close", n)
	}
}

type deadDriver struct{}

func (deadDriver) SetDuty(pin, duty int) error { return errors.New("link down") }
func (deadDriver) Duty(pin int) (int, error)   { return 0, errors.New("link down") }

func TestPulseOutputs_ResetFailureAborts(t *testing.T) {
	err := pulseOutputs(deadDriver{}, robot.DefaultCalibration())
	if err == nil || !strings.Contains(err.Error(), "reset") {
		t.Errorf("pulseOutputs() error = %v, want reset failure", err)
	}
}

func TestFormErr(t *testing.T) {
	if err := formErr(huh.ErrUserAborted); err != nil {
		t.Errorf("formErr(aborted) = %v, want nil", err)
	}
	other := errors.New("tty gone")
	if err := formErr(other); !errors.Is(err, other) {
		t.Errorf("formErr(other) = %v, want %v", err, other)
	}
}

func TestPrintRecording(t *testing.T) {
	rec, err := telemetry.OpenRecorder(filepath.Join(t.TempDir(), "telemetry.db"), "test")
	if err != nil {
		t.Fatal(err)
	}
	defer rec.Close()

	now := time.Now()
	rec.PublishSnapshot(sensor.Snapshot{Time: now, Estimates: []sensor.Estimate{
		{Channel: 0, Label: robot.Front, Distance: 120, Zone: sensor.ZoneDanger, Samples: 1},
	}})
	rec.PublishZone(sensor.ZoneEvent{Time: now, Label: robot.Front, From: sensor.ZoneClear, To: sensor.ZoneDanger, Distance: 120})

	var out bytes.Buffer
	if err := printRecording(&out, rec); err != nil {
		t.Fatalf("printRecording: %v", err)
	}
	for _, want := range []string{rec.RunID(), robot.Front, "1 zone changes", "Clear -> Danger at 120.0mm"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("summary missing %q:\n%s", want, out.String())
		}
	}
}

func TestSensorsModel_ShowsThresholdsAndWindow(t *testing.T) {
	cfg := robot.DefaultConfig()
	cfg.SampleSize = 3
	r, err := robot.NewRover(context.Background(), cfg, hw.NewSim(4), robot.Options{Logf: quiet})
	if err != nil {
		t.Fatalf("NewRover: %v", err)
	}
	defer r.Close()

	m := initialSensorsModel(r.Monitor)
	if got := m.window[robot.Front]; got != 3 {
		t.Errorf("window[%s] = %d, want 3", robot.Front, got)
	}

	next, _ := m.Update(snapshotMsg(r.Monitor.Bank().Read(context.Background())))
	view := next.View()
	th := cfg.Thresholds
	for _, want := range []string{
		fmt.Sprintf("Danger < %.0fmm", th.Danger),
		fmt.Sprintf("Warning < %.0fmm", th.Warning),
		"1/3",
	} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}
