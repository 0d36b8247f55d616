package telemetry

import (
	"fmt"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/gwillem/rover/pkg/sensor"
)

type countingPublisher struct {
	snapshots, zones int
}

func (c *countingPublisher) PublishSnapshot(sensor.Snapshot) { c.snapshots++ }
func (c *countingPublisher) PublishZone(sensor.ZoneEvent)    { c.zones++ }

func TestFanout(t *testing.T) {
	a, b := &countingPublisher{}, &countingPublisher{}
	f := Fanout{a, nil, b}

	f.PublishSnapshot(sensor.Snapshot{})
	f.PublishSnapshot(sensor.Snapshot{})
	f.PublishZone(sensor.ZoneEvent{})

	for i, p := range []*countingPublisher{a, b} {
		if p.snapshots != 2 || p.zones != 1 {
			t.Errorf("publisher %d got %d snapshots, %d zones; want 2, 1", i, p.snapshots, p.zones)
		}
	}
}

func TestLogSink(t *testing.T) {
	var lines []string
	logf := func(format string, args ...any) { lines = append(lines, fmt.Sprintf(format, args...)) }

	snap := sensor.Snapshot{Estimates: []sensor.Estimate{
		{Label: "Front", Distance: 512.44},
		{Label: "Right", Distance: 98, Zone: sensor.ZoneDanger},
	}}

	quiet := LogSink{Logf: logf}
	quiet.PublishSnapshot(snap)
	if len(lines) != 0 {
		t.Errorf("quiet sink logged %q", lines)
	}

	verbose := LogSink{Logf: logf, Snapshots: true}
	verbose.PublishSnapshot(snap)
	verbose.PublishZone(sensor.ZoneEvent{Label: "Right", From: sensor.ZoneWarning, To: sensor.ZoneDanger, Distance: 98})

	want := []string{
		"Front: 512.4mm Right: 98.0mm [Danger]",
		"zone Right: Warning -> Danger at 98.0mm",
	}
	if diff := cmp.Diff(want, lines); diff != "" {
		t.Errorf("log lines mismatch (-want +got):\n%s", diff)
	}
}

func openTestRecorder(t *testing.T) *Recorder {
	t.Helper()
	r, err := OpenRecorder(filepath.Join(t.TempDir(), "rover.db"), "test run")
	if err != nil {
		t.Fatalf("OpenRecorder: %v", err)
	}
	r.Logf = t.Logf
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRecorder_ZoneEvents(t *testing.T) {
	r := openTestRecorder(t)
	if r.RunID() == "" {
		t.Fatal("empty run id")
	}

	base := time.Unix(1700000000, 0)
	in := []sensor.ZoneEvent{
		{Time: base, Channel: 0, Label: "Front", From: sensor.ZoneClear, To: sensor.ZoneWarning, Distance: 250},
		{Time: base.Add(50 * time.Millisecond), Channel: 0, Label: "Front", From: sensor.ZoneWarning, To: sensor.ZoneDanger, Distance: 120.5},
		{Time: base.Add(time.Second), Channel: 2, Label: "Back", From: sensor.ZoneDanger, To: sensor.ZoneClear, Distance: 1000},
	}
	for _, e := range in {
		r.PublishZone(e)
	}

	got, err := r.ZoneEvents()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(in, got); diff != "" {
		t.Errorf("ZoneEvents() mismatch (-want +got):\n%s", diff)
	}
	if r.Errors() != 0 {
		t.Errorf("Errors() = %d, want 0", r.Errors())
	}
}

func TestRecorder_Stats(t *testing.T) {
	r := openTestRecorder(t)

	now := time.Now()
	r.PublishSnapshot(sensor.Snapshot{Time: now, Estimates: []sensor.Estimate{
		{Channel: 0, Label: "Front", Distance: 400},
		{Channel: 1, Label: "Right", Distance: sensor.TimeoutValue, Fault: sensor.ErrTimeout},
	}})
	r.PublishSnapshot(sensor.Snapshot{Time: now.Add(50 * time.Millisecond), Estimates: []sensor.Estimate{
		{Channel: 0, Label: "Front", Distance: 200, Zone: sensor.ZoneWarning},
		{Channel: 1, Label: "Right", Distance: 800},
	}})
	// empty snapshots are not recorded
	r.PublishSnapshot(sensor.Snapshot{Time: now})

	stats, err := r.Stats()
	if err != nil {
		t.Fatal(err)
	}
	want := []ChannelStats{
		{Label: "Front", Samples: 2, MinMM: 200, MeanMM: 300},
		{Label: "Right", Samples: 2, MinMM: 800, MeanMM: 900, Faults: 1},
	}
	if diff := cmp.Diff(want, stats); diff != "" {
		t.Errorf("Stats() mismatch (-want +got):\n%s", diff)
	}
}

func TestRecorder_SeparateRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rover.db")

	first, err := OpenRecorder(path, "")
	if err != nil {
		t.Fatal(err)
	}
	first.PublishZone(sensor.ZoneEvent{Time: time.Now(), Label: "Left", To: sensor.ZoneDanger, Distance: 10})
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second, err := OpenRecorder(path, "")
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()

	if second.RunID() == first.RunID() {
		t.Error("runs share an id")
	}
	events, err := second.ZoneEvents()
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 0 {
		t.Errorf("second run sees %d events from the first", len(events))
	}
}

func TestRecorder_WriteErrorsAreCounted(t *testing.T) {
	r := openTestRecorder(t)
	if err := r.db.Close(); err != nil {
		t.Fatal(err)
	}

	var logged string
	r.Logf = func(format string, args ...any) { logged = fmt.Sprintf(format, args...) }
	r.PublishZone(sensor.ZoneEvent{Distance: math.Pi})

	if r.Errors() != 1 {
		t.Errorf("Errors() = %d, want 1", r.Errors())
	}
	if logged == "" {
		t.Error("write error was not logged")
	}
}
