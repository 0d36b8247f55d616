// Package telemetry provides sinks for the sensor monitor: a log sink, a
// fan-out and a SQLite recorder.
package telemetry

import (
	"fmt"
	"log"
	"strings"

	"github.com/gwillem/rover/pkg/sensor"
)

// LogSink writes zone transitions, and optionally every snapshot, to a log
// function.
type LogSink struct {
	Logf func(format string, args ...any)
	// Snapshots enables one line per snapshot.
	Snapshots bool
}

func (s LogSink) logf(format string, args ...any) {
	if s.Logf == nil {
		log.Printf(format, args...)
		return
	}
	s.Logf(format, args...)
}

func (s LogSink) PublishSnapshot(snap sensor.Snapshot) {
	if !s.Snapshots {
		return
	}
	s.logf("%s", FormatSnapshot(snap))
}

func (s LogSink) PublishZone(e sensor.ZoneEvent) {
	s.logf("zone %s: %s -> %s at %.1fmm", e.Label, e.From, e.To, e.Distance)
}

// FormatSnapshot renders one line like "Front: 512.4mm Right: 98.0mm [Danger]".
func FormatSnapshot(snap sensor.Snapshot) string {
	var b strings.Builder
	for i, est := range snap.Estimates {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s: %.1fmm", est.Label, est.Distance)
		if est.Zone != sensor.ZoneClear {
			fmt.Fprintf(&b, " [%s]", est.Zone)
		}
	}
	return b.String()
}

// Fanout forwards to every publisher in order. Nil entries are skipped.
type Fanout []sensor.Publisher

func (f Fanout) PublishSnapshot(snap sensor.Snapshot) {
	for _, p := range f {
		if p != nil {
			p.PublishSnapshot(snap)
		}
	}
}

func (f Fanout) PublishZone(e sensor.ZoneEvent) {
	for _, p := range f {
		if p != nil {
			p.PublishZone(e)
		}
	}
}
