package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/gwillem/rover/pkg/sensor"
	"github.com/gwillem/rover/pkg/telemetry"
)

// runMonitor starts the sensor loop. The returned stop cancels it and waits
// until the loop has returned; call it before the rover is closed. stop may
// be called more than once.
func runMonitor(ctx context.Context, mon *sensor.Monitor, logf func(string, ...any)) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := mon.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logf("Sensor monitor error: %v", err)
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// maxEvents is the number of zone events listed in the summary.
const maxEvents = 5

// printRecording writes a per-channel summary of the current recording run.
func printRecording(w io.Writer, rec *telemetry.Recorder) error {
	stats, err := rec.Stats()
	if err != nil {
		return err
	}
	events, err := rec.ZoneEvents()
	if err != nil {
		return err
	}

	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)

	rows := make([][]string, 0, len(stats))
	for _, s := range stats {
		rows = append(rows, []string{
			s.Label,
			fmt.Sprintf("%d", s.Samples),
			fmt.Sprintf("%.1f", s.MinMM),
			fmt.Sprintf("%.1f", s.MeanMM),
			fmt.Sprintf("%d", s.Faults),
		})
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Sensor", "Samples", "Min mm", "Mean mm", "Faults").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})

	fmt.Fprintf(w, "Recording run %s\n", rec.RunID())
	fmt.Fprintln(w, t.Render())
	fmt.Fprintf(w, "%d zone changes", len(events))
	if rec.Errors() > 0 {
		fmt.Fprintf(w, ", %d failed writes", rec.Errors())
	}
	fmt.Fprintln(w)
	for _, ev := range events[max(len(events)-maxEvents, 0):] {
		fmt.Fprintf(w, "  %s %s: %s -> %s at %.1fmm\n", ev.Time.Format("15:04:05.000"), ev.Label, ev.From, ev.To, ev.Distance)
	}
	return nil
}
