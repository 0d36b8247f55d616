package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/gwillem/rover/pkg/robot"
	"github.com/gwillem/rover/pkg/sensor"
)

type SensorsCommand struct {
	Hz     int    `long:"hz" description:"Read frequency (default from config)"`
	Sim    bool   `long:"sim" description:"Use the in-memory simulator instead of the bridge board"`
	Record string `long:"record" description:"Record sensor telemetry to this SQLite file"`
}

const (
	headerHeight = 2 // title + blank line
	tableHeight  = 8 // zone table incl. border
	footerHeight = 7 // log box height
	maxLogs      = 5 // number of log messages to show
	borderSize   = 2 // chart border
)

// Channel colors by label
var labelColors = map[string]string{
	robot.Front: "196", // red
	robot.Right: "208", // orange
	robot.Back:  "46",  // green
	robot.Left:  "51",  // cyan
}

func labelColor(label string) string {
	if c, ok := labelColors[label]; ok {
		return c
	}
	return "201" // magenta
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	zoneStyles = map[sensor.Zone]lipgloss.Style{
		sensor.ZoneClear:   lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Padding(0, 1),
		sensor.ZoneWarning: lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Padding(0, 1),
		sensor.ZoneDanger:  lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true).Padding(0, 1),
	}
)

type sensorsModel struct {
	mon      *sensor.Monitor
	labels   []string
	window   map[string]int // window capacity by label
	chart    *streamlinechart.Model
	width    int // terminal width
	height   int // terminal height
	logs     []string
	latest   sensor.Snapshot
	quitting bool
}

func (m *sensorsModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// Messages from the monitor
type snapshotMsg sensor.Snapshot
type logMsg string

func waitForSnapshot(mon *sensor.Monitor) tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg(<-mon.States())
	}
}

func waitForLog(mon *sensor.Monitor) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-mon.Logs())
	}
}

// chartSize calculates the size of the chart based on terminal dimensions
func (m *sensorsModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 16 // default size before we know terminal size
	}
	width = max(m.width-borderSize-2, 40)
	height = max(m.height-headerHeight-tableHeight-footerHeight-borderSize, 8)
	return width, height
}

func initialSensorsModel(mon *sensor.Monitor) sensorsModel {
	chart := streamlinechart.New(80, 16,
		streamlinechart.WithYRange(0, sensor.TimeoutValue),
	)

	var labels []string
	window := map[string]int{}
	for _, c := range mon.Bank().Channels() {
		if !c.Available() {
			continue
		}
		labels = append(labels, c.Label)
		window[c.Label] = c.Window().Cap()
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(labelColor(c.Label)))
		chart.SetDataSetStyles(c.Label, runes.ThinLineStyle, style)
	}

	return sensorsModel{
		mon:    mon,
		labels: labels,
		window: window,
		chart:  &chart,
	}
}

func (m sensorsModel) Init() tea.Cmd {
	return tea.Batch(
		waitForSnapshot(m.mon),
		waitForLog(m.mon),
	)
}

func (m sensorsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		w, h := m.chartSize()
		m.chart.Resize(w, h)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case snapshotMsg:
		m.latest = sensor.Snapshot(msg)
		for _, est := range m.latest.Estimates {
			// sentinel readings are drawn at the top of the chart
			m.chart.PushDataSet(est.Label, min(est.Distance, sensor.TimeoutValue))
		}
		m.chart.DrawAll()
		return m, waitForSnapshot(m.mon)

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.mon)
	}

	return m, nil
}

func (m sensorsModel) View() string {
	if m.quitting {
		return "Sensor view stopped.\n"
	}

	var sb strings.Builder

	// Header
	sb.WriteString(titleStyle.Render("Rover Sensors"))
	th := m.mon.Bank().Thresholds()
	sb.WriteString(fmt.Sprintf(" - %d Hz, Danger < %.0fmm, Warning < %.0fmm", m.mon.Hz(), th.Danger, th.Warning))
	if !m.latest.Time.IsZero() {
		sb.WriteString(statusStyle.Render("  " + m.latest.Time.Format("15:04:05.000")))
	}
	sb.WriteString("\n\n")

	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")
	sb.WriteString(renderLegend(m.labels))
	sb.WriteString("\n")
	sb.WriteString(m.renderTable())
	sb.WriteString("\n")

	// Log box
	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(max(m.width-4, 20)).
		Foreground(lipgloss.Color("9")) // bright red

	var logLines string
	if len(m.logs) == 0 {
		logLines = statusStyle.Render("Press 'q' to quit")
	} else {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}

func (m sensorsModel) renderTable() string {
	tableHeaderStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)

	estimates := m.latest.Estimates
	rows := make([][]string, 0, len(estimates))
	for _, est := range estimates {
		status := "ok"
		if est.Fault != nil {
			status = est.Fault.Error()
		}
		rows = append(rows, []string{
			est.Label,
			fmt.Sprintf("%.1f mm", est.Distance),
			est.Zone.String(),
			fmt.Sprintf("%d/%d", est.Samples, m.window[est.Label]),
			status,
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(statusStyle).
		Headers("Sensor", "Distance", "Zone", "Samples", "Last read").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			switch col {
			case 0:
				return labelStyle
			case 2:
				if row >= 0 && row < len(estimates) {
					return zoneStyles[estimates[row].Zone]
				}
			}
			return cellStyle
		})
	return t.Render()
}

func renderLegend(labels []string) string {
	var items []string
	for _, label := range labels {
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(labelColor(label))).Bold(true)
		items = append(items, colorStyle.Render("━━")+" "+label)
	}
	return strings.Join(items, "  ")
}

// fileLogf logs to the --log-file only, so the TUI is not overwritten.
func fileLogf(format string, args ...any) {
	if logFile == nil {
		return
	}
	fmt.Fprintf(logFile, "%s %s\n", time.Now().Format("2006/01/02 15:04:05"), fmt.Sprintf(format, args...))
}

func (c *SensorsCommand) Execute(args []string) error {
	cfg, err := loadConfig(c.Sim, c.Record)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if c.Hz > 0 {
		cfg.ReadHz = c.Hz
	}

	ctx := context.Background()

	h, err := robot.OpenHardware(cfg)
	if err != nil {
		return fmt.Errorf("open hardware on %s: %w", cfg.Port, err)
	}

	fmt.Printf("Bringing up %d sensors on %s...\n", len(cfg.Sensors), cfg.Port)
	rover, err := robot.NewRover(ctx, cfg, h, robot.Options{Logf: fileLogf})
	if err != nil {
		return err
	}
	defer rover.Close()

	for _, res := range rover.BringUp {
		if res.Err != nil {
			fmt.Printf("  sensor %d at 0x%02x: %v\n", res.Index, res.Address, res.Err)
		}
	}

	// deferred after Close, so it runs first
	stopMonitor := runMonitor(ctx, rover.Monitor, fileLogf)
	defer stopMonitor()

	p := tea.NewProgram(initialSensorsModel(rover.Monitor), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run sensor view: %w", err)
	}

	stopMonitor()
	if rec := rover.Recorder(); rec != nil {
		return printRecording(os.Stdout, rec)
	}
	return nil
}
