package sensor

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultHz is the default read cadence (one cycle every 50 ms).
const DefaultHz = 20

// ZoneEvent reports a channel moving from one zone to another.
type ZoneEvent struct {
	Time     time.Time
	Channel  int
	Label    string
	From     Zone
	To       Zone
	Distance float64
}

// Publisher receives telemetry from the monitor.
type Publisher interface {
	PublishSnapshot(Snapshot)
	PublishZone(ZoneEvent)
}

// MonitorConfig holds configuration for the monitor.
type MonitorConfig struct {
	Hz        int
	Publisher Publisher
}

// Monitor runs the periodic read loop over a bank. It never touches the
// actuators; it only produces snapshots and zone events.
type Monitor struct {
	bank      *Bank
	hz        int
	publisher Publisher

	mu      sync.RWMutex
	running bool
	latest  Snapshot
	zones   map[int]Zone

	stateCh chan Snapshot
	logCh   chan string
}

// NewMonitor creates a monitor for bank.
func NewMonitor(bank *Bank, cfg MonitorConfig) *Monitor {
	if cfg.Hz <= 0 {
		cfg.Hz = DefaultHz
	}
	return &Monitor{
		bank:      bank,
		hz:        cfg.Hz,
		publisher: cfg.Publisher,
		zones:     make(map[int]Zone),
		stateCh:   make(chan Snapshot, 1),
		logCh:     make(chan string, 10),
	}
}

// States returns a channel that receives the latest snapshot.
func (m *Monitor) States() <-chan Snapshot {
	return m.stateCh
}

// Logs returns a channel that receives log messages.
func (m *Monitor) Logs() <-chan string {
	return m.logCh
}

// Hz returns the read frequency.
func (m *Monitor) Hz() int {
	return m.hz
}

// Bank returns the channel bank being read.
func (m *Monitor) Bank() *Bank {
	return m.bank
}

// Latest returns the most recent snapshot.
func (m *Monitor) Latest() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest
}

// Zone returns the current zone of the channel labelled label. The second
// result is false until that channel has been read at least once.
func (m *Monitor) Zone(label string) (Zone, float64, bool) {
	e, ok := m.Latest().ByLabel(label)
	if !ok {
		return ZoneClear, 0, false
	}
	return e.Zone, e.Distance, true
}

func (m *Monitor) log(format string, args ...any) {
	msg := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), fmt.Sprintf(format, args...))
	select {
	case m.logCh <- msg:
	default:
		// Drop if channel full
	}
}

// Start runs the read loop until ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("already running")
	}
	m.running = true
	m.mu.Unlock()

	for _, c := range m.bank.Channels() {
		if !c.Available() {
			m.log("%v", c.Err())
		}
	}
	m.log("Sensor monitor started at %d Hz", m.hz)

	ticker := time.NewTicker(time.Second / time.Duration(m.hz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.mu.Lock()
			m.running = false
			m.mu.Unlock()
			m.log("Sensor monitor stopped")
			return ctx.Err()
		case <-ticker.C:
			m.step(ctx)
		}
	}
}

func (m *Monitor) step(ctx context.Context) Snapshot {
	snap := m.bank.Read(ctx)

	var events []ZoneEvent
	m.mu.Lock()
	m.latest = snap
	for _, e := range snap.Estimates {
		prev, seen := m.zones[e.Channel]
		m.zones[e.Channel] = e.Zone
		if seen && prev == e.Zone {
			continue
		}
		if !seen && e.Zone == ZoneClear {
			continue
		}
		events = append(events, ZoneEvent{
			Time:     snap.Time,
			Channel:  e.Channel,
			Label:    e.Label,
			From:     prev,
			To:       e.Zone,
			Distance: e.Distance,
		})
	}
	m.mu.Unlock()

	for _, ev := range events {
		switch ev.To {
		case ZoneDanger:
			m.log("DANGER! %s obstacle at %.1fmm", ev.Label, ev.Distance)
		case ZoneWarning:
			m.log("Warning: %s obstacle at %.1fmm", ev.Label, ev.Distance)
		default:
			m.log("%s clear at %.1fmm", ev.Label, ev.Distance)
		}
	}

	if m.publisher != nil {
		m.publisher.PublishSnapshot(snap)
		for _, ev := range events {
			m.publisher.PublishZone(ev)
		}
	}

	m.sendState(snap)
	return snap
}

func (m *Monitor) sendState(s Snapshot) {
	select {
	case m.stateCh <- s:
	default:
		// Drop old state if channel full, replace with new
		select {
		case <-m.stateCh:
		default:
		}
		m.stateCh <- s
	}
}
