package hw

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gwillem/rover/pkg/drive"
	"github.com/gwillem/rover/pkg/sensor"
)

var (
	ErrNotConfigured = errors.New("pin not configured")
	ErrDutyRange     = errors.New("duty outside pin range")
	ErrAddress       = errors.New("address assignment needs exactly one powered sensor")
)

// Sim is an in-memory stand-in for the bridge board. Sensors only answer
// once they have been given an address with their shutdown line enabled,
// like the real parts.
type Sim struct {
	mu       sync.Mutex
	ranges   map[int]int
	duty     map[int]int
	lines    []bool
	distance []float64
	faults   []error
	addrErrs []error
	budgets  []time.Duration
	echoes   map[int]float64 // by trigger pin
	writes   int
	closed   bool
}

// NewSim creates a simulator with n sensors, all reading clear.
func NewSim(n int) *Sim {
	s := &Sim{
		ranges:   map[int]int{},
		duty:     map[int]int{},
		lines:    make([]bool, n),
		distance: make([]float64, n),
		faults:   make([]error, n),
		addrErrs: make([]error, n),
		budgets:  make([]time.Duration, n),
		echoes:   map[int]float64{},
	}
	for i := range s.distance {
		s.distance[i] = sensor.TimeoutValue
	}
	return s
}

// SetDistance sets what sensor index reads from now on.
func (s *Sim) SetDistance(index int, mm float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.distance[index] = mm
	s.faults[index] = nil
}

// SetFault makes sensor index fail every read with err.
func (s *Sim) SetFault(index int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[index] = err
}

// SetAddressFault makes address assignment of sensor index fail with err.
func (s *Sim) SetAddressFault(index int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addrErrs[index] = err
}

// Writes returns the number of accepted duty writes.
func (s *Sim) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *Sim) Configure(pin, hz, rangeMax int) error {
	if hz <= 0 || rangeMax <= 0 {
		return fmt.Errorf("configure pin %d: invalid %d Hz / range %d", pin, hz, rangeMax)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ranges[pin] = rangeMax
	s.duty[pin] = 0
	return nil
}

func (s *Sim) SetDuty(pin, duty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setDuty(pin, duty)
}

func (s *Sim) setDuty(pin, duty int) error {
	if s.closed {
		return ErrClosed
	}
	rng, ok := s.ranges[pin]
	if !ok {
		return fmt.Errorf("pin %d: %w", pin, ErrNotConfigured)
	}
	if duty < 0 || duty > rng {
		return fmt.Errorf("pin %d duty %d: %w", pin, duty, ErrDutyRange)
	}
	s.duty[pin] = duty
	s.writes++
	return nil
}

// SetDuties validates every pin before writing any of them.
func (s *Sim) SetDuties(duties []drive.Duty) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for _, d := range duties {
		rng, ok := s.ranges[d.Pin]
		if !ok {
			return fmt.Errorf("pin %d: %w", d.Pin, ErrNotConfigured)
		}
		if d.Value < 0 || d.Value > rng {
			return fmt.Errorf("pin %d duty %d: %w", d.Pin, d.Value, ErrDutyRange)
		}
	}
	for _, d := range duties {
		s.setDuty(d.Pin, d.Value)
	}
	return nil
}

func (s *Sim) Duty(pin int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ranges[pin]; !ok {
		return 0, fmt.Errorf("pin %d: %w", pin, ErrNotConfigured)
	}
	return s.duty[pin], nil
}

func (s *Sim) SetLine(index int, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.lines) {
		return fmt.Errorf("no shutdown line for sensor %d", index)
	}
	s.lines[index] = enabled
	return nil
}

func (s *Sim) AssignAddress(ctx context.Context, index int, address uint8) (sensor.Ranger, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.lines) {
		return nil, fmt.Errorf("no sensor %d", index)
	}
	powered := 0
	for _, on := range s.lines {
		if on {
			powered++
		}
	}
	if powered != 1 || !s.lines[index] {
		return nil, fmt.Errorf("sensor %d at 0x%02x: %w", index, address, ErrAddress)
	}
	if err := s.addrErrs[index]; err != nil {
		return nil, fmt.Errorf("sensor %d at 0x%02x: %w", index, address, err)
	}
	return &simRanger{sim: s, index: index}, nil
}

type simRanger struct {
	sim   *Sim
	index int
}

func (r *simRanger) Read(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s := r.sim
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.lines[r.index] {
		return 0, sensor.ErrBus
	}
	if err := s.faults[r.index]; err != nil {
		return 0, err
	}
	return s.distance[r.index], nil
}

// SetTimingBudget records the budget of the addressed sensor.
func (r *simRanger) SetTimingBudget(ctx context.Context, budget time.Duration) error {
	if budget < sensor.MinTimingBudget {
		return fmt.Errorf("budget %v below %v: %w", budget, sensor.MinTimingBudget, ErrDevice)
	}
	s := r.sim
	s.mu.Lock()
	defer s.mu.Unlock()
	s.budgets[r.index] = budget
	return nil
}

// TimingBudget returns the budget set on sensor index, zero if none.
func (s *Sim) TimingBudget(index int) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.budgets[index]
}

// SetEcho places an obstacle mm away from the ultrasonic sensor triggered
// on trig. A negative distance removes it.
func (s *Sim) SetEcho(trig int, mm float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mm < 0 {
		delete(s.echoes, trig)
		return
	}
	s.echoes[trig] = mm
}

// Echo returns the pulse width for the obstacle set with SetEcho, or
// sensor.ErrTimeout when there is none within timeout.
func (s *Sim) Echo(ctx context.Context, trig, echo int, timeout time.Duration) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	mm, ok := s.echoes[trig]
	if !ok {
		return 0, sensor.ErrTimeout
	}
	width := sensor.EchoWidth(mm)
	if width > timeout {
		return 0, sensor.ErrTimeout
	}
	return width, nil
}

// Close makes later duty writes fail with ErrClosed. Duties keep their
// last value, so a test can tell whether the outputs were stopped first.
func (s *Sim) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *Sim) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
