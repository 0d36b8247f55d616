package drive

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// DefaultSpeed is the speed used until a command sets one.
const DefaultSpeed = 0.2

var (
	ErrNoPriorCommand = errors.New("no previous command to repeat")
	ErrShutdown       = errors.New("executor shut down")
	ErrBlocked        = errors.New("motion blocked by obstacle")
)

// Phase is the executor's position in its command cycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseExecuting
	PhaseTimedWait
)

func (p Phase) String() string {
	switch p {
	case PhaseExecuting:
		return "Executing"
	case PhaseTimedWait:
		return "TimedWait"
	default:
		return "Idle"
	}
}

// State is the command memory used by Repeat and by commands without an
// explicit speed.
type State struct {
	LastIntent *Intent
	LastSpeed  float64
}

// Command is a validated request. Nil Speed means "use the last speed"; nil
// Duration means "run until the next command".
type Command struct {
	Motion   Motion
	Speed    *float64
	Duration *time.Duration
}

// Config holds configuration for the executor.
type Config struct {
	Driver Driver
	// Pins maps each Output to a driver pin.
	Pins         [NumOutputs]int
	Mapper       Mapper
	DefaultSpeed float64
	// Guard, when set, is consulted before every non-stop motion.
	Guard Guard
	Logf  func(format string, args ...any)
}

// Executor applies commands one at a time. A timed command holds the
// executor for its whole duration; the wait ends early on context
// cancellation or Shutdown.
type Executor struct {
	driver Driver
	pins   [NumOutputs]int
	mapper Mapper
	guard  Guard
	logf   func(format string, args ...any)

	// mu serializes commands, including their timed waits.
	mu sync.Mutex

	smu   sync.RWMutex
	state State
	phase Phase

	halt     chan struct{}
	haltOnce sync.Once
	stopOnce sync.Once
	stopErr  error
}

// NewExecutor creates an executor in the Idle phase.
func NewExecutor(cfg Config) *Executor {
	if cfg.DefaultSpeed <= 0 {
		cfg.DefaultSpeed = DefaultSpeed
	}
	if cfg.Logf == nil {
		cfg.Logf = log.Printf
	}
	return &Executor{
		driver: cfg.Driver,
		pins:   cfg.Pins,
		mapper: cfg.Mapper,
		guard:  cfg.Guard,
		logf:   cfg.Logf,
		state:  State{LastSpeed: ClampSpeed(cfg.DefaultSpeed)},
		halt:   make(chan struct{}),
	}
}

// Apply executes cmd. Stop commands are applied immediately and are not
// remembered for Repeat.
func (e *Executor) Apply(ctx context.Context, cmd Command) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.halted() {
		return ErrShutdown
	}
	if cmd.Motion.IsStop() {
		return e.stop()
	}

	speed := e.State().LastSpeed
	if cmd.Speed != nil {
		speed = *cmd.Speed
	}
	return e.run(ctx, NewIntent(cmd.Motion, speed), cmd.Duration)
}

// Repeat re-applies the last remembered intent at the last speed.
func (e *Executor) Repeat(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.halted() {
		return ErrShutdown
	}
	st := e.State()
	if st.LastIntent == nil {
		e.logf("%v", ErrNoPriorCommand)
		return ErrNoPriorCommand
	}
	return e.run(ctx, NewIntent(st.LastIntent.Motion, st.LastSpeed), nil)
}

// Stop drives every output to zero.
func (e *Executor) Stop(ctx context.Context) error {
	return e.Apply(ctx, Command{Motion: Halt})
}

// run applies intent and, with a duration, waits and stops. Callers hold mu.
func (e *Executor) run(ctx context.Context, intent Intent, d *time.Duration) error {
	if e.guard != nil {
		if err := e.guard.Check(intent.Motion); err != nil {
			e.logf("refusing %s: %v", intent, err)
			if stopErr := e.stop(); stopErr != nil {
				return errors.Join(err, stopErr)
			}
			return err
		}
	}

	target := e.mapper.Map(intent)
	if err := e.write(target); err != nil {
		return fmt.Errorf("apply %s: %w", intent, err)
	}
	e.logf("%s -> %v", intent, target)

	e.smu.Lock()
	remembered := intent
	e.state = State{LastIntent: &remembered, LastSpeed: intent.Speed}
	e.phase = PhaseExecuting
	e.smu.Unlock()

	if d == nil {
		return nil
	}
	return e.timed(ctx, *d)
}

func (e *Executor) timed(ctx context.Context, d time.Duration) error {
	e.setPhase(PhaseTimedWait)
	e.logf("running for %v", d)

	err := e.wait(ctx, d)
	if errors.Is(err, ErrShutdown) {
		// Shutdown owns the final stop.
		return err
	}
	if stopErr := e.stop(); stopErr != nil {
		return errors.Join(err, stopErr)
	}
	return err
}

// wait blocks for d, returning early when ctx is done or on Shutdown.
func (e *Executor) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.halt:
		return ErrShutdown
	}
}

func (e *Executor) stop() error {
	if err := e.write(StopTarget); err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	e.setPhase(PhaseIdle)
	return nil
}

func (e *Executor) write(t Target) error {
	if b, ok := e.driver.(BatchDriver); ok {
		duties := make([]Duty, 0, NumOutputs)
		for o, v := range t {
			duties = append(duties, Duty{Pin: e.pins[o], Value: v})
		}
		return b.SetDuties(duties)
	}

	var errs []error
	for o, v := range t {
		if err := e.driver.SetDuty(e.pins[o], v); err != nil {
			errs = append(errs, fmt.Errorf("set %s: %w", Output(o), err))
			if t != StopTarget {
				// never leave a half-applied target behind
				return errors.Join(append(errs, e.zeroAll())...)
			}
		}
	}
	return errors.Join(errs...)
}

// zeroAll writes StopTarget output by output, continuing past failures.
func (e *Executor) zeroAll() error {
	var errs []error
	for o, v := range StopTarget {
		if err := e.driver.SetDuty(e.pins[o], v); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", Output(o), err))
		}
	}
	return errors.Join(errs...)
}

// Shutdown aborts any timed wait, stops every output exactly once and
// rejects later commands. It is safe to call repeatedly and concurrently.
func (e *Executor) Shutdown() error {
	e.haltOnce.Do(func() { close(e.halt) })

	e.stopOnce.Do(func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if err := e.stop(); err != nil {
			e.stopErr = err
			e.logf("shutdown: %v", err)
			return
		}
		e.logf("actuators stopped")
	})
	return e.stopErr
}

func (e *Executor) halted() bool {
	select {
	case <-e.halt:
		return true
	default:
		return false
	}
}

func (e *Executor) setPhase(p Phase) {
	e.smu.Lock()
	e.phase = p
	e.smu.Unlock()
}

// State returns a copy of the command memory.
func (e *Executor) State() State {
	e.smu.RLock()
	defer e.smu.RUnlock()
	st := e.state
	if st.LastIntent != nil {
		last := *st.LastIntent
		st.LastIntent = &last
	}
	return st
}

// Phase returns the current phase.
func (e *Executor) Phase() Phase {
	e.smu.RLock()
	defer e.smu.RUnlock()
	return e.phase
}

// OutputStatus is the read-back of one output.
type OutputStatus struct {
	Output Output
	Pin    int
	Duty   int
	Err    error
}

// Status reads back the duty of every output from the driver.
func (e *Executor) Status() []OutputStatus {
	out := make([]OutputStatus, 0, NumOutputs)
	for _, o := range AllOutputs() {
		pin := e.pins[o]
		duty, err := e.driver.Duty(pin)
		out = append(out, OutputStatus{Output: o, Pin: pin, Duty: duty, Err: err})
	}
	return out
}
