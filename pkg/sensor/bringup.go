package sensor

import (
	"context"
	"fmt"
	"log"
	"time"
)

// MinBootDelay is the time a sensor needs after its shutdown line is
// released before it answers on the bus.
const MinBootDelay = 100 * time.Millisecond

// Measurement timing budgets. A longer budget gives more accurate readings.
const (
	DefaultTimingBudget = 30 * time.Millisecond
	MinTimingBudget     = 20 * time.Millisecond
)

// ShutdownLines drives the per-sensor shutdown (XSHUT) lines.
type ShutdownLines interface {
	SetLine(index int, enabled bool) error
}

// Addresser initializes the only enabled sensor at its factory address and
// moves it to address. The returned Ranger reads from the new address.
type Addresser interface {
	AssignAddress(ctx context.Context, index int, address uint8) (Ranger, error)
}

// BudgetSetter is implemented by rangers whose measurement timing budget
// can be changed once they are addressed.
type BudgetSetter interface {
	SetTimingBudget(ctx context.Context, budget time.Duration) error
}

// BringUp sequentially enables and re-addresses sensors that share a bus.
type BringUp struct {
	Lines     ShutdownLines
	Addresser Addresser
	Delay     time.Duration
	// TimingBudget, when positive, is applied to every addressed sensor
	// that supports it.
	TimingBudget time.Duration
	Logf         func(format string, args ...any)
}

// Result is the outcome of bringing up one sensor.
type Result struct {
	Index   int
	Address uint8
	Ranger  Ranger
	Err     error
}

// Run assigns addresses[i] to sensor i. Sensors that fail are reported in
// their Result and the sequence continues. Only context cancellation aborts
// the whole run.
func (b BringUp) Run(ctx context.Context, addresses []uint8) ([]Result, error) {
	logf := b.Logf
	if logf == nil {
		logf = log.Printf
	}
	delay := b.Delay
	if delay < MinBootDelay {
		delay = MinBootDelay
	}

	results := make([]Result, len(addresses))
	for i, addr := range addresses {
		results[i] = Result{Index: i, Address: addr}
		logf("initializing sensor %d at 0x%02x", i, addr)

		if err := b.enableOnly(i, len(addresses)); err != nil {
			results[i].Err = fmt.Errorf("%w: %v", ErrUnavailable, err)
			logf("sensor %d: %v", i, results[i].Err)
			continue
		}
		if err := sleep(ctx, delay); err != nil {
			return results, err
		}

		r, err := b.Addresser.AssignAddress(ctx, i, addr)
		if err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			results[i].Err = fmt.Errorf("%w: %v", ErrUnavailable, err)
			logf("sensor %d: %v", i, results[i].Err)
			continue
		}
		if err := b.applyBudget(ctx, r); err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			results[i].Err = fmt.Errorf("%w: %v", ErrUnavailable, err)
			logf("sensor %d: %v", i, results[i].Err)
			continue
		}
		results[i].Ranger = r
		logf("sensor %d set to address 0x%02x", i, addr)
	}

	for i := range addresses {
		if err := b.Lines.SetLine(i, true); err != nil {
			logf("sensor %d: enable line: %v", i, err)
		}
	}
	if err := sleep(ctx, MinBootDelay); err != nil {
		return results, err
	}

	return results, nil
}

func (b BringUp) applyBudget(ctx context.Context, r Ranger) error {
	if b.TimingBudget <= 0 {
		return nil
	}
	bs, ok := r.(BudgetSetter)
	if !ok {
		return nil
	}
	if err := bs.SetTimingBudget(ctx, b.TimingBudget); err != nil {
		return fmt.Errorf("timing budget %v: %w", b.TimingBudget, err)
	}
	return nil
}

func (b BringUp) enableOnly(target, n int) error {
	for j := 0; j < n; j++ {
		if err := b.Lines.SetLine(j, j == target); err != nil {
			return fmt.Errorf("set line %d: %w", j, err)
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
