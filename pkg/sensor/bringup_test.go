package sensor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type fakeRanger struct {
	mu     sync.Mutex
	values []float64
	errs   []error
	i      int
}

func (f *fakeRanger) Read(ctx context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.i
	f.i++
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	if i < len(f.values) {
		return f.values[i], err
	}
	return f.values[len(f.values)-1], err
}

type lineLog struct {
	events []string
}

func (l *lineLog) SetLine(index int, enabled bool) error {
	state := "low"
	if enabled {
		state = "high"
	}
	l.events = append(l.events, fmt.Sprintf("%d:%s", index, state))
	return nil
}

type fakeAddresser struct {
	lines   *lineLog
	fail    map[int]error
	assigns []string
}

func (a *fakeAddresser) AssignAddress(ctx context.Context, index int, address uint8) (Ranger, error) {
	a.lines.events = append(a.lines.events, fmt.Sprintf("assign %d=0x%02x", index, address))
	if err := a.fail[index]; err != nil {
		return nil, err
	}
	return &fakeRanger{values: []float64{float64(address)}}, nil
}

func TestBringUp_Sequence(t *testing.T) {
	lines := &lineLog{}
	addr := &fakeAddresser{lines: lines, fail: map[int]error{1: errors.New("no ack")}}

	b := BringUp{
		Lines:     lines,
		Addresser: addr,
		Delay:     10 * time.Millisecond, // raised to MinBootDelay
		Logf:      func(string, ...any) {},
	}

	start := time.Now()
	results, err := b.Run(context.Background(), []uint8{0x30, 0x31, 0x32})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 4*MinBootDelay {
		t.Errorf("Run() took %v, want at least %v", elapsed, 4*MinBootDelay)
	}

	expected := []string{
		"0:high", "1:low", "2:low", "assign 0=0x30",
		"0:low", "1:high", "2:low", "assign 1=0x31",
		"0:low", "1:low", "2:high", "assign 2=0x32",
		"0:high", "1:high", "2:high",
	}
	if diff := cmp.Diff(expected, lines.events); diff != "" {
		t.Errorf("line sequence mismatch (-want +got):\n%s", diff)
	}

	if results[0].Ranger == nil || results[2].Ranger == nil {
		t.Errorf("sensors 0 and 2 should be available: %+v", results)
	}
	if results[1].Ranger != nil || !errors.Is(results[1].Err, ErrUnavailable) {
		t.Errorf("sensor 1 result = %+v, want ErrUnavailable", results[1])
	}
}

func TestBringUp_Cancelled(t *testing.T) {
	lines := &lineLog{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := BringUp{Lines: lines, Addresser: &fakeAddresser{lines: lines}, Logf: func(string, ...any) {}}
	if _, err := b.Run(ctx, []uint8{0x30}); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}

func TestBank_ReadIsolatesFaults(t *testing.T) {
	n := DefaultNormalizer()
	front := NewChannel(0, "Front", &fakeRanger{values: []float64{100}, errs: []error{ErrTimeout}}, NewWindow(5, n))
	right := NewChannel(1, "Right", &fakeRanger{values: []float64{250}}, NewWindow(5, n))
	back := NewChannel(2, "Back", nil, NewWindow(5, n))

	bank := NewBank([]*Channel{front, right, back}, DefaultThresholds())
	snap := bank.Read(context.Background())

	if len(snap.Estimates) != 2 {
		t.Fatalf("got %d estimates, want 2 (unavailable channel skipped)", len(snap.Estimates))
	}

	f, _ := snap.ByLabel("Front")
	if f.Distance != TimeoutValue || f.Zone != ZoneClear || !errors.Is(f.Fault, ErrTimeout) {
		t.Errorf("Front estimate = %+v, want sentinel", f)
	}
	r, _ := snap.ByLabel("Right")
	if r.Distance != 250 || r.Zone != ZoneWarning {
		t.Errorf("Right estimate = %+v, want 250mm Warning", r)
	}
	if _, ok := snap.ByLabel("Back"); ok {
		t.Error("Back should not be read")
	}
	if !errors.Is(back.Err(), ErrUnavailable) {
		t.Errorf("Back.Err() = %v, want ErrUnavailable", back.Err())
	}
}

func TestChannel_Disable(t *testing.T) {
	c := NewChannel(3, "Left", &fakeRanger{values: []float64{1}}, NewWindow(5, DefaultNormalizer()))
	if !c.Available() {
		t.Fatal("channel should start available")
	}
	c.Disable(errors.New("bus stuck"))
	if c.Available() || !errors.Is(c.Err(), ErrUnavailable) {
		t.Errorf("Err() = %v, want ErrUnavailable", c.Err())
	}
}

type budgetRanger struct {
	fakeRanger
	budget time.Duration
	fail   error
}

func (r *budgetRanger) SetTimingBudget(ctx context.Context, budget time.Duration) error {
	if r.fail != nil {
		return r.fail
	}
	r.budget = budget
	return nil
}

type budgetAddresser struct {
	rangers map[int]*budgetRanger
}

func (a *budgetAddresser) AssignAddress(ctx context.Context, index int, address uint8) (Ranger, error) {
	return a.rangers[index], nil
}

func TestBringUp_TimingBudget(t *testing.T) {
	addr := &budgetAddresser{rangers: map[int]*budgetRanger{
		0: {fakeRanger: fakeRanger{values: []float64{100}}},
		1: {fakeRanger: fakeRanger{values: []float64{100}}, fail: errors.New("nack")},
	}}
	b := BringUp{
		Lines:        &lineLog{},
		Addresser:    addr,
		TimingBudget: DefaultTimingBudget,
		Logf:         func(string, ...any) {},
	}

	results, err := b.Run(context.Background(), []uint8{0x30, 0x31})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if got := addr.rangers[0].budget; got != DefaultTimingBudget {
		t.Errorf("sensor 0 budget = %v, want %v", got, DefaultTimingBudget)
	}
	if results[0].Err != nil {
		t.Errorf("sensor 0: %v", results[0].Err)
	}
	if !errors.Is(results[1].Err, ErrUnavailable) || results[1].Ranger != nil {
		t.Errorf("sensor 1 = %+v, want excluded", results[1])
	}
}
