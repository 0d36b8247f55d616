package sensor

import (
	"math"
	"testing"
)

func TestNormalizer_Normalize(t *testing.T) {
	n := DefaultNormalizer()

	tests := []struct {
		name     string
		in       Reading
		expected float64
	}{
		{"in range", Reading{MM: 420}, 420},
		{"at ceiling", Reading{MM: 2000}, 2000},
		{"above ceiling", Reading{MM: 2000.1}, TimeoutValue},
		{"far above ceiling", Reading{MM: 8190}, TimeoutValue},
		{"timeout", Fault(ErrTimeout), TimeoutValue},
		{"bus error", Fault(ErrBus), TimeoutValue},
		{"fault with value", Reading{MM: 100, Fault: ErrOutOfRange}, TimeoutValue},
		{"nan", Reading{MM: math.NaN()}, TimeoutValue},
		{"sentinel", Reading{MM: TimeoutValue}, TimeoutValue},
	}

	for _, tt := range tests {
		got := n.Normalize(tt.in)
		if got != tt.expected {
			t.Errorf("%s: Normalize(%+v) = %f, want %f", tt.name, tt.in, got, tt.expected)
		}
	}
}

func TestNormalizer_Idempotent(t *testing.T) {
	n := DefaultNormalizer()
	for _, r := range []Reading{Fault(ErrTimeout), {MM: 5000}, {MM: 12}} {
		once := n.Normalize(r)
		twice := n.Normalize(Reading{MM: once})
		if once != twice {
			t.Errorf("Normalize not idempotent for %+v: %f then %f", r, once, twice)
		}
	}
}

func TestWindow_PartialFill(t *testing.T) {
	w := NewWindow(5, DefaultNormalizer())

	if got := w.Push(Reading{MM: 100}); got != 100 {
		t.Errorf("after one push estimate = %f, want 100", got)
	}
	if got := w.Push(Reading{MM: 200}); got != 150 {
		t.Errorf("after two pushes estimate = %f, want 150", got)
	}
	if w.Len() != 2 {
		t.Errorf("Len() = %d, want 2", w.Len())
	}
}

func TestWindow_EvictsOldest(t *testing.T) {
	w := NewWindow(3, DefaultNormalizer())
	for _, v := range []float64{100, 200, 300} {
		w.Push(Reading{MM: v})
	}

	// 100 is evicted
	if got := w.Push(Reading{MM: 400}); got != 300 {
		t.Errorf("estimate = %f, want 300", got)
	}
	// 200 is evicted
	if got := w.Push(Reading{MM: 500}); got != 400 {
		t.Errorf("estimate = %f, want 400", got)
	}
	if w.Len() != 3 {
		t.Errorf("Len() = %d, want 3", w.Len())
	}
}

func TestWindow_MeanOfLastN(t *testing.T) {
	n := DefaultNormalizer()
	raw := []Reading{
		{MM: 120}, {MM: 2500}, Fault(ErrTimeout), {MM: 80}, {MM: 95.5},
		{MM: 1999}, {MM: 0}, Fault(ErrBus), {MM: 310}, {MM: 305}, {MM: 150},
	}

	for _, size := range []int{1, 3, 5, 8} {
		w := NewWindow(size, n)
		var normalized []float64
		for i, r := range raw {
			got := w.Push(r)
			normalized = append(normalized, n.Normalize(r))

			start := 0
			if len(normalized) > size {
				start = len(normalized) - size
			}
			var sum float64
			for _, v := range normalized[start:] {
				sum += v
			}
			want := sum / float64(len(normalized)-start)

			if math.Abs(got-want) > 1e-9 {
				t.Errorf("size %d push %d: estimate = %f, want %f", size, i, got, want)
			}
		}
	}
}

func TestWindow_FaultsNeverStored(t *testing.T) {
	w := NewWindow(DefaultSampleSize, DefaultNormalizer())
	for i := 0; i < 7; i++ {
		if got := w.Push(Fault(ErrTimeout)); got != TimeoutValue {
			t.Fatalf("estimate after faults = %f, want %f", got, TimeoutValue)
		}
	}
}

func TestWindow_ResetAndDefaults(t *testing.T) {
	w := NewWindow(0, DefaultNormalizer())
	if w.Cap() != DefaultSampleSize {
		t.Errorf("Cap() = %d, want %d", w.Cap(), DefaultSampleSize)
	}
	if got := w.Estimate(); got != TimeoutValue {
		t.Errorf("empty Estimate() = %f, want %f", got, TimeoutValue)
	}

	w.Push(Reading{MM: 10})
	w.Push(Reading{MM: 20})
	w.Reset()
	if w.Len() != 0 {
		t.Errorf("Len() after Reset = %d, want 0", w.Len())
	}
	if got := w.Push(Reading{MM: 40}); got != 40 {
		t.Errorf("estimate after Reset = %f, want 40", got)
	}
}
