package sensor

import "gonum.org/v1/gonum/stat"

// Window is a fixed-capacity sliding window of normalized readings.
type Window struct {
	norm    Normalizer
	samples []float64
	next    int
	full    bool
}

// NewWindow creates a window holding at most size samples. A size below 1
// falls back to DefaultSampleSize.
func NewWindow(size int, norm Normalizer) *Window {
	if size < 1 {
		size = DefaultSampleSize
	}
	return &Window{
		norm:    norm,
		samples: make([]float64, 0, size),
	}
}

// Push normalizes r, appends it (evicting the oldest sample when full) and
// returns the new smoothed estimate.
func (w *Window) Push(r Reading) float64 {
	v := w.norm.Normalize(r)

	if !w.full {
		w.samples = append(w.samples, v)
		if len(w.samples) == cap(w.samples) {
			w.full = true
		}
	} else {
		w.samples[w.next] = v
		w.next = (w.next + 1) % len(w.samples)
	}

	return w.Estimate()
}

// Estimate returns the mean of the held samples. An empty window reports the
// timeout sentinel.
func (w *Window) Estimate() float64 {
	if len(w.samples) == 0 {
		return w.norm.TimeoutValue
	}
	return stat.Mean(w.samples, nil)
}

// Len returns the number of samples currently held.
func (w *Window) Len() int {
	return len(w.samples)
}

// Cap returns the window capacity.
func (w *Window) Cap() int {
	return cap(w.samples)
}

// Reset drops all samples.
func (w *Window) Reset() {
	w.samples = w.samples[:0]
	w.next = 0
	w.full = false
}
