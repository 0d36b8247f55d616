package sensor

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

type fixedEcho struct {
	width   time.Duration
	err     error
	timeout time.Duration
}

func (f *fixedEcho) Echo(ctx context.Context, trig, echo int, timeout time.Duration) (time.Duration, error) {
	f.timeout = timeout
	return f.width, f.err
}

func TestUltrasonic_Read(t *testing.T) {
	tests := []struct {
		width   time.Duration
		err     error
		want    float64
		wantErr error
	}{
		{width: time.Millisecond, want: 171.5},
		{width: EchoWidth(250), want: 250},
		{err: ErrTimeout, wantErr: ErrTimeout},
		{width: 0, wantErr: ErrTimeout},
		{width: 150 * time.Millisecond, wantErr: ErrTimeout},
	}
	for _, tt := range tests {
		timer := &fixedEcho{width: tt.width, err: tt.err}
		u := &Ultrasonic{Timer: timer, Trig: 17, Echo: 27}
		got, err := u.Read(context.Background())
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("Read() with %v error = %v, want %v", tt.width, err, tt.wantErr)
			continue
		}
		if math.Abs(got-tt.want) > 0.01 {
			t.Errorf("Read() with %v = %f, want %f", tt.width, got, tt.want)
		}
		if timer.timeout != EchoTimeout {
			t.Errorf("echo timeout = %v, want %v", timer.timeout, EchoTimeout)
		}
	}
}

func TestUltrasonic_TimeoutBecomesSentinel(t *testing.T) {
	u := &Ultrasonic{Timer: &fixedEcho{err: ErrTimeout}}
	c := NewChannel(0, "Sonar", u, NewWindow(3, DefaultNormalizer()))

	if e := c.Sample(context.Background()); e.Distance != TimeoutValue || !errors.Is(e.Fault, ErrTimeout) {
		t.Errorf("Sample() = %+v, want sentinel with ErrTimeout", e)
	}
}
