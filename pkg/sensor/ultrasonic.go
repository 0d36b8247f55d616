package sensor

import (
	"context"
	"time"
)

// EchoTimeout is how long an ultrasonic sensor waits for its echo.
const EchoTimeout = 100 * time.Millisecond

// halfSound is half the speed of sound in mm/s; the echo covers the
// distance twice.
const halfSound = 171500.0

// EchoTimer fires a trigger pulse on trig and measures the width of the echo
// pulse on echo. It returns ErrTimeout when no complete echo arrives within
// timeout.
type EchoTimer interface {
	Echo(ctx context.Context, trig, echo int, timeout time.Duration) (time.Duration, error)
}

// Ultrasonic is a trigger/echo ranging sensor.
type Ultrasonic struct {
	Timer   EchoTimer
	Trig    int
	Echo    int
	Timeout time.Duration
}

func (u *Ultrasonic) Read(ctx context.Context) (float64, error) {
	timeout := u.Timeout
	if timeout <= 0 {
		timeout = EchoTimeout
	}
	width, err := u.Timer.Echo(ctx, u.Trig, u.Echo, timeout)
	if err != nil {
		return 0, err
	}
	if width <= 0 || width > timeout {
		return 0, ErrTimeout
	}
	return EchoDistance(width), nil
}

// EchoDistance converts an echo pulse width to millimetres.
func EchoDistance(width time.Duration) float64 {
	return width.Seconds() * halfSound
}

// EchoWidth is the echo pulse width for an obstacle mm away.
func EchoWidth(mm float64) time.Duration {
	return time.Duration(mm / halfSound * float64(time.Second))
}
