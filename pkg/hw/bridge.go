// Package hw implements the rover's hardware collaborators: a serial bridge
// board that carries PWM, ranging and shutdown-line traffic over one link,
// and an in-memory simulator with the same surface.
package hw

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/gwillem/rover/pkg/drive"
	"github.com/gwillem/rover/pkg/sensor"
)

const (
	DefaultBaudRate    = 115200
	DefaultReadTimeout = 500 * time.Millisecond
)

var (
	ErrNoReply = errors.New("no reply from bridge")
	ErrDevice  = errors.New("bridge error")
	ErrClosed  = errors.New("bridge closed")
)

// Port is the minimal serial port surface the bridge needs.
type Port interface {
	io.ReadWriter
	io.Closer
}

// Bridge speaks the line protocol of the bridge board. Every request is one
// line and gets exactly one reply line; requests are serialized because PWM
// writes and sensor reads share the link. A request holds the link for at
// most Timeout (plus the echo window for ultrasonic reads).
type Bridge struct {
	// Timeout bounds the wait for one reply line.
	Timeout time.Duration

	mu     sync.Mutex
	port   Port
	buf    []byte // received bytes not yet consumed as a reply
	closed bool

	// xshut maps a sensor index to the GPIO of its shutdown line.
	xshut []int
}

// inputResetter is implemented by serial ports that can drop pending input.
type inputResetter interface {
	ResetInputBuffer() error
}

// OpenBridge opens the serial port at path.
func OpenBridge(path string, baud int, xshut []int) (*Bridge, error) {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	port, err := serial.Open(path, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := port.SetReadTimeout(DefaultReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("reset input: %w", err)
	}
	return NewBridge(port, xshut), nil
}

// NewBridge wraps an already open port.
func NewBridge(port Port, xshut []int) *Bridge {
	return &Bridge{
		Timeout: DefaultReadTimeout,
		port:    port,
		xshut:   xshut,
	}
}

// Close closes the port. Further requests return ErrClosed.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.port.Close()
}

// do sends one request and returns the reply with any "ERR" mapped to an
// error.
func (b *Bridge) do(ctx context.Context, format string, args ...any) (string, error) {
	return b.request(ctx, 0, format, args...)
}

// request is do with extra time allowed for the board to answer.
func (b *Bridge) request(ctx context.Context, extra time.Duration, format string, args ...any) (string, error) {
	req := fmt.Sprintf(format, args...)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return "", ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if _, err := io.WriteString(b.port, req+"\n"); err != nil {
		return "", fmt.Errorf("write %q: %w", req, err)
	}

	line, err := b.readLine(ctx, time.Now().Add(b.Timeout+extra))
	if err != nil {
		// a late reply must not be taken as the answer to the next request
		b.discard()
		if ctx.Err() != nil {
			return "", err
		}
		return "", fmt.Errorf("%q: %w", req, err)
	}

	reply := strings.TrimSpace(line)
	if code, ok := strings.CutPrefix(reply, "ERR"); ok {
		return "", fmt.Errorf("%q: %w", req, replyError(strings.TrimSpace(code)))
	}
	return reply, nil
}

// readLine returns the next reply line. A serial read that times out
// returns no data and no error, so the deadline is checked between reads.
func (b *Bridge) readLine(ctx context.Context, deadline time.Time) (string, error) {
	chunk := make([]byte, 64)
	for {
		if i := bytes.IndexByte(b.buf, '\n'); i >= 0 {
			line := string(b.buf[:i])
			b.buf = b.buf[i+1:]
			return line, nil
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if !time.Now().Before(deadline) {
			return "", ErrNoReply
		}

		n, err := b.port.Read(chunk)
		b.buf = append(b.buf, chunk[:n]...)
		if errors.Is(err, io.EOF) {
			if bytes.IndexByte(b.buf, '\n') >= 0 {
				continue
			}
			return "", ErrNoReply
		}
		if err != nil {
			return "", fmt.Errorf("read reply: %w", err)
		}
	}
}

func (b *Bridge) discard() {
	b.buf = nil
	if r, ok := b.port.(inputResetter); ok {
		r.ResetInputBuffer()
	}
}

func replyError(code string) error {
	switch code {
	case "TIMEOUT":
		return sensor.ErrTimeout
	case "RANGE":
		return sensor.ErrOutOfRange
	case "BUS":
		return sensor.ErrBus
	default:
		return fmt.Errorf("%w: %s", ErrDevice, code)
	}
}

func (b *Bridge) expectOK(ctx context.Context, format string, args ...any) error {
	reply, err := b.do(ctx, format, args...)
	if err != nil {
		return err
	}
	if reply != "OK" {
		return fmt.Errorf("%w: unexpected reply %q", ErrDevice, reply)
	}
	return nil
}

func parseNumber(reply string, err error) (float64, error) {
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(reply, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad number %q", ErrDevice, reply)
	}
	return v, nil
}

// Version asks the board for its firmware version.
func (b *Bridge) Version() (string, error) {
	return b.do(context.Background(), "V")
}

// Configure sets frequency and range of a PWM pin.
func (b *Bridge) Configure(pin, hz, rangeMax int) error {
	return b.expectOK(context.Background(), "F %d %d %d", pin, hz, rangeMax)
}

func (b *Bridge) SetDuty(pin, duty int) error {
	return b.expectOK(context.Background(), "P %d %d", pin, duty)
}

// SetDuties writes several pins in one request.
func (b *Bridge) SetDuties(duties []drive.Duty) error {
	var sb strings.Builder
	sb.WriteString("B")
	for _, d := range duties {
		fmt.Fprintf(&sb, " %d=%d", d.Pin, d.Value)
	}
	return b.expectOK(context.Background(), "%s", sb.String())
}

func (b *Bridge) Duty(pin int) (int, error) {
	v, err := parseNumber(b.do(context.Background(), "Q %d", pin))
	return int(v), err
}

// SetLine drives the shutdown line of sensor index.
func (b *Bridge) SetLine(index int, enabled bool) error {
	if index < 0 || index >= len(b.xshut) {
		return fmt.Errorf("no shutdown line for sensor %d", index)
	}
	level := 0
	if enabled {
		level = 1
	}
	return b.expectOK(context.Background(), "X %d %d", b.xshut[index], level)
}

// AssignAddress moves the only powered sensor to address.
func (b *Bridge) AssignAddress(ctx context.Context, index int, address uint8) (sensor.Ranger, error) {
	if err := b.expectOK(ctx, "A %d 0x%02x", index, address); err != nil {
		return nil, err
	}
	return &bridgeRanger{bridge: b, address: address}, nil
}

// Echo triggers an ultrasonic sensor and returns the echo pulse width. The
// board answers with the width in microseconds or ERR TIMEOUT.
func (b *Bridge) Echo(ctx context.Context, trig, echo int, timeout time.Duration) (time.Duration, error) {
	us, err := parseNumber(b.request(ctx, timeout, "U %d %d %d", trig, echo, timeout.Microseconds()))
	return time.Duration(us * float64(time.Microsecond)), err
}

type bridgeRanger struct {
	bridge  *Bridge
	address uint8
}

func (r *bridgeRanger) Read(ctx context.Context) (float64, error) {
	return parseNumber(r.bridge.do(ctx, "R 0x%02x", r.address))
}

// SetTimingBudget sets the measurement timing budget of the sensor.
func (r *bridgeRanger) SetTimingBudget(ctx context.Context, budget time.Duration) error {
	return r.bridge.expectOK(ctx, "T 0x%02x %d", r.address, budget.Microseconds())
}
