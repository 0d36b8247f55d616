package sensor

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Channel is one ranging sensor together with its fusion window.
type Channel struct {
	Index int
	Label string

	ranger Ranger
	window *Window
	err    error
}

// NewChannel creates a channel. A nil ranger yields an unavailable channel.
func NewChannel(index int, label string, r Ranger, w *Window) *Channel {
	c := &Channel{
		Index:  index,
		Label:  label,
		ranger: r,
		window: w,
	}
	if r == nil {
		c.err = fmt.Errorf("channel %d (%s): %w", index, label, ErrUnavailable)
	}
	return c
}

// Disable excludes the channel from further reads.
func (c *Channel) Disable(err error) {
	if !errors.Is(err, ErrUnavailable) {
		err = fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	c.err = fmt.Errorf("channel %d (%s): %w", c.Index, c.Label, err)
}

// Available reports whether the channel takes part in reads.
func (c *Channel) Available() bool {
	return c.err == nil
}

// Err returns the bring-up error of an unavailable channel.
func (c *Channel) Err() error {
	return c.err
}

// Window returns the channel's fusion window.
func (c *Channel) Window() *Window {
	return c.window
}

// Sample takes one reading and pushes it through the window.
func (c *Channel) Sample(ctx context.Context) Estimate {
	mm, err := c.ranger.Read(ctx)
	distance := c.window.Push(Reading{MM: mm, Fault: err})
	return Estimate{
		Channel:  c.Index,
		Label:    c.Label,
		Distance: distance,
		Samples:  c.window.Len(),
		Fault:    err,
	}
}

// Estimate is the smoothed state of one channel after a read cycle.
type Estimate struct {
	Channel  int
	Label    string
	Distance float64
	Zone     Zone
	Samples  int
	// Fault is the raw fault of this cycle's reading, if any. It has already
	// been replaced by the sentinel in Distance.
	Fault error
}

// Snapshot is the result of reading every available channel once.
type Snapshot struct {
	Time      time.Time
	Estimates []Estimate
}

// ByLabel returns the estimate for the channel with the given label.
func (s Snapshot) ByLabel(label string) (Estimate, bool) {
	for _, e := range s.Estimates {
		if e.Label == label {
			return e, true
		}
	}
	return Estimate{}, false
}

// Bank holds every channel of the rig.
type Bank struct {
	channels   []*Channel
	thresholds Thresholds
}

// NewBank creates a bank over the given channels.
func NewBank(channels []*Channel, t Thresholds) *Bank {
	return &Bank{channels: channels, thresholds: t}
}

// Channels returns all channels, available or not.
func (b *Bank) Channels() []*Channel {
	return b.channels
}

// Thresholds returns the zone thresholds in use.
func (b *Bank) Thresholds() Thresholds {
	return b.thresholds
}

// Read samples every available channel once, in index order.
func (b *Bank) Read(ctx context.Context) Snapshot {
	snap := Snapshot{
		Time:      time.Now(),
		Estimates: make([]Estimate, 0, len(b.channels)),
	}
	for _, c := range b.channels {
		if !c.Available() {
			continue
		}
		e := c.Sample(ctx)
		e.Zone = b.thresholds.Classify(e.Distance)
		snap.Estimates = append(snap.Estimates, e)
	}
	return snap
}
