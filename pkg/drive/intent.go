// Package drive maps motion intents to actuator duty cycles and executes
// them against a PWM driver.
package drive

import (
	"fmt"
	"strings"
)

// Kind selects translation or rotation.
type Kind int

const (
	KindTranslate Kind = iota
	KindRotate
)

// Direction is a translation direction.
type Direction int

const (
	Stop Direction = iota
	North
	South
	East
	West
)

func (d Direction) String() string {
	switch d {
	case North:
		return "N"
	case South:
		return "S"
	case East:
		return "E"
	case West:
		return "W"
	case Stop:
		return "X"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// Rotation is a rotation sense.
type Rotation int

const (
	Clockwise Rotation = iota + 1
	CounterClockwise
)

func (r Rotation) String() string {
	switch r {
	case Clockwise:
		return "CW"
	case CounterClockwise:
		return "CCW"
	default:
		return fmt.Sprintf("Rotation(%d)", int(r))
	}
}

// Motion is what to do, without how fast.
type Motion struct {
	Kind      Kind
	Direction Direction
	Rotation  Rotation
}

// Translate returns a translation motion.
func Translate(d Direction) Motion {
	return Motion{Kind: KindTranslate, Direction: d}
}

// Rotate returns a rotation motion.
func Rotate(r Rotation) Motion {
	return Motion{Kind: KindRotate, Rotation: r}
}

// Halt is the stop motion.
var Halt = Translate(Stop)

// IsStop reports whether m is the stop motion.
func (m Motion) IsStop() bool {
	return m.Kind == KindTranslate && m.Direction == Stop
}

func (m Motion) String() string {
	if m.Kind == KindRotate {
		return m.Rotation.String()
	}
	return m.Direction.String()
}

// ParseMotion converts a console verb (N, S, E, W, X, CW, CCW) into a Motion.
func ParseMotion(verb string) (Motion, error) {
	switch strings.ToUpper(strings.TrimSpace(verb)) {
	case "N":
		return Translate(North), nil
	case "S":
		return Translate(South), nil
	case "E":
		return Translate(East), nil
	case "W":
		return Translate(West), nil
	case "X", "STOP":
		return Halt, nil
	case "CW":
		return Rotate(Clockwise), nil
	case "CCW":
		return Rotate(CounterClockwise), nil
	default:
		return Motion{}, fmt.Errorf("unknown motion %q", verb)
	}
}

// Intent is a motion at a normalized speed.
type Intent struct {
	Motion
	Speed float64
}

// NewIntent builds an intent, clamping speed to [0, 1].
func NewIntent(m Motion, speed float64) Intent {
	return Intent{Motion: m, Speed: ClampSpeed(speed)}
}

func (i Intent) String() string {
	return fmt.Sprintf("%s@%.2f", i.Motion, i.Speed)
}

// ClampSpeed limits speed to [0, 1]. NaN becomes 0.
func ClampSpeed(speed float64) float64 {
	if !(speed > 0) {
		return 0
	}
	return min(speed, 1)
}
