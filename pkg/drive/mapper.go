package drive

import "math"

// Output identifies one of the four actuator inputs: side A and side B of
// each of the two ESC pairs.
type Output int

const (
	Pair1A Output = iota
	Pair1B
	Pair2A
	Pair2B

	NumOutputs = 4
)

func (o Output) String() string {
	switch o {
	case Pair1A:
		return "ESC1_M1"
	case Pair1B:
		return "ESC1_M2"
	case Pair2A:
		return "ESC2_M1"
	case Pair2B:
		return "ESC2_M2"
	default:
		return "unknown"
	}
}

// AllOutputs returns the outputs in write order.
func AllOutputs() []Output {
	return []Output{Pair1A, Pair1B, Pair2A, Pair2B}
}

// Target holds one duty-cycle value per output.
type Target [NumOutputs]int

// StopTarget drives every output to zero.
var StopTarget = Target{}

// Actuator calibration constants. These are empirical values for the ESCs
// on the rover and must not be changed without recalibrating.
const (
	// Neutral is the duty cycle the ESCs read as "no thrust".
	Neutral = 150
	// TranslateScale is the duty offset at full translation speed.
	TranslateScale = 50
	// RotateScale is the duty offset at full rotation speed.
	RotateScale = 7

	// DefaultRange is the PWM range of each output (duty 0..DefaultRange).
	DefaultRange = 2000
	// DefaultFrequency is the PWM frequency in Hz.
	DefaultFrequency = 50
)

// Mapper converts intents into actuator targets.
type Mapper struct {
	// Trim is added to every output the command drives. Idle (zero) outputs
	// are never trimmed.
	Trim Target
	// Max is the upper duty bound; zero means DefaultRange.
	Max int
}

// Map returns the target for intent. Unknown directions map to StopTarget.
func (m Mapper) Map(intent Intent) Target {
	speed := ClampSpeed(intent.Speed)

	var t Target
	switch intent.Kind {
	case KindTranslate:
		t = translate(intent.Direction, speed)
	case KindRotate:
		t = rotate(intent.Rotation, speed)
	default:
		t = StopTarget
	}

	return m.trim(t)
}

func translate(d Direction, speed float64) Target {
	offset := int(math.Floor(TranslateScale * speed))
	forward := Neutral + offset
	reverse := Neutral - offset

	switch d {
	case North:
		return Target{Pair2A: forward, Pair2B: Neutral}
	case South:
		return Target{Pair2A: reverse, Pair2B: Neutral}
	case East:
		return Target{Pair1A: forward, Pair1B: Neutral}
	case West:
		return Target{Pair1A: reverse, Pair1B: Neutral}
	default:
		return StopTarget
	}
}

func rotate(r Rotation, speed float64) Target {
	offset := int(math.Floor(RotateScale * speed))

	switch r {
	case Clockwise:
		return Target{Neutral, Neutral + offset, Neutral, Neutral - offset}
	case CounterClockwise:
		return Target{Neutral, Neutral - offset, Neutral, Neutral + offset}
	default:
		return StopTarget
	}
}

func (m Mapper) trim(t Target) Target {
	if m.Trim == (Target{}) {
		return t
	}
	upper := m.Max
	if upper <= 0 {
		upper = DefaultRange
	}
	for o, v := range t {
		if v == 0 {
			continue
		}
		t[o] = min(max(v+m.Trim[o], 0), upper)
	}
	return t
}
