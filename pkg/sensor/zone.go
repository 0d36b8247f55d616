package sensor

// Zone is a discretized proximity class.
type Zone int

const (
	ZoneClear Zone = iota
	ZoneWarning
	ZoneDanger
)

func (z Zone) String() string {
	switch z {
	case ZoneWarning:
		return "Warning"
	case ZoneDanger:
		return "Danger"
	default:
		return "Clear"
	}
}

// ParseZone is the inverse of Zone.String. Unknown names map to ZoneClear.
func ParseZone(s string) Zone {
	switch s {
	case "Warning":
		return ZoneWarning
	case "Danger":
		return ZoneDanger
	default:
		return ZoneClear
	}
}

// Default zone thresholds in millimetres.
const (
	DangerThreshold  = 150.0
	WarningThreshold = 300.0
)

// Thresholds are the half-open zone boundaries.
type Thresholds struct {
	Danger  float64 `json:"danger_mm"`
	Warning float64 `json:"warning_mm"`
}

// DefaultThresholds returns the 150/300 mm boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{Danger: DangerThreshold, Warning: WarningThreshold}
}

// Classify maps a smoothed estimate to a zone. There is no hysteresis; the
// zone is recomputed from scratch on every call.
func (t Thresholds) Classify(estimate float64) Zone {
	switch {
	case estimate < t.Danger:
		return ZoneDanger
	case estimate < t.Warning:
		return ZoneWarning
	default:
		return ZoneClear
	}
}
