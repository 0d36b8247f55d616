package robot

import (
	"fmt"

	"github.com/gwillem/rover/pkg/drive"
	"github.com/gwillem/rover/pkg/sensor"
)

// ZoneSource reports the latest zone of a labelled channel.
type ZoneSource interface {
	Zone(label string) (sensor.Zone, float64, bool)
}

// ZoneGuard refuses translations toward a channel in the Danger zone.
type ZoneGuard struct {
	zones ZoneSource
	// Facing maps a direction to the label of the sensor looking that way.
	Facing map[drive.Direction]string
}

// NewZoneGuard guards with the default sensor ring: N looks Front, E looks
// Right, S looks Back and W looks Left.
func NewZoneGuard(zones ZoneSource) *ZoneGuard {
	return &ZoneGuard{
		zones: zones,
		Facing: map[drive.Direction]string{
			drive.North: Front,
			drive.East:  Right,
			drive.South: Back,
			drive.West:  Left,
		},
	}
}

func (g *ZoneGuard) Check(m drive.Motion) error {
	if m.Kind != drive.KindTranslate || m.IsStop() {
		return nil
	}
	label, ok := g.Facing[m.Direction]
	if !ok {
		return nil
	}
	zone, mm, ok := g.zones.Zone(label)
	if ok && zone == sensor.ZoneDanger {
		return fmt.Errorf("%w: %s at %.0fmm", drive.ErrBlocked, label, mm)
	}
	return nil
}
