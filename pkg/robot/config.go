package robot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gwillem/rover/pkg/drive"
	"github.com/gwillem/rover/pkg/sensor"
)

const DefaultConfigFile = "rover.json"

// SimPort selects the in-memory simulator instead of a serial bridge.
const SimPort = "sim"

// Config holds the rover configuration
type Config struct {
	Port     string `json:"port"`
	BaudRate int    `json:"baud_rate"`

	PWM     PWMConfig   `json:"pwm"`
	Outputs Calibration `json:"outputs"`

	Sensors []SensorConfig `json:"sensors"`
	// TimingBudget is the ranging measurement budget in microseconds; zero
	// leaves the sensor default.
	TimingBudget int                `json:"timing_budget_us"`
	Ultrasonic   []UltrasonicConfig `json:"ultrasonic,omitempty"`
	SampleSize   int                `json:"sample_size"`
	Thresholds   sensor.Thresholds  `json:"thresholds"`
	ReadHz       int                `json:"read_hz"`

	DefaultSpeed float64 `json:"default_speed"`
	// Guard refuses translations toward an obstacle in the Danger zone.
	Guard bool `json:"guard"`
	// RecordPath, when set, is a SQLite file that receives sensor telemetry.
	RecordPath string `json:"record_path,omitempty"`
}

// PWMConfig is shared by every output.
type PWMConfig struct {
	Frequency int `json:"frequency_hz"`
	Range     int `json:"range"`
}

// SensorConfig holds configuration for a single ranging sensor
type SensorConfig struct {
	Label   string `json:"label"`
	XShut   int    `json:"xshut_pin"`
	Address uint8  `json:"address"`
}

// UltrasonicConfig holds configuration for a trigger/echo sensor
type UltrasonicConfig struct {
	Label string `json:"label"`
	Trig  int    `json:"trig_pin"`
	Echo  int    `json:"echo_pin"`
}

// DefaultConfig returns the stock rover: four ESC outputs, four ranging
// sensors on XSHUT pins 6, 13, 19 and 26 re-addressed to 0x30..0x33.
func DefaultConfig() *Config {
	return &Config{
		Port: SimPort,
		PWM: PWMConfig{
			Frequency: drive.DefaultFrequency,
			Range:     drive.DefaultRange,
		},
		Outputs: DefaultCalibration(),
		Sensors: []SensorConfig{
			{Label: Front, XShut: 6, Address: 0x30},
			{Label: Right, XShut: 13, Address: 0x31},
			{Label: Back, XShut: 19, Address: 0x32},
			{Label: Left, XShut: 26, Address: 0x33},
		},
		TimingBudget: int(sensor.DefaultTimingBudget / time.Microsecond),
		SampleSize:   sensor.DefaultSampleSize,
		Thresholds:   sensor.DefaultThresholds(),
		ReadHz:       sensor.DefaultHz,
		DefaultSpeed: drive.DefaultSpeed,
	}
}

// Validate checks the configuration for values the rover cannot run with.
func (c *Config) Validate() error {
	if c.PWM.Frequency <= 0 || c.PWM.Range <= 0 {
		return fmt.Errorf("invalid pwm settings %d Hz / range %d", c.PWM.Frequency, c.PWM.Range)
	}
	if err := c.Outputs.Validate(); err != nil {
		return err
	}
	if c.Thresholds.Danger > c.Thresholds.Warning {
		return fmt.Errorf("danger threshold %.0fmm above warning threshold %.0fmm", c.Thresholds.Danger, c.Thresholds.Warning)
	}
	if c.TimingBudget != 0 && c.TimingBudgetDuration() < sensor.MinTimingBudget {
		return fmt.Errorf("timing budget %dus below %v", c.TimingBudget, sensor.MinTimingBudget)
	}
	addrs := map[uint8]bool{}
	labels := map[string]bool{}
	for i, s := range c.Sensors {
		if addrs[s.Address] {
			return fmt.Errorf("sensor %d (%s): duplicate address 0x%02x", i, s.Label, s.Address)
		}
		addrs[s.Address] = true
		if labels[s.Label] {
			return fmt.Errorf("sensor %d: duplicate label %q", i, s.Label)
		}
		labels[s.Label] = true
	}
	for i, u := range c.Ultrasonic {
		if labels[u.Label] {
			return fmt.Errorf("ultrasonic %d: duplicate label %q", i, u.Label)
		}
		labels[u.Label] = true
		if u.Trig == u.Echo {
			return fmt.Errorf("ultrasonic %d (%s): trig and echo share pin %d", i, u.Label, u.Trig)
		}
	}
	return nil
}

// TimingBudgetDuration returns the ranging timing budget.
func (c *Config) TimingBudgetDuration() time.Duration {
	return time.Duration(c.TimingBudget) * time.Microsecond
}

// Addresses returns the sensor addresses in channel order.
func (c *Config) Addresses() []uint8 {
	addrs := make([]uint8, len(c.Sensors))
	for i, s := range c.Sensors {
		addrs[i] = s.Address
	}
	return addrs
}

// XShutPins returns the sensor shutdown pins in channel order.
func (c *Config) XShutPins() []int {
	pins := make([]int, len(c.Sensors))
	for i, s := range c.Sensors {
		pins[i] = s.XShut
	}
	return pins
}

// LoadConfigFrom loads configuration from a specific file. Fields missing
// from the file keep their defaults.
func LoadConfigFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault loads path, falling back to DefaultConfig when it does not
// exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := LoadConfigFrom(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	return cfg, err
}

// SaveTo saves configuration to a specific file
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
