// Package config loads the JSON description of a board, its driver chip and
// the motor behind it.
package config

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"

	"wipistepper/core"
	"wipistepper/tmc"
)

// Board kinds
const (
	BoardSim = "sim"
	BoardRpi = "rpi"
)

// Config is the top level configuration file
type Config struct {
	Board  BoardConfig  `json:"board"`
	Driver DriverConfig `json:"driver"`
	Motor  MotorConfig  `json:"motor"`
	TMC    *TMCConfig   `json:"tmc,omitempty"`
}

// BoardConfig selects the GPIO backend
type BoardConfig struct {
	Kind      string `json:"kind"`
	Numbering string `json:"numbering"` // rpi only: wiringpi or bcm
	Priority  *int   `json:"priority,omitempty"`
}

// DriverConfig mirrors core.DriverConfig. States holds 0 (LOW) or 1 (HIGH).
type DriverConfig struct {
	Name       string           `json:"name"`
	Wiring     map[string]uint8 `json:"wiring"`
	States     map[string]uint8 `json:"states"`
	StepMode   uint32           `json:"stepmode"`
	PulseWidth uint32           `json:"pulse_width_us"`
	ClockWidth float64          `json:"clock_width_us"`
	Range      uint32           `json:"range"`
}

// MotorConfig mirrors core.MotorConfig
type MotorConfig struct {
	Name      string  `json:"name"`
	StepAngle float64 `json:"step_angle"`
}

// TMCConfig locates an optional TMC2208/TMC2209 on a serial port
type TMCConfig struct {
	Device  string `json:"device"`
	Baud    int    `json:"baud"`
	Address uint8  `json:"address"`
	Echo    bool   `json:"echo"`
}

// Load reads and parses a configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "config: read")
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "config: %s", path)
	}
	return cfg, nil
}

// Parse decodes JSON configuration, fills in defaults and validates the result
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "config: parse")
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in missing values from the core defaults
func applyDefaults(cfg *Config) {
	if cfg.Board.Kind == "" {
		cfg.Board.Kind = BoardSim
	}
	if cfg.Board.Numbering == "" {
		cfg.Board.Numbering = "wiringpi"
	}
	if cfg.Board.Priority == nil {
		p := core.DefaultPriority
		cfg.Board.Priority = &p
	}

	d := &cfg.Driver
	if d.Wiring == nil {
		d.Wiring = make(map[string]uint8)
		for signal, pin := range core.DefaultWiring() {
			d.Wiring[signal] = uint8(pin)
		}
	}
	if d.StepMode == 0 {
		d.StepMode = core.DefaultStepMode
	}
	if d.PulseWidth == 0 {
		d.PulseWidth = core.DefaultPulseWidth
	}
	if d.ClockWidth == 0 {
		d.ClockWidth = core.DefaultClockWidth
	}
	if d.Range == 0 {
		d.Range = core.DefaultRange
	}

	if cfg.Motor.StepAngle == 0 {
		cfg.Motor.StepAngle = core.DefaultStepAngle
	}

	if cfg.TMC != nil && cfg.TMC.Baud == 0 {
		cfg.TMC.Baud = tmc.DefaultBaud
	}
}

// Validate checks values that the core would reject later, so a bad file
// fails before any pin is touched.
func (cfg *Config) Validate() error {
	switch cfg.Board.Kind {
	case BoardSim, BoardRpi:
	default:
		return errors.Errorf("config: unknown board kind %q", cfg.Board.Kind)
	}

	d := cfg.Driver
	if len(d.Wiring) == 0 {
		return errors.New("config: driver wiring is empty")
	}
	for signal, level := range d.States {
		if _, ok := d.Wiring[signal]; !ok {
			return errors.Wrapf(core.ErrUnknownSignal, "config: state for %q", signal)
		}
		if level > 1 {
			return errors.Errorf("config: state of %q must be 0 or 1, got %d", signal, level)
		}
	}
	if d.ClockWidth*core.ClockFreqMHz < 0.5 {
		return errors.Wrapf(core.ErrInvalidClockWidth, "config: %g us", d.ClockWidth)
	}
	if d.Range < 2 {
		return errors.Wrapf(core.ErrInvalidRange, "config: %d", d.Range)
	}
	if cfg.Motor.StepAngle <= 0 {
		return errors.Wrapf(core.ErrInvalidStepAngle, "config: %g", cfg.Motor.StepAngle)
	}

	if t := cfg.TMC; t != nil {
		if t.Device == "" {
			return errors.New("config: tmc device is required")
		}
		if t.Address > 3 {
			return errors.Errorf("config: tmc address %d out of range [0, 3]", t.Address)
		}
		if !tmc.ValidMicrosteps(d.StepMode) {
			return errors.Wrapf(tmc.ErrInvalidMicrosteps, "config: stepmode %d", d.StepMode)
		}
	}
	return nil
}

// CoreDriver builds the driver configuration the core consumes
func (cfg *Config) CoreDriver() core.DriverConfig {
	d := cfg.Driver
	w := make(core.Wiring, len(d.Wiring))
	for signal, pin := range d.Wiring {
		w[signal] = core.Pin(pin)
	}
	s := make(core.States, len(d.States))
	for signal, level := range d.States {
		s[signal] = core.Level(level)
	}
	return core.DriverConfig{
		Name:       d.Name,
		Wiring:     w,
		States:     s,
		StepMode:   d.StepMode,
		PulseWidth: d.PulseWidth,
		ClockWidth: d.ClockWidth,
		Range:      d.Range,
	}
}

// CoreMotor builds the motor configuration the core consumes
func (cfg *Config) CoreMotor() core.MotorConfig {
	return core.MotorConfig{Name: cfg.Motor.Name, StepAngle: cfg.Motor.StepAngle}
}

// TMCLink returns the serial link to the driver chip, if one is configured
func (cfg *Config) TMCLink() (tmc.Config, bool) {
	if cfg.TMC == nil {
		return tmc.Config{}, false
	}
	return tmc.Config{
		Device:  cfg.TMC.Device,
		Baud:    cfg.TMC.Baud,
		Address: cfg.TMC.Address,
		Echo:    cfg.TMC.Echo,
	}, true
}

// Default returns a simulated board with the core defaults
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}
