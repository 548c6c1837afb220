package core

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
)

// MotorConfig describes the mechanical side of a stepper motor
type MotorConfig struct {
	Name      string
	StepAngle float64 // degrees per full step
}

// DefaultMotorConfig returns a 1.8 degree motor
func DefaultMotorConfig() MotorConfig {
	return MotorConfig{StepAngle: DefaultStepAngle}
}

// Motor converts between angles, speeds and tick periods for a motor
// driven through a Driver, and runs the software and PWM motion engines.
type Motor struct {
	driver    *Driver
	name      string
	stepAngle float64
}

// NewMotor attaches a motor to a driver
func NewMotor(d *Driver, cfg MotorConfig) (*Motor, error) {
	m := &Motor{driver: d, name: cfg.Name}
	if err := m.SetStepAngle(cfg.StepAngle); err != nil {
		return nil, err
	}
	return m, nil
}

// Driver returns the driver the motor is attached to
func (m *Motor) Driver() *Driver { return m.driver }

// Name returns the motor model name
func (m *Motor) Name() string { return m.name }

// StepAngle returns the full-step angle in degrees
func (m *Motor) StepAngle() float64 { return m.stepAngle }

// SetStepAngle changes the full-step angle
func (m *Motor) SetStepAngle(deg float64) error {
	if !(deg > 0) || math.IsInf(deg, 0) {
		return errors.Wrapf(ErrInvalidStepAngle, "%g deg", deg)
	}
	m.stepAngle = deg
	return nil
}

// TickAngle returns the rotation produced by one tick at the current step mode
func (m *Motor) TickAngle() float64 {
	return m.stepAngle / float64(m.driver.StepMode())
}

// TickRevFraction returns the fraction of a revolution produced by one tick
func (m *Motor) TickRevFraction() float64 {
	return m.TickAngle() / 360
}

// SplitAngle returns the tick count nearest to deg and the angle left over.
// Remainders within float noise of zero are reported as zero.
func (m *Motor) SplitAngle(deg float64) (int, float64) {
	tick := m.TickAngle()
	n := math.Round(deg / tick)
	rest := deg - n*tick
	if math.Abs(rest) <= 1e-9*math.Max(1, math.Abs(deg)) {
		rest = 0
	}
	return int(n), rest
}

// TickNumber returns the number of ticks needed to rotate by deg. An angle
// that is not a whole number of ticks is rounded and reported as a warning.
func (m *Motor) TickNumber(deg float64) int {
	n, rest := m.SplitAngle(deg)
	if rest != 0 {
		m.driver.emit(Event{
			Kind:      EventWarning,
			Ticks:     n,
			Remainder: rest,
			Message:   fmt.Sprintf("%g deg is not a whole number of ticks", deg),
		})
	}
	return n
}

// TickTime returns the tick period in us for rpm; +Inf when rpm <= 0
func (m *Motor) TickTime(rpm float64) float64 {
	if rpm <= 0 {
		return math.Inf(1)
	}
	return m.TickAngle() / (rpm * degPerRpmPerUs)
}

// Rpm returns the speed in rpm for a tick period of us microseconds
func (m *Motor) Rpm(us float64) float64 {
	return m.TickAngle() / (degPerRpmPerUs * us)
}

// DutyOverRange returns the fraction of the PWM range giving rpm in balanced mode
func (m *Motor) DutyOverRange(rpm float64) float64 {
	return m.driver.ClockPeriod() / m.TickTime(rpm)
}

// ClockMinRpm returns the slowest speed the PWM can produce (duty value 1)
func (m *Motor) ClockMinRpm() float64 {
	return m.Rpm(m.driver.ClockMaxTime())
}

// ClockMaxRpm returns the fastest speed the PWM can produce at 50% duty
func (m *Motor) ClockMaxRpm() float64 {
	return m.Rpm(2 * m.driver.ClockPeriod())
}
