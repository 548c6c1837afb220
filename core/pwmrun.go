package core

import (
	"context"
	"fmt"
	"math"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// CheckPwmRpm reports whether rpm lies within [ClockMinRpm, ClockMaxRpm]
// for the current clock configuration. A refusal is emitted as an
// EventRejected.
func (m *Motor) CheckPwmRpm(signal string, rpm float64) error {
	lo, hi := m.ClockMinRpm(), m.ClockMaxRpm()
	if rpm >= lo && rpm <= hi {
		return nil
	}
	err := errors.Wrapf(ErrRpmOutOfRange, "%g rpm not in [%g, %g]", rpm, lo, hi)
	m.driver.emit(Event{
		Kind:    EventRejected,
		Signal:  signal,
		Rpm:     rpm,
		Err:     err,
		Message: "pwm run refused",
	})
	return err
}

// duty returns the duty register value producing rpm
func (m *Motor) duty(rpm float64) int64 {
	return int64(math.Round(m.DutyOverRange(rpm) * float64(m.driver.Range())))
}

func (m *Motor) writeDuty(signal string, pin Pin, rpm float64, value int64) error {
	if err := m.driver.board.WritePwmDutyCycle(pin, uint32(value)); err != nil {
		return err
	}
	m.driver.emit(Event{
		Kind:    EventDuty,
		Signal:  signal,
		Rpm:     rpm,
		Duty:    uint32(value),
		Message: "duty",
	})
	return nil
}

// AccelerateTo ramps the PWM output of signal from standstill to rpm in
// 1 ms steps. Each step gains rpmPerMs scaled by a friction factor that
// shrinks near the target. A duty value is only written when it changes.
// It returns the final duty value.
func (m *Motor) AccelerateTo(ctx context.Context, signal string, rpm, rpmPerMs float64) (uint32, error) {
	if !(rpmPerMs > 0) {
		return 0, errors.Wrapf(ErrInvalidAcceleration, "%g rpm/ms", rpmPerMs)
	}
	pin, err := m.driver.Pin(signal)
	if err != nil {
		return 0, err
	}

	clk := m.driver.board
	var ramp float64
	data, prev := int64(0), int64(-1)
	for ramp < rpm {
		if err := ctx.Err(); err != nil {
			return uint32(max(prev, 0)), err
		}
		friction := math.Abs(1.1*rpm-ramp) / (1.1*rpm + 1 + ramp)
		ramp = math.Min(ramp+rpmPerMs*friction, rpm)
		data = m.duty(ramp)
		if data != prev {
			if err := m.writeDuty(signal, pin, ramp, data); err != nil {
				return uint32(max(prev, 0)), err
			}
			prev = data
		}
		clk.DelayMilliseconds(1)
	}
	return uint32(data), nil
}

// DecelerateFrom ramps the PWM output of signal from rpm down to a zero
// duty value in 1 ms steps of rpmPerMs, which must be negative.
func (m *Motor) DecelerateFrom(ctx context.Context, signal string, rpm, rpmPerMs float64) (uint32, error) {
	if !(rpmPerMs < 0) {
		return 0, errors.Wrapf(ErrInvalidAcceleration, "%g rpm/ms", rpmPerMs)
	}
	pin, err := m.driver.Pin(signal)
	if err != nil {
		return 0, err
	}

	clk := m.driver.board
	ramp := math.Max(rpm, 0)
	prev := m.duty(ramp)
	if prev == 0 {
		prev = -1
	}
	data := int64(1)
	for data > 0 {
		if err := ctx.Err(); err != nil {
			return uint32(max(prev, 0)), err
		}
		ramp = math.Max(ramp+rpmPerMs, 0)
		data = m.duty(ramp)
		if data != prev {
			if err := m.writeDuty(signal, pin, ramp, data); err != nil {
				return uint32(max(prev, 0)), err
			}
			prev = data
		}
		clk.DelayMilliseconds(1)
	}
	return 0, nil
}

// startPwm validates rpm, hands signal's pin to the PWM peripheral and
// accelerates to rpm.
func (m *Motor) startPwm(ctx context.Context, signal string, rpm, rpmPerSec float64) (uint32, error) {
	d := m.driver
	pin, err := d.Pin(signal)
	if err != nil {
		return 0, err
	}
	if !(rpmPerSec > 0) {
		return 0, errors.Wrapf(ErrInvalidAcceleration, "%g rpm/s", rpmPerSec)
	}
	if err := m.CheckPwmRpm(signal, rpm); err != nil {
		return 0, err
	}

	m.phase(signal, PhasePWMOn, rpm, m.TickTime(rpm), 0)
	if err := d.ConfigurePin(pin, PinModePWM); err != nil {
		return 0, err
	}
	if err := d.applyClock(); err != nil {
		return 0, m.abortPwm(signal, err)
	}

	m.phase(signal, PhaseRampUp, rpm, m.TickTime(rpm), 0)
	data, err := m.AccelerateTo(ctx, signal, rpm, rpmPerSec*1e-3)
	if err != nil {
		return data, m.abortPwm(signal, err)
	}
	return data, nil
}

// stopPwm decelerates from rpm and returns signal's pin to digital output
func (m *Motor) stopPwm(ctx context.Context, signal string, rpm, rpmPerSec float64) error {
	m.phase(signal, PhaseRampDown, rpm, m.TickTime(rpm), 0)
	if _, err := m.DecelerateFrom(ctx, signal, rpm, rpmPerSec*1e-3); err != nil {
		return m.abortPwm(signal, err)
	}
	if err := m.releasePwm(signal); err != nil {
		return err
	}
	m.phase(signal, PhasePWMOff, 0, 0, 0)
	return nil
}

// releasePwm switches signal's pin back to digital output at its recorded level
func (m *Motor) releasePwm(signal string) error {
	d := m.driver
	pin, err := d.Pin(signal)
	if err != nil {
		return err
	}
	if err := d.ConfigurePin(pin, PinModeOutput); err != nil {
		return err
	}
	return d.board.WriteDigital(pin, d.states[signal])
}

// abortPwm silences the PWM output of signal and releases the pin,
// combining any failure with cause.
func (m *Motor) abortPwm(signal string, cause error) error {
	pin, err := m.driver.Pin(signal)
	if err != nil {
		return multierr.Append(cause, err)
	}
	err = multierr.Combine(
		cause,
		m.driver.board.WritePwmDutyCycle(pin, 0),
		m.releasePwm(signal),
	)
	m.driver.emit(Event{
		Kind:    EventWarning,
		Signal:  signal,
		Err:     cause,
		Message: "pwm run aborted",
	})
	return err
}

// PwmRunFor drives signal with the hardware PWM: ramp up to rpm at
// rpmPerSec, hold for durationMs, ramp down and switch the pin back to
// digital output. An rpm the clock cannot represent is refused before the
// pin mode changes.
func (m *Motor) PwmRunFor(ctx context.Context, signal string, durationMs uint32, rpm, rpmPerSec float64) error {
	data, err := m.startPwm(ctx, signal, rpm, rpmPerSec)
	if err != nil {
		return err
	}

	m.phase(signal, PhaseRun, rpm, m.TickTime(rpm), int(data))
	if err := m.idle(ctx, durationMs); err != nil {
		return m.abortPwm(signal, err)
	}
	return m.stopPwm(ctx, signal, rpm, -rpmPerSec)
}

// PwmRunStart ramps signal up to rpm on the hardware PWM and returns with
// the PWM left running. It returns the running duty value.
func (m *Motor) PwmRunStart(ctx context.Context, signal string, rpm, rpmPerSec float64) (uint32, error) {
	data, err := m.startPwm(ctx, signal, rpm, rpmPerSec)
	if err != nil {
		return 0, err
	}
	m.phase(signal, PhaseRun, rpm, m.TickTime(rpm), int(data))
	return data, nil
}

// PwmRunStop ramps a running PWM output down from rpm and switches the pin
// back to digital output. A positive rpmPerSec is taken as a deceleration.
func (m *Motor) PwmRunStop(ctx context.Context, signal string, rpm, rpmPerSec float64) error {
	if _, err := m.driver.Pin(signal); err != nil {
		return err
	}
	if rpmPerSec == 0 || math.IsNaN(rpmPerSec) {
		return errors.Wrapf(ErrInvalidAcceleration, "%g rpm/s", rpmPerSec)
	}
	if rpmPerSec > 0 {
		m.driver.emit(Event{
			Kind:    EventWarning,
			Signal:  signal,
			Message: fmt.Sprintf("positive rate %g rpm/s taken as deceleration", rpmPerSec),
		})
		rpmPerSec = -rpmPerSec
	}
	return m.stopPwm(ctx, signal, rpm, rpmPerSec)
}
