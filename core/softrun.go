package core

import (
	"context"
	"fmt"
	"math"

	"github.com/pkg/errors"
)

// RunReport counts the pulses emitted in each phase of a software run
type RunReport struct {
	RampUp   int
	Run      int
	RampDown int

	// RunPeriod is the constant-speed period in us
	RunPeriod float64
}

// Total returns the number of pulses emitted
func (r RunReport) Total() int { return r.RampUp + r.Run + r.RampDown }

// NextPulsePeriod advances a pulse period by one tick under a constant
// angular acceleration of accel rev/us^2. The update is a leapfrog step on
// 1/period^2, which stays finite at standstill:
//
//	1/next^2 = 1/period^2 + 2*accel/tickRevFraction
//
// A deceleration that would stop the motor saturates at UsInfinity. The
// result is always positive.
func NextPulsePeriod(accel, period, tickRevFraction float64) float64 {
	if !(period > 0) {
		return UsInfinity
	}
	k := 2 * accel / tickRevFraction
	if k == 0 {
		return period
	}
	if math.IsInf(period, 1) {
		if k > 0 {
			return 1 / math.Sqrt(k)
		}
		return UsInfinity
	}

	// period/sqrt(1 + k*period^2) avoids underflow of 1/period^2
	s := 1 + k*period*period
	if !(s > 0) {
		return UsInfinity
	}
	if math.IsInf(s, 1) {
		return 1 / math.Sqrt(k)
	}
	next := period / math.Sqrt(s)
	if k < 0 && next > UsInfinity {
		return UsInfinity
	}
	return next
}

// maxPulsePeriod keeps both quiet delays of a pulse within uint32 microseconds
const maxPulsePeriod = 2 * math.MaxUint32

// nextPeriod applies NextPulsePeriod with the motor's tick fraction
func (m *Motor) nextPeriod(accel, period float64) float64 {
	return NextPulsePeriod(accel, period, m.TickRevFraction())
}

// Pulse emits one step pulse centered in a window of period microseconds:
// quiet, pulse width at the opposite level, quiet. The signal ends at its
// recorded level.
func (m *Motor) Pulse(ctx context.Context, signal string, period float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !(period > 0) || period > maxPulsePeriod {
		return errors.Wrapf(ErrInvalidPeriod, "%g us", period)
	}
	d := m.driver
	level, err := d.Signal(signal)
	if err != nil {
		return err
	}

	width := d.PulseWidth()
	if period < float64(width) {
		return errors.Wrapf(ErrInvalidPeriod, "%g us is shorter than the %d us pulse width", period, width)
	}
	quiet := math.Round((period - float64(width)) / 2)
	if quiet < 0 {
		quiet = 0
	}
	clk := d.board

	clk.DelayMicroseconds(uint32(quiet))
	if err := d.SetSignal(signal, level.Opposite()); err != nil {
		return err
	}
	clk.DelayMicroseconds(width)
	if err := d.SetSignal(signal, level); err != nil {
		return err
	}
	clk.DelayMicroseconds(uint32(quiet))
	return nil
}

func (m *Motor) phase(signal, phase string, rpm, period float64, ticks int) {
	m.driver.emit(Event{
		Kind:    EventPhase,
		Signal:  signal,
		Phase:   phase,
		Rpm:     rpm,
		Period:  period,
		Ticks:   ticks,
		Message: phase,
	})
}

// idle blocks for ms milliseconds in 1 ms slices, returning early on cancellation
func (m *Motor) idle(ctx context.Context, ms uint32) error {
	clk := m.driver.board
	start := clk.MonotonicMillis()
	for clk.MonotonicMillis()-start < uint64(ms) {
		if err := ctx.Err(); err != nil {
			return err
		}
		clk.DelayMilliseconds(1)
	}
	return nil
}

// RunFor drives signal with software pulses: ramp up from standstill to
// rpm at rpmPerSec, hold rpm for at least durationMs, ramp back down to
// standstill. A stationary target (rpm <= 0) idles for the duration
// without pulsing; a target tick shorter than the pulse width is refused.
func (m *Motor) RunFor(ctx context.Context, signal string, durationMs uint32, rpm, rpmPerSec float64) (RunReport, error) {
	var report RunReport
	if !(rpmPerSec > 0) {
		return report, errors.Wrapf(ErrInvalidAcceleration, "%g rpm/s", rpmPerSec)
	}
	if _, err := m.driver.Pin(signal); err != nil {
		return report, err
	}

	accel := rpmPerSec * revPerUs2PerRpmPerSec
	target := m.TickTime(rpm)
	if !(target < UsInfinity) {
		m.driver.emit(Event{
			Kind:    EventWarning,
			Signal:  signal,
			Rpm:     rpm,
			Message: fmt.Sprintf("%g rpm is a standstill, idling", rpm),
		})
		return report, m.idle(ctx, durationMs)
	}
	if width := m.driver.PulseWidth(); target < float64(width) {
		return report, errors.Wrapf(ErrInvalidPeriod, "%g rpm needs %g us ticks, shorter than the %d us pulse width", rpm, target, width)
	}
	report.RunPeriod = target

	m.phase(signal, PhaseRampUp, rpm, target, 0)
	for period := UsInfinity; period > target; {
		next := m.nextPeriod(accel, period)
		// an acceleration too small to move the period in float64 jumps to the target
		if next >= period || next < target {
			next = target
		}
		period = next
		if err := m.Pulse(ctx, signal, period); err != nil {
			return report, err
		}
		report.RampUp++
	}

	m.phase(signal, PhaseRun, rpm, target, report.RampUp)
	clk := m.driver.board
	start := clk.MonotonicMillis()
	for clk.MonotonicMillis()-start < uint64(durationMs) {
		if err := m.Pulse(ctx, signal, target); err != nil {
			return report, err
		}
		report.Run++
	}

	m.phase(signal, PhaseRampDown, rpm, target, report.Run)
	for period := target; period < UsInfinity; {
		if err := m.Pulse(ctx, signal, period); err != nil {
			return report, err
		}
		report.RampDown++
		next := m.nextPeriod(-accel, period)
		if next <= period {
			break
		}
		period = next
	}

	m.phase(signal, PhaseDone, 0, 0, report.Total())
	return report, nil
}

// RunTo sweeps runDeg + 2*rampDeg with software pulses: TickNumber(rampDeg)
// accelerating pulses from standstill at rpmPerSec, TickNumber(runDeg)
// pulses at the reached speed, and TickNumber(rampDeg) decelerating pulses.
// A ramp that would end on ticks shorter than the pulse width is refused
// before any pulse.
func (m *Motor) RunTo(ctx context.Context, signal string, runDeg, rampDeg, rpmPerSec float64) (RunReport, error) {
	var report RunReport
	if !(rpmPerSec > 0) {
		return report, errors.Wrapf(ErrInvalidAcceleration, "%g rpm/s", rpmPerSec)
	}
	if _, err := m.driver.Pin(signal); err != nil {
		return report, err
	}

	accel := rpmPerSec * revPerUs2PerRpmPerSec
	nrun := m.TickNumber(runDeg)
	nramp := m.TickNumber(rampDeg)

	reached := UsInfinity
	for i := 0; i < nramp; i++ {
		reached = m.nextPeriod(accel, reached)
	}
	if width := m.driver.PulseWidth(); reached < float64(width) {
		return report, errors.Wrapf(ErrInvalidPeriod, "ramp reaches %g us ticks, shorter than the %d us pulse width", reached, width)
	}

	m.phase(signal, PhaseRampUp, 0, 0, nramp)
	period := UsInfinity
	for i := 0; i < nramp; i++ {
		period = m.nextPeriod(accel, period)
		if err := m.Pulse(ctx, signal, period); err != nil {
			return report, err
		}
		report.RampUp++
	}

	report.RunPeriod = period
	m.phase(signal, PhaseRun, m.Rpm(period), period, nrun)
	for i := 0; i < nrun; i++ {
		if err := m.Pulse(ctx, signal, period); err != nil {
			return report, err
		}
		report.Run++
	}

	m.phase(signal, PhaseRampDown, m.Rpm(period), period, nramp)
	for i := 0; i < nramp; i++ {
		if err := m.Pulse(ctx, signal, period); err != nil {
			return report, err
		}
		period = m.nextPeriod(-accel, period)
		report.RampDown++
	}

	m.phase(signal, PhaseDone, 0, 0, report.Total())
	return report, nil
}
