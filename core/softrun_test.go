package core_test

import (
	"context"
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wipistepper/core"
	"wipistepper/targets/sim"
)

func TestNextPulsePeriodIsPositive(t *testing.T) {
	fractions := []float64{0.005, 0.225 / 360, 1.8 / 256 / 360}
	periods := []float64{1e-3, 1, 10, 104.2, 5000, core.UsInfinity, 1e9, math.Inf(1)}
	accels := []float64{-1e-6, -1e-10, -3e-12, -1e-16, 0, 1e-16, 3e-12, 1e-10, 1e-6}

	for _, f := range fractions {
		for _, p := range periods {
			for _, a := range accels {
				next := core.NextPulsePeriod(a, p, f)
				assert.False(t, math.IsNaN(next), "a=%v p=%v f=%v", a, p, f)
				assert.Greater(t, next, 0.0, "a=%v p=%v f=%v", a, p, f)
			}
		}
	}
}

func TestNextPulsePeriodConvergesAtZeroAcceleration(t *testing.T) {
	for _, p := range []float64{1, 104.2, 5000, 1e5} {
		assert.Equal(t, p, core.NextPulsePeriod(0, p, 0.005))
		assert.InEpsilon(t, p, core.NextPulsePeriod(1e-24, p, 0.005), 1e-9)
		assert.InEpsilon(t, p, core.NextPulsePeriod(-1e-24, p, 0.005), 1e-9)
	}
}

func TestNextPulsePeriodDirection(t *testing.T) {
	const f = 0.005
	assert.Less(t, core.NextPulsePeriod(1e-12, 5000, f), 5000.0)
	assert.Greater(t, core.NextPulsePeriod(-1e-12, 5000, f), 5000.0)

	// leapfrog: 1/next^2 = 1/p^2 + 2a/f
	next := core.NextPulsePeriod(1e-12, 5000, f)
	assert.InEpsilon(t, 1/(5000.0*5000)+2e-12/f, 1/(next*next), 1e-9)

	// decelerating past standstill saturates
	assert.Equal(t, core.UsInfinity, core.NextPulsePeriod(-1e-6, 5000, f))
	assert.Equal(t, core.UsInfinity, core.NextPulsePeriod(-1e-12, math.Inf(1), f))

	// accelerating from standstill
	assert.InEpsilon(t, 1/math.Sqrt(2e-12/f), core.NextPulsePeriod(1e-12, math.Inf(1), f), 1e-12)
}

func TestPulseShape(t *testing.T) {
	r := newRig(t, nil)
	start := r.board.Now()

	require.NoError(t, r.motor.Pulse(t.Context(), core.SignalClock, 1000))

	writes := r.board.Filter(sim.OpDigital, 1)
	require.Len(t, writes, 2)
	assert.Equal(t, core.High, writes[0].Level)
	assert.Equal(t, core.Low, writes[1].Level)
	assert.Equal(t, start+470, writes[0].At)
	assert.Equal(t, start+530, writes[1].At)
	assert.Equal(t, start+1000, r.board.Now())

	level, err := r.drv.Signal(core.SignalClock)
	require.NoError(t, err)
	assert.Equal(t, core.Low, level)
}

func TestPulseInvertedIdle(t *testing.T) {
	r := newRig(t, func(cfg *core.DriverConfig) {
		cfg.States[core.SignalClock] = core.High
	})

	require.NoError(t, r.motor.Pulse(t.Context(), core.SignalClock, 200))
	writes := r.board.Filter(sim.OpDigital, 1)
	require.Len(t, writes, 2)
	assert.Equal(t, core.Low, writes[0].Level)
	assert.Equal(t, core.High, writes[1].Level)
	assert.Equal(t, core.High, r.board.Level(1))
}

func TestPulseShorterThanWidth(t *testing.T) {
	r := newRig(t, nil)
	err := r.motor.Pulse(t.Context(), core.SignalClock, 20)
	assert.True(t, errors.Is(err, core.ErrInvalidPeriod))
	assert.Empty(t, r.board.Records())

	// a period equal to the width has no quiet time
	start := r.board.Now()
	require.NoError(t, r.motor.Pulse(t.Context(), core.SignalClock, 60))
	assert.Equal(t, start+60, r.board.Now())
}

func TestRunRejectsTicksShorterThanWidth(t *testing.T) {
	r := newRig(t, nil)
	ctx := t.Context()

	// 10000 rpm at full step is a 30 us tick against a 60 us pulse
	_, err := r.motor.RunFor(ctx, core.SignalClock, 10, 10000, 600)
	assert.True(t, errors.Is(err, core.ErrInvalidPeriod))

	// 100 revolutions of ramp at 60000 rpm/s end on ~11 us ticks
	_, err = r.motor.RunTo(ctx, core.SignalClock, 360, 36000, 60000)
	assert.True(t, errors.Is(err, core.ErrInvalidPeriod))

	assert.Empty(t, r.board.Records())
	assert.Empty(t, r.events(core.EventPhase))
}

func TestRunForNegligibleAcceleration(t *testing.T) {
	r := newRig(t, nil)

	// the leapfrog step cannot move a 1e6 us period at this rate
	assert.Equal(t, core.UsInfinity, core.NextPulsePeriod(1e-18*(1e-13/6), core.UsInfinity, 0.005))

	report, err := r.motor.RunFor(t.Context(), core.SignalClock, 20, 60, 1e-18)
	require.NoError(t, err)
	assert.Equal(t, 1, report.RampUp)
	assert.Equal(t, 1, report.RampDown)
	assert.Positive(t, report.Run)
}

func TestPulseErrors(t *testing.T) {
	r := newRig(t, nil)
	ctx := t.Context()

	assert.True(t, errors.Is(r.motor.Pulse(ctx, "brake", 1000), core.ErrUnknownSignal))
	assert.True(t, errors.Is(r.motor.Pulse(ctx, core.SignalClock, math.Inf(1)), core.ErrInvalidPeriod))
	assert.True(t, errors.Is(r.motor.Pulse(ctx, core.SignalClock, 0), core.ErrInvalidPeriod))
	assert.True(t, errors.Is(r.motor.Pulse(ctx, core.SignalClock, math.NaN()), core.ErrInvalidPeriod))
	assert.True(t, errors.Is(r.motor.Pulse(ctx, core.SignalClock, 1e10), core.ErrInvalidPeriod))
	assert.Empty(t, r.board.Records())
}

func TestRunToPulseCounts(t *testing.T) {
	r := newRig(t, nil)

	report, err := r.motor.RunTo(t.Context(), core.SignalClock, 180, 90, 10)
	require.NoError(t, err)

	assert.Equal(t, r.motor.TickNumber(90), report.RampUp)
	assert.Equal(t, r.motor.TickNumber(180), report.Run)
	assert.Equal(t, r.motor.TickNumber(90), report.RampDown)
	assert.Equal(t, 50, report.RampUp)
	assert.Equal(t, 100, report.Run)
	assert.Equal(t, 200, report.Total())
	assert.Equal(t, 200, r.board.Pulses(1, core.Low))
	assert.Equal(t, core.Low, r.board.Level(1))
}

func TestRunToRampIsMonotonic(t *testing.T) {
	r := newRig(t, microstep(8))

	report, err := r.motor.RunTo(t.Context(), core.SignalClock, 45, 9, 180)
	require.NoError(t, err)
	require.Equal(t, 40, report.RampUp)
	require.Equal(t, 200, report.Run)

	// pulse starts, one rising edge per tick
	var starts []uint64
	for _, w := range r.board.Filter(sim.OpDigital, 1) {
		if w.Level == core.High {
			starts = append(starts, w.At)
		}
	}
	require.Len(t, starts, report.Total())

	gaps := make([]uint64, 0, len(starts)-1)
	for i := 1; i < len(starts); i++ {
		gaps = append(gaps, starts[i]-starts[i-1])
	}
	up := gaps[:report.RampUp-1]
	for i := 1; i < len(up); i++ {
		assert.LessOrEqual(t, up[i], up[i-1], "ramp-up gap %d", i)
	}
	down := gaps[report.RampUp+report.Run-1:]
	for i := 1; i < len(down); i++ {
		assert.GreaterOrEqual(t, down[i], down[i-1], "ramp-down gap %d", i)
	}
}

func TestRunForPhases(t *testing.T) {
	r := newRig(t, microstep(8))
	r.board.SetRecording(false)

	const rpm, rpmps = 360, 180
	report, err := r.motor.RunFor(t.Context(), core.SignalClock, 100, rpm, rpmps)
	require.NoError(t, err)

	target := r.motor.TickTime(rpm)
	assert.InDelta(t, target, report.RunPeriod, 1e-9)
	assert.Greater(t, report.RampUp, 1000)
	assert.Greater(t, report.RampDown, 1000)

	// each hold pulse is 22+60+22 us
	assert.GreaterOrEqual(t, report.Run, 99000/104)
	assert.LessOrEqual(t, report.Run, 100000/104+2)

	var phases []string
	for _, ev := range r.events(core.EventPhase) {
		phases = append(phases, ev.Phase)
	}
	assert.Equal(t, []string{core.PhaseRampUp, core.PhaseRun, core.PhaseRampDown, core.PhaseDone}, phases)
	assert.Equal(t, core.Low, r.board.Level(1))
}

func TestRunForReachesTargetExactly(t *testing.T) {
	r := newRig(t, nil)

	_, err := r.motor.RunFor(t.Context(), core.SignalClock, 50, 60, 600)
	require.NoError(t, err)

	// the last ramp-up pulse is clamped to the 5000 us target, so the
	// hold phase starts on a 5000 us grid
	var starts []uint64
	for _, w := range r.board.Filter(sim.OpDigital, 1) {
		if w.Level == core.High {
			starts = append(starts, w.At)
		}
	}
	found := false
	for i := 2; i < len(starts); i++ {
		if starts[i]-starts[i-1] == 5000 && starts[i-1]-starts[i-2] == 5000 {
			found = true
			break
		}
	}
	assert.True(t, found)
}

func TestRunForStationaryTarget(t *testing.T) {
	r := newRig(t, nil)
	start := r.board.Now()

	report, err := r.motor.RunFor(t.Context(), core.SignalClock, 250, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Total())
	assert.Empty(t, r.board.Records())
	assert.GreaterOrEqual(t, r.board.Now()-start, uint64(250000))
	assert.Len(t, r.events(core.EventWarning), 1)
}

func TestRunRejectsAcceleration(t *testing.T) {
	r := newRig(t, nil)
	ctx := t.Context()

	_, err := r.motor.RunFor(ctx, core.SignalClock, 10, 60, 0)
	assert.True(t, errors.Is(err, core.ErrInvalidAcceleration))
	_, err = r.motor.RunTo(ctx, core.SignalClock, 10, 10, -5)
	assert.True(t, errors.Is(err, core.ErrInvalidAcceleration))
	_, err = r.motor.RunTo(ctx, "brake", 10, 10, 5)
	assert.True(t, errors.Is(err, core.ErrUnknownSignal))
	assert.Empty(t, r.board.Records())
}

func TestRunToCancellation(t *testing.T) {
	r := newRig(t, nil)
	ctx, cancel := context.WithCancel(t.Context())

	obs := core.ObserverFunc(func(ev core.Event) {
		if ev.Kind == core.EventPhase && ev.Phase == core.PhaseRun {
			cancel()
		}
	})
	drv, err := core.NewDriver(r.board, core.DefaultDriverConfig(), core.WithObserver(obs), core.WithLogger(r.drv.Logger()))
	require.NoError(t, err)
	motor, err := core.NewMotor(drv, core.DefaultMotorConfig())
	require.NoError(t, err)

	report, err := motor.RunTo(ctx, core.SignalClock, 180, 90, 10)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 50, report.RampUp)
	assert.Equal(t, 0, report.Run)

	level, err := drv.Signal(core.SignalClock)
	require.NoError(t, err)
	assert.Equal(t, core.Low, level)
	assert.Equal(t, core.Low, r.board.Level(1))
}
