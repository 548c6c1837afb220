package core_test

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wipistepper/core"
	"wipistepper/targets/sim"
)

func TestNewDriverDefaults(t *testing.T) {
	board := sim.NewBoard()
	drv, err := core.NewDriver(board, core.DefaultDriverConfig())
	require.NoError(t, err)

	assert.Equal(t, core.DefaultWiring(), drv.Wiring())
	assert.Equal(t, core.DefaultStates(), drv.States())
	assert.Equal(t, core.DefaultStates(), drv.InitialStates())
	assert.Equal(t, uint32(1), drv.StepMode())
	assert.Equal(t, uint32(60), drv.PulseWidth())
	assert.Equal(t, 8.0, drv.ClockWidth())
	assert.Equal(t, uint32(154), drv.ClockDivider())
	assert.InDelta(t, 154/19.2-8, drv.ClockShift(), 1e-12)
	assert.Equal(t, uint32(4096), drv.Range())
	assert.Equal(t, core.DefaultPriority, board.Priority())

	for _, pin := range []core.Pin{0, 1, 2} {
		assert.Equal(t, core.PinModeOutput, board.Mode(pin))
		assert.Equal(t, core.Low, board.Level(pin))
	}

	rng, div, _ := board.PWM()
	assert.Equal(t, uint32(4096), rng)
	assert.Equal(t, uint32(154), div)
}

func TestNewDriverValidation(t *testing.T) {
	cfg := core.DefaultDriverConfig()
	cfg.StepMode = 0
	_, err := core.NewDriver(sim.NewBoard(), cfg)
	assert.True(t, errors.Is(err, core.ErrInvalidStepMode))

	cfg = core.DefaultDriverConfig()
	cfg.PulseWidth = 0
	_, err = core.NewDriver(sim.NewBoard(), cfg)
	assert.True(t, errors.Is(err, core.ErrInvalidPulseWidth))

	cfg = core.DefaultDriverConfig()
	cfg.States["brake"] = core.High
	_, err = core.NewDriver(sim.NewBoard(), cfg)
	assert.True(t, errors.Is(err, core.ErrUnknownSignal))

	cfg = core.DefaultDriverConfig()
	cfg.ClockWidth = 0.01
	_, err = core.NewDriver(sim.NewBoard(), cfg)
	assert.True(t, errors.Is(err, core.ErrInvalidClockWidth))
}

func TestNewDriverPriorityFailureIsNotFatal(t *testing.T) {
	board := sim.NewBoard()
	board.FailScheduling(errors.New("operation not permitted"))
	log, hook := logtest.NewNullLogger()

	_, err := core.NewDriver(board, core.DefaultDriverConfig(), core.WithLogger(log))
	require.NoError(t, err)
	assert.Equal(t, -1, board.Priority())

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, "setting priority failed", hook.LastEntry().Message)
}

func TestBoardInitializeIsIdempotent(t *testing.T) {
	board := sim.NewBoard()
	_, err := core.NewDriver(board, core.DefaultDriverConfig())
	require.NoError(t, err)
	_, err = core.NewDriver(board, core.DefaultDriverConfig())
	require.NoError(t, err)
	assert.Equal(t, 2, board.InitCount())
}

func TestConfigDoesNotAlias(t *testing.T) {
	cfg := core.DefaultDriverConfig()
	board := sim.NewBoard()
	drv, err := core.NewDriver(board, cfg)
	require.NoError(t, err)

	cfg.Wiring[core.SignalClock] = 7
	cfg.States[core.SignalEnable] = core.High

	pin, err := drv.Pin(core.SignalClock)
	require.NoError(t, err)
	assert.Equal(t, core.Pin(1), pin)
	level, err := drv.Signal(core.SignalEnable)
	require.NoError(t, err)
	assert.Equal(t, core.Low, level)

	w := drv.Wiring()
	w[core.SignalClock] = 9
	pin, _ = drv.Pin(core.SignalClock)
	assert.Equal(t, core.Pin(1), pin)
}

func TestSignalOperations(t *testing.T) {
	r := newRig(t, nil)

	require.NoError(t, r.drv.SetSignal(core.SignalDirection, core.High))
	assert.Equal(t, core.High, r.board.Level(2))
	level, err := r.drv.ReadSignal(core.SignalDirection)
	require.NoError(t, err)
	assert.Equal(t, core.High, level)

	require.NoError(t, r.drv.Switch(core.SignalEnable))
	assert.Equal(t, core.High, r.board.Level(0))
	require.NoError(t, r.drv.Switch(core.SignalEnable))
	assert.Equal(t, core.Low, r.board.Level(0))

	require.NoError(t, r.drv.SetPinState(1, core.High))
	level, err = r.drv.Signal(core.SignalClock)
	require.NoError(t, err)
	assert.Equal(t, core.High, level)
	level, err = r.drv.PinState(1)
	require.NoError(t, err)
	assert.Equal(t, core.High, level)
}

func TestUnknownSignal(t *testing.T) {
	r := newRig(t, nil)
	before := r.drv.States()

	_, err := r.drv.Pin("brake")
	assert.True(t, errors.Is(err, core.ErrUnknownSignal))
	assert.True(t, errors.Is(r.drv.SetSignal("brake", core.High), core.ErrUnknownSignal))
	assert.True(t, errors.Is(r.drv.Switch("brake"), core.ErrUnknownSignal))
	assert.True(t, errors.Is(r.drv.ConfigureSignal("brake", core.PinModePWM), core.ErrUnknownSignal))

	assert.Equal(t, before, r.drv.States())
	assert.Empty(t, r.board.Records())
}

func TestSetWiring(t *testing.T) {
	r := newRig(t, nil)
	require.NoError(t, r.drv.SetSignal(core.SignalEnable, core.High))

	err := r.drv.SetWiring(core.Wiring{core.SignalEnable: 5, "step": 6})
	require.NoError(t, err)

	assert.Equal(t, core.States{core.SignalEnable: core.High, "step": core.Low}, r.drv.States())
	assert.Equal(t, core.States{core.SignalEnable: core.Low, "step": core.Low}, r.drv.InitialStates())
	assert.Equal(t, core.PinModeOutput, r.board.Mode(5))
	assert.Equal(t, core.High, r.board.Level(5))
	assert.Equal(t, core.PinModeOutput, r.board.Mode(6))

	_, err = r.drv.Pin(core.SignalClock)
	assert.True(t, errors.Is(err, core.ErrUnknownSignal))
}

func TestConfigurePinPWMSetsBalancedMode(t *testing.T) {
	r := newRig(t, nil)
	require.NoError(t, r.board.SetPwmMode(core.PWMModeMarkSpace))

	require.NoError(t, r.drv.ConfigureSignal(core.SignalClock, core.PinModePWM))
	_, _, mode := r.board.PWM()
	assert.Equal(t, core.PWMModeBalanced, mode)
	assert.Equal(t, core.PinModePWM, r.board.Mode(1))

	require.NoError(t, r.drv.ConfigureSignal(core.SignalClock, core.PinModeOutput))
	assert.Equal(t, core.PinModeOutput, r.board.Mode(1))
}

func TestClockConfiguration(t *testing.T) {
	r := newRig(t, nil)

	err := r.drv.SetClockWidth(0.01)
	assert.True(t, errors.Is(err, core.ErrInvalidClockWidth))
	assert.Equal(t, uint32(154), r.drv.ClockDivider())
	assert.Equal(t, 8.0, r.drv.ClockWidth())

	require.NoError(t, r.drv.SetClockDivider(192))
	assert.InDelta(t, 10.0, r.drv.ClockWidth(), 1e-12)
	assert.Equal(t, 0.0, r.drv.ClockShift())
	assert.InDelta(t, 10.0, r.drv.ClockPeriod(), 1e-12)

	assert.True(t, errors.Is(r.drv.SetClockDivider(0), core.ErrInvalidClockWidth))
	assert.Equal(t, uint32(192), r.drv.ClockDivider())

	assert.True(t, errors.Is(r.drv.SetRange(1), core.ErrInvalidRange))
	assert.Equal(t, uint32(4096), r.drv.Range())

	require.NoError(t, r.drv.SetClockMaxTime(10000))
	assert.Equal(t, uint32(1000), r.drv.Range())
	assert.InDelta(t, 10000.0, r.drv.ClockMaxTime(), 1e-9)

	assert.True(t, errors.Is(r.drv.SetClockMaxTime(5), core.ErrInvalidRange))
	assert.Equal(t, uint32(1000), r.drv.Range())

	rng, div, _ := r.board.PWM()
	assert.Equal(t, uint32(1000), rng)
	assert.Equal(t, uint32(192), div)
}

func TestResetRestoresInitialStates(t *testing.T) {
	r := newRig(t, func(cfg *core.DriverConfig) {
		cfg.States[core.SignalEnable] = core.High
	})
	ctx := t.Context()

	require.NoError(t, r.drv.Switch(core.SignalEnable))
	require.NoError(t, r.drv.SetSignal(core.SignalDirection, core.High))
	require.NoError(t, r.drv.ConfigureSignal(core.SignalClock, core.PinModePWM))
	for i := 0; i < 5; i++ {
		require.NoError(t, r.motor.Pulse(ctx, core.SignalDirection, 500))
	}

	require.NoError(t, r.drv.Reset())
	assert.Equal(t, r.drv.InitialStates(), r.drv.States())
	assert.Equal(t, core.High, r.board.Level(0))
	assert.Equal(t, core.Low, r.board.Level(1))
	assert.Equal(t, core.Low, r.board.Level(2))
	for _, pin := range []core.Pin{0, 1, 2} {
		assert.Equal(t, core.PinModeOutput, r.board.Mode(pin))
	}
}

func TestResetCombinesErrors(t *testing.T) {
	r := newRig(t, nil)
	r.board.FailOn = func(rec sim.Record) error {
		if rec.Op == sim.OpMode && rec.Pin != 1 {
			return errors.Errorf("pin %d stuck", rec.Pin)
		}
		return nil
	}

	err := r.drv.Reset()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pin 0 stuck")
	assert.Contains(t, err.Error(), "pin 2 stuck")
	assert.Equal(t, core.PinModeOutput, r.board.Mode(1))
}
