package core_test

import (
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wipistepper/core"
	"wipistepper/targets/sim"
)

func TestRecorderKeepsNewest(t *testing.T) {
	rec := core.NewRecorder(3)
	assert.Empty(t, rec.Events())

	for i := 1; i <= 5; i++ {
		rec.OnEvent(core.Event{Kind: core.EventDuty, Duty: uint32(i)})
	}
	events := rec.Events()
	require.Len(t, events, 3)
	assert.Equal(t, uint32(3), events[0].Duty)
	assert.Equal(t, uint32(4), events[1].Duty)
	assert.Equal(t, uint32(5), events[2].Duty)

	rec.Clear()
	assert.Empty(t, rec.Events())
	rec.OnEvent(core.Event{Kind: core.EventPhase})
	assert.Len(t, rec.Events(), 1)
}

func TestRecorderDefaultSize(t *testing.T) {
	rec := core.NewRecorder(0)
	for i := 0; i < core.DefaultRecorderSize+10; i++ {
		rec.OnEvent(core.Event{Ticks: i})
	}
	events := rec.Events()
	require.Len(t, events, core.DefaultRecorderSize)
	assert.Equal(t, 10, events[0].Ticks)
}

func TestEventsAreLogged(t *testing.T) {
	log, hook := logtest.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	drv, err := core.NewDriver(sim.NewBoard(), core.DefaultDriverConfig(), core.WithLogger(log))
	require.NoError(t, err)
	motor, err := core.NewMotor(drv, core.DefaultMotorConfig())
	require.NoError(t, err)
	hook.Reset()

	motor.TickNumber(1)
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "warning", entry.Data["kind"])
	assert.Equal(t, 1, entry.Data["ticks"])
	assert.Contains(t, entry.Data, "remainder_deg")

	_, err = motor.RunTo(t.Context(), core.SignalClock, 1.8, 1.8, 60)
	require.NoError(t, err)
	entry = hook.LastEntry()
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, core.PhaseDone, entry.Data["phase"])
	assert.Equal(t, 3, entry.Data["ticks"])
}
