package core_test

import (
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"wipistepper/core"
	"wipistepper/targets/sim"
)

type rig struct {
	board *sim.Board
	drv   *core.Driver
	motor *core.Motor
	rec   *core.Recorder
	hook  *logtest.Hook
}

func newRig(t *testing.T, tweak func(*core.DriverConfig)) *rig {
	t.Helper()

	cfg := core.DefaultDriverConfig()
	if tweak != nil {
		tweak(&cfg)
	}
	log, hook := logtest.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	rec := core.NewRecorder(4096)

	board := sim.NewBoard()
	drv, err := core.NewDriver(board, cfg, core.WithLogger(log), core.WithObserver(rec))
	require.NoError(t, err)
	motor, err := core.NewMotor(drv, core.DefaultMotorConfig())
	require.NoError(t, err)

	board.ClearRecords()
	return &rig{board: board, drv: drv, motor: motor, rec: rec, hook: hook}
}

func microstep(n uint32) func(*core.DriverConfig) {
	return func(cfg *core.DriverConfig) { cfg.StepMode = n }
}

func (r *rig) events(kind core.EventKind) []core.Event {
	var out []core.Event
	for _, ev := range r.rec.Events() {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}
