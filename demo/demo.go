// Package demo runs the bench sequence used to bring up a new driver and
// motor: software pulses, hardware PWM, then a positioned move.
package demo

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"wipistepper/core"
)

const (
	Rpm       = 360
	RpmPerSec = 180
	RunMs     = 5000

	Frames  = 10
	RampDeg = 90.0
)

// Config returns the bench wiring: enable on pin 0 held HIGH, clock on the
// PWM capable pin 1, direction on pin 2.
func Config() (core.DriverConfig, core.MotorConfig) {
	d := core.DriverConfig{
		Name:       "TB65603A",
		Wiring:     core.Wiring{"en": 0, "clk": 1, "cw": 2},
		States:     core.States{"en": core.High, "clk": core.Low, "cw": core.Low},
		StepMode:   8,
		PulseWidth: 10,
		ClockWidth: 8,
		Range:      4096,
	}
	m := core.MotorConfig{Name: "QSH6018-65-28-210", StepAngle: 1.8}
	return d, m
}

// Run prints the derived configuration to out, then drives "clk" through
// the sequence with "en" switched. The pins are reset on every return,
// including errors and cancellation.
func Run(ctx context.Context, board core.Board, dcfg core.DriverConfig, mcfg core.MotorConfig, out io.Writer, log logrus.FieldLogger) (err error) {
	d, err := core.NewDriver(board, dcfg, core.WithLogger(log))
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, d.Reset())
	}()

	m, err := core.NewMotor(d, mcfg)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, d.Name())
	fmt.Fprintln(out, m.Name())
	fmt.Fprintln(out, "wiring is:  =  ", d.Wiring())
	fmt.Fprintln(out, "inistates   =  ", d.InitialStates())
	fmt.Fprintln(out, "stepmode    =  ", d.StepMode())
	fmt.Fprintln(out, "angle/tick  =  ", m.TickAngle())
	fmt.Fprintln(out, "tick/rot    =  ", m.TickNumber(360))
	fmt.Fprintln(out, "pulse width =  ", d.PulseWidth())
	fmt.Fprintln(out, "clock width =  ", d.ClockWidth())
	fmt.Fprintln(out, "clock maxrpm=  ", m.ClockMaxRpm())
	fmt.Fprintln(out, "clock minrpm=  ", m.ClockMinRpm())
	fmt.Fprintln(out)
	board.DelayMilliseconds(2000)

	if err := d.Switch("en"); err != nil {
		return err
	}

	if _, err := m.RunFor(ctx, "clk", RunMs, Rpm, RpmPerSec); err != nil {
		return err
	}
	if err := m.PwmRunFor(ctx, "clk", RunMs, Rpm, RpmPerSec); err != nil {
		return err
	}
	_, err = m.RunTo(ctx, "clk", (2*Frames-1)*180.0, RampDeg, RpmPerSec)
	return err
}
