package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"wipistepper/config"
	"wipistepper/core"
	"wipistepper/tmc"
)

var errQuit = errors.New("quit")

// console executes tokenized commands against one driver and motor
type console struct {
	out    io.Writer
	cfg    *config.Config
	driver *core.Driver
	motor  *core.Motor
	events *core.Recorder

	chip *tmc.Device
}

func newConsole(out io.Writer, board core.Board, cfg *config.Config, log logrus.FieldLogger) (*console, error) {
	rec := core.NewRecorder(core.DefaultRecorderSize)
	d, err := core.NewDriver(board, cfg.CoreDriver(),
		core.WithLogger(log),
		core.WithObserver(rec),
		core.WithPriority(*cfg.Board.Priority),
	)
	if err != nil {
		return nil, errors.Wrap(err, "driver")
	}
	m, err := core.NewMotor(d, cfg.CoreMotor())
	if err != nil {
		return nil, errors.Wrap(err, "motor")
	}
	return &console{out: out, cfg: cfg, driver: d, motor: m, events: rec}, nil
}

// Close resets the driver pins and releases the TMC link
func (c *console) Close() error {
	err := c.driver.Reset()
	if c.chip != nil {
		err = multierr.Append(err, c.chip.Close())
	}
	return err
}

// Run executes one command line
func (c *console) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return nil
	}
	cmd, args := args[0], args[1:]

	switch cmd {
	case "quit", "exit", "q":
		return errQuit

	case "help", "?":
		c.printHelp()
		return nil

	case "info":
		c.printInfo()
		return nil

	case "switch":
		if err := want(args, 1, "switch <signal>"); err != nil {
			return err
		}
		if err := c.driver.Switch(args[0]); err != nil {
			return err
		}
		return c.printSignal(args[0])

	case "set":
		if err := want(args, 2, "set <signal> <low|high>"); err != nil {
			return err
		}
		level, err := parseLevel(args[1])
		if err != nil {
			return err
		}
		if err := c.driver.SetSignal(args[0], level); err != nil {
			return err
		}
		return c.printSignal(args[0])

	case "get":
		if err := want(args, 1, "get <signal>"); err != nil {
			return err
		}
		level, err := c.driver.ReadSignal(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "%s reads %s\n", args[0], level)
		return nil

	case "stepmode", "pulse", "clock", "range", "angle":
		return c.setParameter(cmd, args)

	case "ticks":
		v, err := floats(args, "ticks <degrees>")
		if err != nil {
			return err
		}
		n, rem := c.motor.SplitAngle(v[0])
		fmt.Fprintf(c.out, "%g deg = %d ticks (remainder %g deg)\n", v[0], n, rem)
		return nil

	case "softrun":
		return c.softRun(ctx, args)

	case "softto":
		if len(args) < 1 {
			return errors.New("usage: softto <signal> <degrees> <ramp degrees> <rpm/s>")
		}
		v, err := floats(args[1:], "softto <signal> <degrees> <ramp degrees> <rpm/s>", 3)
		if err != nil {
			return err
		}
		report, err := c.motor.RunTo(ctx, args[0], v[0], v[1], v[2])
		c.printReport(report)
		return err

	case "pwmrun":
		if len(args) < 1 {
			return errors.New("usage: pwmrun <signal> <ms> <rpm> <rpm/s>")
		}
		v, err := floats(args[1:], "pwmrun <signal> <ms> <rpm> <rpm/s>", 3)
		if err != nil {
			return err
		}
		ms, err := toUint32(v[0], "duration")
		if err != nil {
			return err
		}
		return c.motor.PwmRunFor(ctx, args[0], ms, v[1], v[2])

	case "pwmstart":
		if len(args) < 1 {
			return errors.New("usage: pwmstart <signal> <rpm> <rpm/s>")
		}
		v, err := floats(args[1:], "pwmstart <signal> <rpm> <rpm/s>", 2)
		if err != nil {
			return err
		}
		duty, err := c.motor.PwmRunStart(ctx, args[0], v[0], v[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "%s running at %g rpm, duty %d/%d\n", args[0], v[0], duty, c.driver.Range())
		return nil

	case "pwmstop":
		if len(args) < 1 {
			return errors.New("usage: pwmstop <signal> <rpm> <rpm/s>")
		}
		v, err := floats(args[1:], "pwmstop <signal> <rpm> <rpm/s>", 2)
		if err != nil {
			return err
		}
		return c.motor.PwmRunStop(ctx, args[0], v[0], v[1])

	case "events":
		if len(args) == 1 && args[0] == "clear" {
			c.events.Clear()
			return nil
		}
		c.printEvents()
		return nil

	case "reset":
		return c.driver.Reset()

	case "tmc":
		return c.syncChip()
	}

	return errors.Errorf("unknown command: %s (type 'help' for available commands)", cmd)
}

func (c *console) softRun(ctx context.Context, args []string) error {
	const usage = "softrun <signal> <ms> <rpm> <rpm/s>"
	if len(args) < 1 {
		return errors.New("usage: " + usage)
	}
	v, err := floats(args[1:], usage, 3)
	if err != nil {
		return err
	}
	ms, err := toUint32(v[0], "duration")
	if err != nil {
		return err
	}
	report, err := c.motor.RunFor(ctx, args[0], ms, v[1], v[2])
	c.printReport(report)
	return err
}

func (c *console) setParameter(name string, args []string) error {
	v, err := floats(args, name+" <value>")
	if err != nil {
		return err
	}
	d := c.driver
	switch name {
	case "clock":
		err = d.SetClockWidth(v[0])
	case "angle":
		err = c.motor.SetStepAngle(v[0])
	default:
		var n uint32
		if n, err = toUint32(v[0], name); err != nil {
			return err
		}
		switch name {
		case "stepmode":
			err = d.SetStepMode(n)
		case "pulse":
			err = d.SetPulseWidth(n)
		case "range":
			err = d.SetRange(n)
		}
	}
	if err != nil {
		return err
	}
	c.printInfo()
	return nil
}

// syncChip programs the TMC microstep resolution to the driver step mode
func (c *console) syncChip() error {
	if c.chip == nil {
		link, ok := c.cfg.TMCLink()
		if !ok {
			return errors.New("no tmc section in the configuration")
		}
		chip, err := tmc.Open(link)
		if err != nil {
			return err
		}
		c.chip = chip
	}
	if err := c.chip.SetMicrosteps(c.driver.StepMode()); err != nil {
		return err
	}
	n, err := c.chip.Microsteps()
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "tmc microsteps: %d\n", n)
	return c.chip.Error()
}

func (c *console) printHelp() {
	fmt.Fprintln(c.out, "\nAvailable commands:")
	fmt.Fprintln(c.out, "  info                                - Show driver and motor configuration")
	fmt.Fprintln(c.out, "  switch <signal>                     - Invert a signal")
	fmt.Fprintln(c.out, "  set <signal> <low|high>             - Drive a signal")
	fmt.Fprintln(c.out, "  get <signal>                        - Read a signal from the pin")
	fmt.Fprintln(c.out, "  stepmode|pulse|clock|range <value>  - Change driver timing")
	fmt.Fprintln(c.out, "  angle <degrees>                     - Change the motor step angle")
	fmt.Fprintln(c.out, "  ticks <degrees>                     - Convert an angle to ticks")
	fmt.Fprintln(c.out, "  softrun <signal> <ms> <rpm> <rpm/s> - Software pulses for a duration")
	fmt.Fprintln(c.out, "  softto <signal> <deg> <ramp> <rpm/s> - Software pulses over an angle")
	fmt.Fprintln(c.out, "  pwmrun <signal> <ms> <rpm> <rpm/s>  - Hardware PWM for a duration")
	fmt.Fprintln(c.out, "  pwmstart <signal> <rpm> <rpm/s>     - Ramp up and leave the PWM running")
	fmt.Fprintln(c.out, "  pwmstop <signal> <rpm> <rpm/s>      - Ramp a running PWM down")
	fmt.Fprintln(c.out, "  events [clear]                      - Show recent motion events")
	fmt.Fprintln(c.out, "  tmc                                 - Set TMC microsteps to the step mode")
	fmt.Fprintln(c.out, "  reset                               - Return every pin to its initial level")
	fmt.Fprintln(c.out, "  quit/exit/q                         - Exit the program")
	fmt.Fprintln(c.out)
}

func (c *console) printInfo() {
	d, m := c.driver, c.motor
	fmt.Fprintf(c.out, "Driver %q, motor %q\n", d.Name(), m.Name())
	states := d.States()
	for _, signal := range d.Wiring().Signals() {
		pin, _ := d.Pin(signal)
		fmt.Fprintf(c.out, "  %-10s pin %-3d %s\n", signal, pin, states[signal])
	}
	fmt.Fprintf(c.out, "  stepmode %d, pulse width %d us, step angle %g deg (%g deg/tick)\n",
		d.StepMode(), d.PulseWidth(), m.StepAngle(), m.TickAngle())
	fmt.Fprintf(c.out, "  clock width %g us (divider %d, period %.4f us), range %d, max time %.1f us\n",
		d.ClockWidth(), d.ClockDivider(), d.ClockPeriod(), d.Range(), d.ClockMaxTime())
	fmt.Fprintf(c.out, "  pwm rpm band [%.3f, %.3f]\n", m.ClockMinRpm(), m.ClockMaxRpm())
}

func (c *console) printSignal(signal string) error {
	level, err := c.driver.Signal(signal)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s is %s\n", signal, level)
	return nil
}

func (c *console) printReport(r core.RunReport) {
	fmt.Fprintf(c.out, "pulses: ramp-up %d, run %d, ramp-down %d (total %d), run period %.1f us\n",
		r.RampUp, r.Run, r.RampDown, r.Total(), r.RunPeriod)
}

func (c *console) printEvents() {
	for _, ev := range c.events.Events() {
		line := fmt.Sprintf("%-8s %-9s", ev.Kind, ev.Signal)
		if ev.Phase != "" {
			line += " " + ev.Phase
		}
		if ev.Rpm != 0 {
			line += fmt.Sprintf(" rpm=%g", ev.Rpm)
		}
		if ev.Message != "" {
			line += " " + ev.Message
		}
		if ev.Err != nil {
			line += ": " + ev.Err.Error()
		}
		fmt.Fprintln(c.out, line)
	}
}

// want checks the argument count of a command
func want(args []string, n int, usage string) error {
	if len(args) != n {
		return errors.New("usage: " + usage)
	}
	return nil
}

// floats parses exactly n (default 1) numeric arguments
func floats(args []string, usage string, n ...int) ([]float64, error) {
	count := 1
	if len(n) > 0 {
		count = n[0]
	}
	if err := want(args, count, usage); err != nil {
		return nil, err
	}
	v := make([]float64, count)
	for i, a := range args {
		f, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "argument %d", i+1)
		}
		v[i] = f
	}
	return v, nil
}

// toUint32 accepts whole numbers in [0, MaxUint32]
func toUint32(v float64, name string) (uint32, error) {
	if !(v >= 0 && v <= math.MaxUint32) || v != math.Trunc(v) {
		return 0, errors.Errorf("%s must be a whole number in [0, %d], got %g", name, uint32(math.MaxUint32), v)
	}
	return uint32(v), nil
}

func parseLevel(s string) (core.Level, error) {
	switch strings.ToLower(s) {
	case "0", "low", "l":
		return core.Low, nil
	case "1", "high", "h":
		return core.High, nil
	}
	return 0, errors.Errorf("invalid level %q", s)
}
