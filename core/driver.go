package core

import (
	"math"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// DriverConfig describes how a step/direction driver chip is wired to the board
// and how its pulses are timed.
type DriverConfig struct {
	Name   string
	Wiring Wiring
	States States // initial levels; missing signals start LOW

	StepMode   uint32  // microstepping factor, 1 = full step
	PulseWidth uint32  // software pulse width in us
	ClockWidth float64 // hardware PWM clock width in us
	Range      uint32  // PWM duty steps per period
}

// DefaultDriverConfig returns the default configuration with freshly allocated maps
func DefaultDriverConfig() DriverConfig {
	return DriverConfig{
		Wiring:     DefaultWiring(),
		States:     DefaultStates(),
		StepMode:   DefaultStepMode,
		PulseWidth: DefaultPulseWidth,
		ClockWidth: DefaultClockWidth,
		Range:      DefaultRange,
	}
}

// Option customizes a Driver at construction
type Option func(*Driver)

// WithLogger sets the logger used for driver and motion events
func WithLogger(log logrus.FieldLogger) Option {
	return func(d *Driver) { d.log = log }
}

// WithObserver adds an event observer
func WithObserver(o Observer) Option {
	return func(d *Driver) { d.observers = append(d.observers, o) }
}

// WithPriority overrides the realtime priority requested at construction.
// A negative priority skips the request.
func WithPriority(priority int) Option {
	return func(d *Driver) { d.priority = priority }
}

// Driver owns the pins of one driver chip: their modes, their recorded
// levels and the PWM clock configuration.
type Driver struct {
	board     Board
	log       logrus.FieldLogger
	observers []Observer
	priority  int

	name    string
	wiring  Wiring
	initial States
	states  States

	stepMode   uint32
	pulseWidth uint32

	// pwmMu serializes reconfiguration of the PWM peripheral, which is
	// shared by every PWM pin of the board
	pwmMu        sync.Mutex
	clockWidth   float64
	clockDivider uint32
	clockShift   float64
	pwmRange     uint32
}

// NewDriver initializes board, requests realtime scheduling, drives every
// wired pin to its initial level and programs the PWM clock.
func NewDriver(board Board, cfg DriverConfig, opts ...Option) (*Driver, error) {
	if cfg.StepMode == 0 {
		return nil, errors.Wrapf(ErrInvalidStepMode, "%d", cfg.StepMode)
	}
	if cfg.PulseWidth == 0 {
		return nil, errors.Wrapf(ErrInvalidPulseWidth, "%d us", cfg.PulseWidth)
	}
	initial, err := statesFor(cfg.Wiring, cfg.States)
	if err != nil {
		return nil, err
	}

	d := &Driver{
		board:      board,
		log:        logrus.StandardLogger(),
		priority:   DefaultPriority,
		name:       cfg.Name,
		wiring:     cfg.Wiring.Clone(),
		initial:    initial,
		states:     initial.Clone(),
		stepMode:   cfg.StepMode,
		pulseWidth: cfg.PulseWidth,
	}
	for _, opt := range opts {
		opt(d)
	}

	if err := board.Initialize(); err != nil {
		return nil, errors.Wrap(err, "initialize board")
	}
	if d.priority >= 0 {
		if err := board.RequestElevatedScheduling(d.priority); err != nil {
			d.log.WithError(err).WithField("priority", d.priority).Warn("setting priority failed")
		}
	}

	for _, signal := range d.wiring.Signals() {
		pin := d.wiring[signal]
		if err := board.SetPinMode(pin, PinModeOutput); err != nil {
			return nil, errors.Wrapf(err, "configure %s (pin %d)", signal, pin)
		}
		if err := board.WriteDigital(pin, d.states[signal]); err != nil {
			return nil, errors.Wrapf(err, "write %s (pin %d)", signal, pin)
		}
	}

	if err := d.SetClockWidth(cfg.ClockWidth); err != nil {
		return nil, err
	}
	if err := d.SetRange(cfg.Range); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Driver) emit(ev Event) {
	logEvent(d.log, ev)
	for _, o := range d.observers {
		o.OnEvent(ev)
	}
}

// Name returns the driver chip name
func (d *Driver) Name() string { return d.name }

// SetName renames the driver
func (d *Driver) SetName(name string) { d.name = name }

// Board returns the board the driver runs on
func (d *Driver) Board() Board { return d.board }

// Logger returns the driver's logger
func (d *Driver) Logger() logrus.FieldLogger { return d.log }

// Wiring returns a copy of the wiring map
func (d *Driver) Wiring() Wiring { return d.wiring.Clone() }

// SetWiring replaces the wiring map wholesale. Signals that survive keep
// their recorded and initial levels; new signals start LOW. Every pin of
// the new map is configured as an output at its level.
func (d *Driver) SetWiring(w Wiring) error {
	states, err := statesFor(w, nil)
	if err != nil {
		return err
	}
	initial := states.Clone()
	for signal := range w {
		if level, ok := d.states[signal]; ok {
			states[signal] = level
		}
		if level, ok := d.initial[signal]; ok {
			initial[signal] = level
		}
	}

	var errs error
	for _, signal := range w.Signals() {
		pin := w[signal]
		errs = multierr.Append(errs, d.board.SetPinMode(pin, PinModeOutput))
		errs = multierr.Append(errs, d.board.WriteDigital(pin, states[signal]))
	}
	d.wiring = w.Clone()
	d.states = states
	d.initial = initial
	return errs
}

// Pin returns the pin wired to signal
func (d *Driver) Pin(signal string) (Pin, error) {
	return d.wiring.Pin(signal)
}

// SetInitialStates replaces the levels Reset restores
func (d *Driver) SetInitialStates(s States) error {
	initial, err := statesFor(d.wiring, s)
	if err != nil {
		return err
	}
	d.initial = initial
	return nil
}

// InitialStates returns a copy of the levels Reset restores
func (d *Driver) InitialStates() States { return d.initial.Clone() }

// States returns a copy of the recorded signal levels
func (d *Driver) States() States { return d.states.Clone() }

// SetPinState drives pin to level. Signals wired to pin have their
// recorded level updated.
func (d *Driver) SetPinState(pin Pin, level Level) error {
	if err := d.board.WriteDigital(pin, level); err != nil {
		return err
	}
	for signal, p := range d.wiring {
		if p == pin {
			d.states[signal] = level
		}
	}
	return nil
}

// PinState reads pin from the board
func (d *Driver) PinState(pin Pin) (Level, error) {
	return d.board.ReadDigital(pin)
}

// SetSignal drives signal to level and records it
func (d *Driver) SetSignal(signal string, level Level) error {
	pin, err := d.Pin(signal)
	if err != nil {
		return err
	}
	if err := d.board.WriteDigital(pin, level); err != nil {
		return err
	}
	d.states[signal] = level
	return nil
}

// Signal returns the recorded level of signal
func (d *Driver) Signal(signal string) (Level, error) {
	if _, err := d.Pin(signal); err != nil {
		return Low, err
	}
	return d.states[signal], nil
}

// ReadSignal reads the level of signal's pin from the board
func (d *Driver) ReadSignal(signal string) (Level, error) {
	pin, err := d.Pin(signal)
	if err != nil {
		return Low, err
	}
	return d.board.ReadDigital(pin)
}

// Switch toggles signal to the opposite of its recorded level
func (d *Driver) Switch(signal string) error {
	level, err := d.Signal(signal)
	if err != nil {
		return err
	}
	return d.SetSignal(signal, level.Opposite())
}

// ConfigurePin sets the electrical mode of pin. Entering PWM mode first
// switches the whole PWM peripheral to balanced mode.
func (d *Driver) ConfigurePin(pin Pin, mode PinMode) error {
	if mode != PinModePWM {
		return d.board.SetPinMode(pin, mode)
	}

	d.pwmMu.Lock()
	defer d.pwmMu.Unlock()
	if err := d.board.SetPwmMode(PWMModeBalanced); err != nil {
		return err
	}
	return d.board.SetPinMode(pin, PinModePWM)
}

// ConfigureSignal sets the electrical mode of signal's pin
func (d *Driver) ConfigureSignal(signal string, mode PinMode) error {
	pin, err := d.Pin(signal)
	if err != nil {
		return err
	}
	return d.ConfigurePin(pin, mode)
}

// WriteDuty writes a PWM duty value to signal's pin; the pin must be in PWM mode
func (d *Driver) WriteDuty(signal string, value uint32) error {
	pin, err := d.Pin(signal)
	if err != nil {
		return err
	}
	return d.board.WritePwmDutyCycle(pin, value)
}

// StepMode returns the microstepping factor
func (d *Driver) StepMode() uint32 { return d.stepMode }

// SetStepMode changes the microstepping factor. It only affects the
// kinematics; the chip itself is configured by its mode pins or over UART.
func (d *Driver) SetStepMode(n uint32) error {
	if n == 0 {
		return errors.Wrapf(ErrInvalidStepMode, "%d", n)
	}
	d.stepMode = n
	return nil
}

// PulseWidth returns the software pulse width in us
func (d *Driver) PulseWidth() uint32 { return d.pulseWidth }

// SetPulseWidth changes the software pulse width
func (d *Driver) SetPulseWidth(us uint32) error {
	if us == 0 {
		return errors.Wrapf(ErrInvalidPulseWidth, "%d us", us)
	}
	d.pulseWidth = us
	return nil
}

// SetClockWidth programs the PWM clock divider closest to a clock period
// of us microseconds. The rounding residual is kept as the clock shift.
func (d *Driver) SetClockWidth(us float64) error {
	divider := math.Round(us * ClockFreqMHz)
	if !(divider >= 1) || divider > math.MaxUint32 {
		return errors.Wrapf(ErrInvalidClockWidth, "%g us", us)
	}

	d.pwmMu.Lock()
	defer d.pwmMu.Unlock()
	if err := d.board.SetPwmClockDivider(uint32(divider)); err != nil {
		return err
	}
	d.clockWidth = us
	d.clockDivider = uint32(divider)
	d.clockShift = divider/ClockFreqMHz - us
	return nil
}

// SetClockDivider programs the PWM clock divider directly
func (d *Driver) SetClockDivider(divider uint32) error {
	if divider < 1 {
		return errors.Wrapf(ErrInvalidClockWidth, "divider %d", divider)
	}

	d.pwmMu.Lock()
	defer d.pwmMu.Unlock()
	if err := d.board.SetPwmClockDivider(divider); err != nil {
		return err
	}
	d.clockDivider = divider
	d.clockWidth = float64(divider) / ClockFreqMHz
	d.clockShift = 0
	return nil
}

// SetRange programs the number of duty steps per PWM period
func (d *Driver) SetRange(n uint32) error {
	if n < 2 {
		return errors.Wrapf(ErrInvalidRange, "%d", n)
	}

	d.pwmMu.Lock()
	defer d.pwmMu.Unlock()
	if err := d.board.SetPwmRange(n); err != nil {
		return err
	}
	d.pwmRange = n
	return nil
}

// SetClockMaxTime sets the range so that duty value 1 corresponds to one
// tick every us microseconds.
func (d *Driver) SetClockMaxTime(us float64) error {
	n := math.Round(us / d.ClockPeriod())
	if !(n >= 2) || n > math.MaxUint32 {
		return errors.Wrapf(ErrInvalidRange, "max time %g us gives range %g", us, n)
	}
	return d.SetRange(uint32(n))
}

// applyClock reprograms the clock divider and range; some boards only
// latch them while a pin is in PWM mode.
func (d *Driver) applyClock() error {
	d.pwmMu.Lock()
	defer d.pwmMu.Unlock()
	return multierr.Combine(
		d.board.SetPwmClockDivider(d.clockDivider),
		d.board.SetPwmRange(d.pwmRange),
	)
}

// ClockWidth returns the requested clock width in us
func (d *Driver) ClockWidth() float64 { return d.clockWidth }

// ClockDivider returns the programmed clock divider
func (d *Driver) ClockDivider() uint32 { return d.clockDivider }

// ClockShift returns the actual minus the requested clock width in us
func (d *Driver) ClockShift() float64 { return d.clockShift }

// ClockPeriod returns the actual PWM clock period in us, as produced by the divider
func (d *Driver) ClockPeriod() float64 { return float64(d.clockDivider) / ClockFreqMHz }

// Range returns the number of duty steps per PWM period
func (d *Driver) Range() uint32 { return d.pwmRange }

// ClockMaxTime returns the longest tick period the PWM can represent (duty value 1)
func (d *Driver) ClockMaxTime() float64 { return d.ClockPeriod() * float64(d.pwmRange) }

// Reset returns every wired pin to output mode at its initial level
func (d *Driver) Reset() error {
	var errs error
	for _, signal := range d.wiring.Signals() {
		pin := d.wiring[signal]
		if err := d.board.SetPinMode(pin, PinModeOutput); err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "reset %s", signal))
			continue
		}
		if err := d.board.WriteDigital(pin, d.initial[signal]); err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "reset %s", signal))
			continue
		}
		d.states[signal] = d.initial[signal]
	}
	return errs
}
