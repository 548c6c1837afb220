//go:build rp2040 || rp2350

// Package rp2 implements core.Board on RP2040/RP2350 microcontrollers.
// Digital pins go through machine.Pin. The balanced PWM mode of the
// Raspberry Pi, where duty/range pulses are spread evenly over each range
// period, is reproduced by a PIO state machine emitting a square wave at
// duty/(range*clock period) Hz.
package rp2

import (
	"errors"
	"fmt"
	"machine"
	"time"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"

	"wipistepper/core"
)

// maxPin is the highest GPIO of the RP2350B package; the RP2040 stops at 29
const maxPin = 47

// ErrMarkSpace is returned when mark-space PWM is requested
var ErrMarkSpace = errors.New("rp2: only balanced pwm mode is supported")

// Board drives the GPIO of an RP2 microcontroller
type Board struct {
	pio   *rp2pio.PIO
	open  bool
	start time.Time

	modes  map[core.Pin]core.PinMode
	trains map[core.Pin]*pulseTrain

	pwmRange   uint32
	pwmDivider uint32
}

// NewBoard creates a board whose PWM outputs run on PIO block pioNum (0 or 1)
func NewBoard(pioNum uint8) *Board {
	p := rp2pio.PIO0
	if pioNum != 0 {
		p = rp2pio.PIO1
	}
	return &Board{
		pio:        p,
		modes:      make(map[core.Pin]core.PinMode),
		trains:     make(map[core.Pin]*pulseTrain),
		pwmRange:   core.DefaultRange,
		pwmDivider: 1,
	}
}

// Initialize starts the millisecond clock. Calling it again is a no-op.
func (b *Board) Initialize() error {
	if b.open {
		return nil
	}
	b.open = true
	b.start = time.Now()
	return nil
}

// RequestElevatedScheduling has nothing to raise on a single core scheduler
func (b *Board) RequestElevatedScheduling(int) error {
	return nil
}

func (b *Board) check(pin core.Pin) error {
	if !b.open {
		return errors.New("rp2: board not initialized")
	}
	if pin > maxPin {
		return fmt.Errorf("rp2: invalid pin %d", pin)
	}
	return nil
}

// SetPinMode configures pin. Leaving PWM mode stops its state machine.
func (b *Board) SetPinMode(pin core.Pin, mode core.PinMode) error {
	if err := b.check(pin); err != nil {
		return err
	}
	mp := machine.Pin(pin)

	if mode != core.PinModePWM {
		if t, ok := b.trains[pin]; ok {
			t.release()
			delete(b.trains, pin)
		}
	}

	switch mode {
	case core.PinModeInput:
		mp.Configure(machine.PinConfig{Mode: machine.PinInput})
	case core.PinModeOutput:
		mp.Configure(machine.PinConfig{Mode: machine.PinOutput})
	case core.PinModePWM:
		if _, ok := b.trains[pin]; !ok {
			t, err := newPulseTrain(b.pio, mp)
			if err != nil {
				return err
			}
			b.trains[pin] = t
		}
	default:
		return fmt.Errorf("rp2: unknown pin mode %d", mode)
	}
	b.modes[pin] = mode
	return nil
}

// WriteDigital drives pin
func (b *Board) WriteDigital(pin core.Pin, level core.Level) error {
	if err := b.check(pin); err != nil {
		return err
	}
	machine.Pin(pin).Set(level == core.High)
	return nil
}

// ReadDigital samples pin
func (b *Board) ReadDigital(pin core.Pin) (core.Level, error) {
	if err := b.check(pin); err != nil {
		return core.Low, err
	}
	if machine.Pin(pin).Get() {
		return core.High, nil
	}
	return core.Low, nil
}

// WritePwmDutyCycle retunes the square wave on pin; a zero duty holds it LOW
func (b *Board) WritePwmDutyCycle(pin core.Pin, value uint32) error {
	if err := b.check(pin); err != nil {
		return err
	}
	t, ok := b.trains[pin]
	if !ok {
		return fmt.Errorf("rp2: pin %d is not in pwm mode", pin)
	}
	if value == 0 {
		t.stop()
		return nil
	}
	if value > b.pwmRange {
		value = b.pwmRange
	}
	// one pulse every range/duty clock periods
	clockNs := float64(b.pwmDivider) * 1e3 / core.ClockFreqMHz
	periodNs := clockNs * float64(b.pwmRange) / float64(value)
	t.run(periodNs)
	return nil
}

// SetPwmRange sets the number of duty steps per period
func (b *Board) SetPwmRange(n uint32) error {
	if n < 2 {
		return fmt.Errorf("rp2: invalid pwm range %d", n)
	}
	b.pwmRange = n
	return nil
}

// SetPwmClockDivider sets the divider of the emulated 19.2 MHz pwm clock
func (b *Board) SetPwmClockDivider(divider uint32) error {
	if divider < 1 {
		return fmt.Errorf("rp2: invalid pwm clock divider %d", divider)
	}
	b.pwmDivider = divider
	return nil
}

// SetPwmMode accepts the balanced mode only
func (b *Board) SetPwmMode(mode core.PWMMode) error {
	if mode != core.PWMModeBalanced {
		return ErrMarkSpace
	}
	return nil
}

// DelayMicroseconds busy-waits on the system timer
func (b *Board) DelayMicroseconds(us uint32) {
	deadline := time.Now().Add(time.Duration(us) * time.Microsecond)
	for time.Now().Before(deadline) {
	}
}

// DelayMilliseconds sleeps
func (b *Board) DelayMilliseconds(ms uint32) {
	time.Sleep(time.Duration(ms) * time.Millisecond)
}

// MonotonicMillis returns milliseconds since Initialize
func (b *Board) MonotonicMillis() uint64 {
	return uint64(time.Since(b.start) / time.Millisecond)
}
