//go:build linux

// Package rpi implements core.Board on a Raspberry Pi through memory-mapped
// GPIO and PWM registers.
package rpi

import (
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/stianeikeland/go-rpio/v4"
	"golang.org/x/sys/unix"

	"wipistepper/core"
)

// spinThreshold is the delay below which DelayMicroseconds busy-waits
// instead of sleeping; the tail of longer delays is spun as well.
const spinThreshold = 100 * time.Microsecond

// Board drives the GPIO header of a Raspberry Pi
type Board struct {
	mu sync.Mutex

	numbering Numbering
	open      bool
	start     time.Time

	pwmRange   uint32
	pwmDivider uint32
	pwmMode    core.PWMMode
	pwmPins    map[uint8]bool
}

// NewBoard creates an unopened board; Initialize maps the registers
func NewBoard(numbering Numbering) *Board {
	return &Board{
		numbering:  numbering,
		pwmRange:   core.DefaultRange,
		pwmDivider: 1,
		pwmPins:    make(map[uint8]bool),
	}
}

// Initialize maps /dev/gpiomem. Calling it again is a no-op.
func (b *Board) Initialize() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.open {
		return nil
	}
	if err := rpio.Open(); err != nil {
		return fmt.Errorf("failed to open gpio: %w", err)
	}
	b.open = true
	b.start = time.Now()
	return nil
}

// Close stops every PWM pin and unmaps the registers
func (b *Board) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return nil
	}
	for line := range b.pwmPins {
		rpio.Pin(line).Output()
	}
	b.pwmPins = make(map[uint8]bool)
	b.open = false
	return rpio.Close()
}

// RequestElevatedScheduling switches the calling thread to SCHED_FIFO.
// The calling goroutine stays locked to that thread.
func (b *Board) RequestElevatedScheduling(priority int) error {
	runtime.LockOSThread()
	attr := &unix.SchedAttr{
		Policy:   unix.SCHED_FIFO,
		Priority: uint32(priority),
	}
	if err := unix.SchedSetAttr(0, attr, 0); err != nil {
		runtime.UnlockOSThread()
		return fmt.Errorf("sched_setattr SCHED_FIFO %d: %w", priority, err)
	}
	return nil
}

func (b *Board) line(pin core.Pin) (rpio.Pin, uint8, error) {
	if !b.open {
		return 0, 0, fmt.Errorf("gpio not initialized")
	}
	line, err := b.numbering.BCM(pin)
	if err != nil {
		return 0, 0, err
	}
	return rpio.Pin(line), line, nil
}

func (b *Board) SetPinMode(pin core.Pin, mode core.PinMode) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, line, err := b.line(pin)
	if err != nil {
		return err
	}

	switch mode {
	case core.PinModeInput:
		delete(b.pwmPins, line)
		p.Input()
	case core.PinModeOutput:
		delete(b.pwmPins, line)
		p.Output()
	case core.PinModePWM:
		if !pwmCapable[line] {
			return fmt.Errorf("bcm %d has no hardware pwm", line)
		}
		p.Pwm()
		b.pwmPins[line] = true
		b.applyFreq(p)
	default:
		return fmt.Errorf("unsupported pin mode %v", mode)
	}
	return nil
}

func (b *Board) WriteDigital(pin core.Pin, level core.Level) error {
	p, _, err := b.line(pin)
	if err != nil {
		return err
	}
	if level == core.High {
		p.Write(rpio.High)
	} else {
		p.Write(rpio.Low)
	}
	return nil
}

func (b *Board) ReadDigital(pin core.Pin) (core.Level, error) {
	p, _, err := b.line(pin)
	if err != nil {
		return core.Low, err
	}
	if p.Read() == rpio.High {
		return core.High, nil
	}
	return core.Low, nil
}

func (b *Board) WritePwmDutyCycle(pin core.Pin, value uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, line, err := b.line(pin)
	if err != nil {
		return err
	}
	if !b.pwmPins[line] {
		return fmt.Errorf("bcm %d is not in pwm mode", line)
	}
	rpio.SetDutyCycleWithPwmMode(p, value, b.pwmRange, b.pwmMode == core.PWMModeBalanced)
	return nil
}

func (b *Board) SetPwmRange(n uint32) error {
	b.mu.Lock()
	b.pwmRange = n
	b.mu.Unlock()
	return nil
}

// SetPwmClockDivider programs the PWM clock of every pin in PWM mode; it is
// also applied to pins entering PWM mode later.
func (b *Board) SetPwmClockDivider(divider uint32) error {
	if divider < 1 || divider > 4095 {
		return fmt.Errorf("pwm clock divider %d out of [1, 4095]", divider)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pwmDivider = divider
	for line := range b.pwmPins {
		b.applyFreq(rpio.Pin(line))
	}
	return nil
}

// applyFreq sets the PWM clock; callers hold mu
func (b *Board) applyFreq(p rpio.Pin) {
	freq := math.Round(core.ClockFreqMHz * 1e6 / float64(b.pwmDivider))
	rpio.SetFreq(p, int(freq))
}

func (b *Board) SetPwmMode(mode core.PWMMode) error {
	b.mu.Lock()
	b.pwmMode = mode
	b.mu.Unlock()
	return nil
}

// DelayMicroseconds sleeps for the bulk of long delays and spins the rest
func (b *Board) DelayMicroseconds(us uint32) {
	d := time.Duration(us) * time.Microsecond
	deadline := time.Now().Add(d)
	if d > spinThreshold {
		time.Sleep(d - spinThreshold)
	}
	for time.Now().Before(deadline) {
	}
}

func (b *Board) DelayMilliseconds(ms uint32) {
	time.Sleep(time.Duration(ms) * time.Millisecond)
}

func (b *Board) MonotonicMillis() uint64 {
	return uint64(time.Since(b.start) / time.Millisecond)
}
