// Package sim provides an in-memory board with a virtual microsecond clock.
// Delays advance the clock instantly, so motion profiles run in tests at
// full speed while every write is recorded with its virtual timestamp.
package sim

import (
	"fmt"
	"sync"

	"wipistepper/core"
)

// Op identifies a recorded board operation
type Op uint8

const (
	OpMode Op = iota + 1
	OpDigital
	OpDuty
)

func (o Op) String() string {
	switch o {
	case OpMode:
		return "mode"
	case OpDigital:
		return "digital"
	case OpDuty:
		return "duty"
	}
	return "unknown"
}

// Record is one logged pin write
type Record struct {
	At    uint64 // virtual time in us
	Op    Op
	Pin   core.Pin
	Mode  core.PinMode
	Level core.Level
	Duty  uint32
}

// NumPins is the number of pins the simulated board exposes
const NumPins = 64

type pinState struct {
	mode  core.PinMode
	level core.Level
	duty  uint32
}

// Board is a simulated core.Board
type Board struct {
	mu sync.Mutex

	initialized bool
	initCount   int
	priority    int
	schedErr    error

	now  uint64 // us
	pins [NumPins]pinState

	pwmRange   uint32
	pwmDivider uint32
	pwmMode    core.PWMMode

	log       []Record
	recording bool

	// FailOn, when set, is consulted before every pin write; a non-nil
	// result is returned instead of performing the write.
	FailOn func(r Record) error
}

// NewBoard creates a simulated board with recording enabled
func NewBoard() *Board {
	b := &Board{recording: true, priority: -1}
	for i := range b.pins {
		b.pins[i].mode = core.PinModeInput
	}
	return b
}

// Initialize is idempotent
func (b *Board) Initialize() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.initCount++
	b.initialized = true
	return nil
}

// InitCount returns how many times Initialize was called
func (b *Board) InitCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.initCount
}

// FailScheduling makes RequestElevatedScheduling return err
func (b *Board) FailScheduling(err error) {
	b.mu.Lock()
	b.schedErr = err
	b.mu.Unlock()
}

func (b *Board) RequestElevatedScheduling(priority int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.schedErr != nil {
		return b.schedErr
	}
	b.priority = priority
	return nil
}

// Priority returns the granted realtime priority, -1 if none
func (b *Board) Priority() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.priority
}

func (b *Board) check(pin core.Pin) error {
	if !b.initialized {
		return fmt.Errorf("sim: board not initialized")
	}
	if int(pin) >= NumPins {
		return fmt.Errorf("sim: invalid pin %d", pin)
	}
	return nil
}

// apply logs r after consulting FailOn; callers hold mu
func (b *Board) apply(r Record) error {
	if err := b.check(r.Pin); err != nil {
		return err
	}
	r.At = b.now
	if b.FailOn != nil {
		if err := b.FailOn(r); err != nil {
			return err
		}
	}
	if b.recording {
		b.log = append(b.log, r)
	}
	return nil
}

func (b *Board) SetPinMode(pin core.Pin, mode core.PinMode) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.apply(Record{Op: OpMode, Pin: pin, Mode: mode}); err != nil {
		return err
	}
	b.pins[pin].mode = mode
	if mode != core.PinModePWM {
		b.pins[pin].duty = 0
	}
	return nil
}

func (b *Board) WriteDigital(pin core.Pin, level core.Level) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.apply(Record{Op: OpDigital, Pin: pin, Level: level}); err != nil {
		return err
	}
	b.pins[pin].level = level
	return nil
}

func (b *Board) ReadDigital(pin core.Pin) (core.Level, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.check(pin); err != nil {
		return core.Low, err
	}
	return b.pins[pin].level, nil
}

func (b *Board) WritePwmDutyCycle(pin core.Pin, value uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.apply(Record{Op: OpDuty, Pin: pin, Duty: value}); err != nil {
		return err
	}
	b.pins[pin].duty = value
	return nil
}

func (b *Board) SetPwmRange(n uint32) error {
	b.mu.Lock()
	b.pwmRange = n
	b.mu.Unlock()
	return nil
}

func (b *Board) SetPwmClockDivider(divider uint32) error {
	b.mu.Lock()
	b.pwmDivider = divider
	b.mu.Unlock()
	return nil
}

func (b *Board) SetPwmMode(mode core.PWMMode) error {
	b.mu.Lock()
	b.pwmMode = mode
	b.mu.Unlock()
	return nil
}

func (b *Board) DelayMicroseconds(us uint32) {
	b.mu.Lock()
	b.now += uint64(us)
	b.mu.Unlock()
}

func (b *Board) DelayMilliseconds(ms uint32) {
	b.mu.Lock()
	b.now += uint64(ms) * 1000
	b.mu.Unlock()
}

func (b *Board) MonotonicMillis() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.now / 1000
}

// Now returns the virtual time in us
func (b *Board) Now() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.now
}

// Mode returns the current mode of pin
func (b *Board) Mode(pin core.Pin) core.PinMode {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pins[pin].mode
}

// Level returns the current level of pin
func (b *Board) Level(pin core.Pin) core.Level {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pins[pin].level
}

// Duty returns the current duty value of pin
func (b *Board) Duty(pin core.Pin) uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pins[pin].duty
}

// PWM returns the peripheral range, clock divider and mode
func (b *Board) PWM() (uint32, uint32, core.PWMMode) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pwmRange, b.pwmDivider, b.pwmMode
}

// SetRecording turns the write log on or off
func (b *Board) SetRecording(on bool) {
	b.mu.Lock()
	b.recording = on
	b.mu.Unlock()
}

// Records returns a copy of the write log
func (b *Board) Records() []Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Record(nil), b.log...)
}

// ClearRecords empties the write log
func (b *Board) ClearRecords() {
	b.mu.Lock()
	b.log = b.log[:0]
	b.mu.Unlock()
}

// Filter returns the logged records of op on pin
func (b *Board) Filter(op Op, pin core.Pin) []Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Record
	for _, r := range b.log {
		if r.Op == op && r.Pin == pin {
			out = append(out, r)
		}
	}
	return out
}

// DutyWrites returns the sequence of duty values written to pin
func (b *Board) DutyWrites(pin core.Pin) []uint32 {
	var out []uint32
	for _, r := range b.Filter(OpDuty, pin) {
		out = append(out, r.Duty)
	}
	return out
}

// Pulses counts the logged excursions of pin away from its idle level
func (b *Board) Pulses(pin core.Pin, idle core.Level) int {
	n := 0
	prev := idle
	for _, r := range b.Filter(OpDigital, pin) {
		if r.Level != idle && prev == idle {
			n++
		}
		prev = r.Level
	}
	return n
}
