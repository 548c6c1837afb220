package core

// Pin identifies a hardware GPIO pin number in the board's numbering scheme
type Pin uint8

// Level is a digital logic level
type Level uint8

const (
	Low  Level = 0
	High Level = 1
)

// Opposite returns the anti-state of l
func (l Level) Opposite() Level {
	if l == Low {
		return High
	}
	return Low
}

func (l Level) String() string {
	if l == Low {
		return "LOW"
	}
	return "HIGH"
}

// PinMode is the electrical mode of a pin
type PinMode uint8

const (
	PinModeInput PinMode = iota
	PinModeOutput
	PinModePWM
)

func (m PinMode) String() string {
	switch m {
	case PinModeInput:
		return "input"
	case PinModeOutput:
		return "output"
	case PinModePWM:
		return "pwm"
	}
	return "unknown"
}

// GPIODriver is the abstract GPIO interface that core code uses.
// Platform-specific implementations handle actual hardware control.
type GPIODriver interface {
	// SetPinMode switches a pin between input, digital output and PWM output
	SetPinMode(pin Pin, mode PinMode) error

	// WriteDigital drives an output pin to the given level
	WriteDigital(pin Pin, level Level) error

	// ReadDigital reads the current pin level
	ReadDigital(pin Pin) (Level, error)
}

// Clock provides the blocking delays and the monotonic time base used by
// the motion engines.
type Clock interface {
	// DelayMicroseconds blocks for us microseconds
	DelayMicroseconds(us uint32)

	// DelayMilliseconds blocks for ms milliseconds
	DelayMilliseconds(ms uint32)

	// MonotonicMillis returns milliseconds elapsed since board initialization
	MonotonicMillis() uint64
}

// Board is the full capability set a motor driver needs from its host.
// Initialize must be called before any pin operation; calling it twice is a no-op.
type Board interface {
	GPIODriver
	PWMDriver
	Clock

	// Initialize establishes the pin-numbering scheme and maps the peripherals
	Initialize() error

	// RequestElevatedScheduling asks for realtime priority for the calling thread
	RequestElevatedScheduling(priority int) error
}
