package core

// PWMMode selects how the PWM peripheral spreads the duty cycle over a period
type PWMMode uint8

const (
	// PWMModeBalanced spreads the "on" clocks evenly across the range, so a
	// duty value n yields n pulses per range period of the same width
	PWMModeBalanced PWMMode = iota

	// PWMModeMarkSpace emits one contiguous mark followed by a space
	PWMModeMarkSpace
)

func (m PWMMode) String() string {
	if m == PWMModeBalanced {
		return "balanced"
	}
	return "mark-space"
}

// PWMDriver is the abstract PWM interface that core code uses.
// The range, clock divider and mode are peripheral-wide: they apply to
// every pin currently in PinModePWM.
type PWMDriver interface {
	// WritePwmDutyCycle sets the duty value of a pin (0 to range)
	WritePwmDutyCycle(pin Pin, value uint32) error

	// SetPwmRange sets the number of clock cycles per PWM period
	SetPwmRange(n uint32) error

	// SetPwmClockDivider divides the board oscillator (ClockFreqMHz) to produce the PWM clock
	SetPwmClockDivider(divider uint32) error

	// SetPwmMode selects balanced or mark-space output
	SetPwmMode(mode PWMMode) error
}
