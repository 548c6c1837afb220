package core

import "github.com/pkg/errors"

var (
	// ErrUnknownSignal is returned when a signal name is absent from the wiring map
	ErrUnknownSignal = errors.New("unknown signal")

	// ErrInvalidClockWidth is returned when a clock width rounds to a divider below 1
	ErrInvalidClockWidth = errors.New("invalid clock width")

	// ErrInvalidRange is returned for a PWM range below 2
	ErrInvalidRange = errors.New("invalid pwm range")

	// ErrRpmOutOfRange is returned when a PWM run targets a speed the clock cannot represent
	ErrRpmOutOfRange = errors.New("rpm out of pwm range")

	ErrInvalidAcceleration = errors.New("invalid acceleration")
	ErrInvalidStepMode     = errors.New("invalid step mode")
	ErrInvalidPulseWidth   = errors.New("invalid pulse width")
	ErrInvalidStepAngle    = errors.New("invalid step angle")
	ErrInvalidPeriod       = errors.New("invalid pulse period")
)
