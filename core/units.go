package core

// Board and unit constants
const (
	// ClockFreqMHz is the fixed oscillator feeding the PWM clock divider
	ClockFreqMHz = 19.2

	// UsInfinity is the pulse period treated as "stopped" (1 s per tick)
	UsInfinity = 1e6

	// DefaultPriority is the realtime priority requested at driver construction
	DefaultPriority = 99

	// DefaultStepAngle is the full-step angle of a common 200 step/rev motor
	DefaultStepAngle = 1.8

	usPerMinute = 60e6

	// degPerRpmPerUs converts rpm to degrees per microsecond
	degPerRpmPerUs = 360 / usPerMinute

	// revPerUs2PerRpmPerSec converts rpm/s to rev/us^2
	revPerUs2PerRpmPerSec = 1e-13 / 6
)

// Driver defaults
const (
	DefaultStepMode   = 1
	DefaultPulseWidth = 60   // us
	DefaultClockWidth = 8.0  // us
	DefaultRange      = 4096 // duty steps
)

// Default signal names
const (
	SignalEnable    = "enable"
	SignalClock     = "clock"
	SignalDirection = "direction"
)
