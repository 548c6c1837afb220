// Package serial opens the UART that links the host to a driver chip's
// single-wire configuration interface.
package serial

import (
	"io"
)

// Port is an open UART. Reads return after the configured timeout so a
// silent chip cannot stall the caller.
type Port interface {
	io.ReadWriteCloser

	// Flush discards buffered input and output
	Flush() error
}

// Config selects the UART device and its timing
type Config struct {
	Device string // e.g. /dev/ttyAMA0 or /dev/ttyUSB0
	Baud   int

	// ReadTimeout in milliseconds; 0 blocks
	ReadTimeout int
}

// DefaultConfig returns 115200 baud with a 50 ms read timeout, short enough
// to retry a lost reply within one console command.
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        115200,
		ReadTimeout: 50,
	}
}
