//go:build !wasm

package tmc

import (
	"github.com/pkg/errors"

	"wipistepper/host/serial"
)

// Config locates a driver chip on a serial port
type Config struct {
	Device  string
	Baud    int
	Address uint8
	Echo    bool // TX and RX joined through a resistor on one wire
}

// Open opens the serial port and returns the chip at cfg.Address
func Open(cfg Config) (*Device, error) {
	scfg := serial.DefaultConfig(cfg.Device)
	if cfg.Baud > 0 {
		scfg.Baud = cfg.Baud
	} else {
		scfg.Baud = DefaultBaud
	}
	port, err := serial.Open(scfg)
	if err != nil {
		return nil, errors.Wrap(err, "tmc: open uart")
	}
	// drop anything the chip sent while the line was floating
	if err := port.Flush(); err != nil {
		port.Close()
		return nil, errors.Wrap(err, "tmc: flush uart")
	}

	d := NewDevice(NewUART(port, cfg.Echo), cfg.Address)
	d.closer = port
	return d, nil
}
