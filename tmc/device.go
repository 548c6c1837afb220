// Package tmc configures TMC2208/TMC2209 stepper drivers over their
// single-wire UART, so the chip's microstepping matches the step mode the
// motion engines compute with.
package tmc

import (
	"encoding/binary"
	"io"
	"math/bits"

	"github.com/pkg/errors"
)

// Registers
const (
	GCONF    = 0x00
	GSTAT    = 0x01
	IFCNT    = 0x02
	IOIN     = 0x06
	CHOPCONF = 0x6c

	// GCONF settings
	pdnDisable     = 0b1 << 6
	mstepRegSelect = 0b1 << 7

	// CHOPCONF settings
	mresShift = 24
	mresMask  = 0b1111 << mresShift

	// attempts is the number of attempts for a read or a write before giving up
	attempts = 2
)

// DefaultBaud is a rate the chips' automatic baud detection locks onto reliably
const DefaultBaud = 115200

// MaxMicrosteps is the finest microstep resolution of the chip
const MaxMicrosteps = 256

// ErrInvalidMicrosteps is returned for a resolution that is not a power of two up to 256
var ErrInvalidMicrosteps = errors.New("tmc: microsteps must be a power of two in [1, 256]")

// Device is one driver chip on a UART bus
type Device struct {
	Bus  io.ReadWriter
	Addr uint8

	closer  io.Closer
	scratch [7]byte
}

// NewDevice addresses the chip at addr (0-3, set by MS1/MS2) on bus
func NewDevice(bus io.ReadWriter, addr uint8) *Device {
	return &Device{Bus: bus, Addr: addr}
}

// Close releases the underlying port when the device owns it
func (d *Device) Close() error {
	if d.closer == nil {
		return nil
	}
	return d.closer.Close()
}

// ValidMicrosteps reports whether n is a supported resolution
func ValidMicrosteps(n uint32) bool {
	return n >= 1 && n <= MaxMicrosteps && bits.OnesCount32(n) == 1
}

// mres encodes a microstep resolution: 0 is 256 microsteps, 8 is full step
func mres(n uint32) uint32 {
	return 8 - uint32(bits.TrailingZeros32(n))
}

// SetMicrosteps selects the microstep resolution through CHOPCONF.MRES and
// hands resolution control from the MS pins to the register.
func (d *Device) SetMicrosteps(n uint32) error {
	if !ValidMicrosteps(n) {
		return errors.Wrapf(ErrInvalidMicrosteps, "%d", n)
	}

	gconf, err := d.read(GCONF)
	if err != nil {
		return errors.Wrap(err, "tmc: read GCONF")
	}
	gconf |= pdnDisable | mstepRegSelect
	if err := d.write(GCONF, gconf); err != nil {
		return errors.Wrap(err, "tmc: set GCONF")
	}

	chopconf, err := d.read(CHOPCONF)
	if err != nil {
		return errors.Wrap(err, "tmc: read CHOPCONF")
	}
	chopconf &^= mresMask
	chopconf |= mres(n) << mresShift
	if err := d.write(CHOPCONF, chopconf); err != nil {
		return errors.Wrap(err, "tmc: set CHOPCONF")
	}
	return nil
}

// Microsteps reads the current microstep resolution back from CHOPCONF
func (d *Device) Microsteps() (uint32, error) {
	chopconf, err := d.read(CHOPCONF)
	if err != nil {
		return 0, errors.Wrap(err, "tmc: read CHOPCONF")
	}
	m := (chopconf & mresMask) >> mresShift
	if m > 8 {
		m = 8
	}
	return MaxMicrosteps >> m, nil
}

// Error reads GSTAT and reports a reset, driver error or undervoltage flag
func (d *Device) Error() error {
	stat, err := d.read(GSTAT)
	if err != nil {
		return err
	}
	if stat&0b111 != 0 {
		return errors.Errorf("tmc: error status: %.3b", stat&0b111)
	}
	return nil
}

func (d *Device) read(reg byte) (uint32, error) {
	wr, rx := d.scratch[:2], d.scratch[2:7]
	wr[0] = d.Addr
	wr[1] = reg
	var lerr error
	for range attempts {
		if _, err := d.Bus.Write(wr); err != nil {
			lerr = errors.Wrap(err, "write")
			continue
		}
		if _, err := d.Bus.Read(rx); err != nil {
			lerr = errors.Wrap(err, "read")
			continue
		}
		if rx[0] != reg {
			lerr = errors.New("read: unexpected receive address")
			continue
		}
		return binary.BigEndian.Uint32(rx[1:]), nil
	}
	return 0, lerr
}

// write sets a register and confirms it through the interface transmission counter
func (d *Device) write(reg byte, val uint32) error {
	ifcnt, err := d.read(IFCNT)
	if err != nil {
		return err
	}
	var wr [6]byte
	writeDatagram(wr[:], d.Addr, reg, val)
	var lerr error
	for range attempts {
		if _, err := d.Bus.Write(wr[:]); err != nil {
			lerr = err
			continue
		}
		ifcnt2, err := d.read(IFCNT)
		if err != nil {
			lerr = err
			continue
		}
		if uint8(ifcnt2)-uint8(ifcnt) != 1 {
			ifcnt = ifcnt2
			lerr = errors.New("write count not updated")
			continue
		}
		return nil
	}
	return lerr
}

func writeDatagram(b []byte, node, reg uint8, val uint32) {
	const write = 0x80
	b[0] = node
	b[1] = reg | write
	binary.BigEndian.PutUint32(b[2:], val)
}
