package tmc

import (
	"bytes"
	"io"

	"github.com/pkg/errors"
)

const (
	syncNibble = 0b0101
	// masterAddr is the node address of every reply datagram
	masterAddr = 0xff

	// maxIdleReads bounds consecutive empty reads from a port with a read timeout
	maxIdleReads = 3
)

// ErrTimeout is returned when the driver does not answer a read request
var ErrTimeout = errors.New("tmc: receive timeout")

// UART frames register datagrams for the single-wire UART of the
// TMC2208/TMC2209: a sync byte in front and a CRC-8 at the end.
type UART struct {
	Port io.ReadWriter

	// Echo is set when TX and RX share one wire, so every transmitted byte
	// is read back before the reply.
	Echo bool

	scratch [8]byte
	echo    [8]byte
}

// NewUART wraps port
func NewUART(port io.ReadWriter, echo bool) *UART {
	return &UART{Port: port, Echo: echo}
}

// Write sends tx (node address, register and payload) as one datagram
func (u *UART) Write(tx []byte) (int, error) {
	n := len(tx) + 2
	if n > len(u.scratch) {
		return 0, errors.Errorf("tmc: datagram too large (%d bytes)", len(tx))
	}
	buf := u.scratch[:n]
	buf[0] = syncNibble
	copy(buf[1:], tx)
	buf[n-1] = crc8(buf[:n-1])

	if _, err := u.Port.Write(buf); err != nil {
		return 0, errors.Wrap(err, "tmc: write")
	}
	if u.Echo {
		echo := u.echo[:n]
		if err := readFull(u.Port, echo); err != nil {
			return 0, errors.Wrap(err, "tmc: read echo")
		}
		if !bytes.Equal(echo, buf) {
			return 0, errors.New("tmc: echo mismatch")
		}
	}
	return len(tx), nil
}

// Read receives a reply datagram and copies its register and payload into rx
func (u *UART) Read(rx []byte) (int, error) {
	n := len(rx) + 3
	if n > len(u.scratch) {
		return 0, errors.Errorf("tmc: datagram too large (%d bytes)", len(rx))
	}
	buf := u.scratch[:n]
	if err := readFull(u.Port, buf); err != nil {
		return 0, err
	}
	if crc8(buf[:n-1]) != buf[n-1] {
		return 0, errors.New("tmc: invalid CRC for receive datagram")
	}
	if buf[0]&0b1111 != syncNibble {
		return 0, errors.New("tmc: invalid sync nibble")
	}
	if buf[1] != masterAddr {
		return 0, errors.New("tmc: invalid node address")
	}
	return copy(rx, buf[2:n-1]), nil
}

// readFull is io.ReadFull that gives up on a port returning no data
func readFull(r io.Reader, buf []byte) error {
	idle := 0
	for len(buf) > 0 {
		n, err := r.Read(buf)
		buf = buf[n:]
		if n > 0 {
			idle = 0
		} else if err == nil {
			if idle++; idle >= maxIdleReads {
				return ErrTimeout
			}
		}
		if err != nil && len(buf) > 0 {
			if err == io.EOF {
				return ErrTimeout
			}
			return err
		}
	}
	return nil
}

// crc8 is the datasheet CRC: polynomial x^8+x^2+x+1, bytes fed LSB first
func crc8(data []byte) byte {
	crc := byte(0)
	for _, b := range data {
		for i := 0; i < 8; i++ {
			xor := (crc>>7)^(b&0b1) != 0
			crc <<= 1
			b >>= 1
			if xor {
				crc ^= 0b111
			}
		}
	}
	return crc
}
