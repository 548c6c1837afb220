//go:build !linux

package rpi

import (
	"errors"

	"wipistepper/core"
)

// ErrUnsupported is returned when the Raspberry Pi board is used off Linux
var ErrUnsupported = errors.New("raspberry pi gpio requires linux")

// Board is unavailable on this platform
type Board struct {
	core.Board
}

func NewBoard(Numbering) *Board { return &Board{} }

func (b *Board) Initialize() error { return ErrUnsupported }

func (b *Board) Close() error { return nil }
