//go:build rp2040 || rp2350

package rp2

import (
	"errors"
	"machine"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"
)

// Square wave program. The TX word is the number of extra cycles spent in
// each half period; pull noblock reloads the last word from X, so the wave
// keeps running until a new word arrives.
//
//	0: pull noblock
//	1: mov x, osr
//	2: mov y, x
//	3: set pins, 1
//	4: jmp y--, 4
//	5: mov y, x
//	6: set pins, 0
//	7: jmp y--, 7
func buildPulseTrainProgram() []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 0}
	return []uint16{
		// .wrap_target
		asm.Pull(false, false).Encode(),
		asm.Mov(rp2pio.MovDestX, rp2pio.MovSrcOSR).Encode(),
		asm.Mov(rp2pio.MovDestY, rp2pio.MovSrcX).Encode(),
		asm.Set(rp2pio.SetDestPins, 1).Encode(),
		asm.Jmp(4, rp2pio.JmpYNZeroDec).Encode(),
		asm.Mov(rp2pio.MovDestY, rp2pio.MovSrcX).Encode(),
		asm.Set(rp2pio.SetDestPins, 0).Encode(),
		asm.Jmp(7, rp2pio.JmpYNZeroDec).Encode(),
		// .wrap
	}
}

const (
	pulseTrainOrigin = 0 // jump targets above are absolute

	// fixedCycles is the program length: every instruction runs once per period
	fixedCycles = 8
)

var (
	pulseTrainOffset uint8
	pulseTrainLoaded = map[*rp2pio.PIO]bool{}
)

var errNoStateMachine = errors.New("rp2: no free pio state machine")

// pulseTrain is one state machine generating a square wave on a pin
type pulseTrain struct {
	pio     *rp2pio.PIO
	sm      rp2pio.StateMachine
	pin     machine.Pin
	running bool
}

func newPulseTrain(p *rp2pio.PIO, pin machine.Pin) (*pulseTrain, error) {
	var sm rp2pio.StateMachine
	claimed := false
	for i := uint8(0); i < 4; i++ {
		sm = p.StateMachine(i)
		if sm.TryClaim() {
			claimed = true
			break
		}
	}
	if !claimed {
		return nil, errNoStateMachine
	}

	if !pulseTrainLoaded[p] {
		program := buildPulseTrainProgram()
		offset, err := p.AddProgram(program, pulseTrainOrigin)
		if err != nil {
			sm.Unclaim()
			return nil, err
		}
		pulseTrainOffset = offset
		pulseTrainLoaded[p] = true
	}

	pin.Configure(machine.PinConfig{Mode: p.PinMode()})

	cfg := rp2pio.DefaultStateMachineConfig()
	cfg.SetSetPins(pin, 1)
	cfg.SetWrap(pulseTrainOffset+fixedCycles-1, pulseTrainOffset)
	cfg.SetClkDivIntFrac(1, 0)

	sm.Init(pulseTrainOffset, cfg)
	sm.SetPindirsConsecutive(pin, 1, true)
	sm.SetPinsConsecutive(pin, 1, false)

	return &pulseTrain{pio: p, sm: sm, pin: pin}, nil
}

// run (re)starts the wave with the given period
func (t *pulseTrain) run(periodNs float64) {
	cycles := periodNs * float64(machine.CPUFrequency()) / 1e9
	half := (cycles - fixedCycles) / 2
	if half < 0 {
		half = 0
	}

	if !t.running {
		t.sm.ClearFIFOs()
		t.sm.Restart()
		t.sm.SetEnabled(true)
		t.running = true
	}
	for t.sm.IsTxFIFOFull() {
	}
	t.sm.TxPut(uint32(half + 0.5))
}

// stop halts the state machine with the pin LOW
func (t *pulseTrain) stop() {
	if !t.running {
		return
	}
	t.sm.SetEnabled(false)
	t.sm.ClearFIFOs()
	t.sm.SetPinsConsecutive(t.pin, 1, false)
	t.running = false
}

// release stops the wave and returns the state machine to the pool
func (t *pulseTrain) release() {
	t.stop()
	t.sm.Unclaim()
}
