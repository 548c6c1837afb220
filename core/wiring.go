package core

import (
	"maps"
	"slices"

	"github.com/pkg/errors"
)

// Wiring maps logical signal names to board pins
type Wiring map[string]Pin

// States maps logical signal names to logic levels
type States map[string]Level

// DefaultWiring returns a fresh copy of the default wiring
// {enable:0, clock:1, direction:2}
func DefaultWiring() Wiring {
	return Wiring{
		SignalEnable:    0,
		SignalClock:     1,
		SignalDirection: 2,
	}
}

// DefaultStates returns every default signal at LOW
func DefaultStates() States {
	return States{
		SignalEnable:    Low,
		SignalClock:     Low,
		SignalDirection: Low,
	}
}

// Clone returns an independent copy of w
func (w Wiring) Clone() Wiring {
	return maps.Clone(w)
}

// Signals returns the wired signal names in sorted order
func (w Wiring) Signals() []string {
	return slices.Sorted(maps.Keys(w))
}

// Pin looks a signal up
func (w Wiring) Pin(signal string) (Pin, error) {
	pin, ok := w[signal]
	if !ok {
		return 0, errors.Wrapf(ErrUnknownSignal, "%q", signal)
	}
	return pin, nil
}

// Clone returns an independent copy of s
func (s States) Clone() States {
	return maps.Clone(s)
}

// statesFor builds a state map covering exactly the signals of w: levels
// come from s, missing entries default to LOW. A level for a signal that
// is not wired is an error.
func statesFor(w Wiring, s States) (States, error) {
	for signal := range s {
		if _, ok := w[signal]; !ok {
			return nil, errors.Wrapf(ErrUnknownSignal, "initial state for %q", signal)
		}
	}
	out := make(States, len(w))
	for signal := range w {
		out[signal] = s[signal]
	}
	return out, nil
}
