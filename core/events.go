package core

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// EventKind classifies motion engine events
type EventKind uint8

const (
	EventPhase    EventKind = iota + 1 // a motion phase started or finished
	EventDuty                          // a PWM duty value was written
	EventWarning                       // an approximation or a recoverable problem
	EventRejected                      // a request was refused before touching hardware
)

func (k EventKind) String() string {
	switch k {
	case EventPhase:
		return "phase"
	case EventDuty:
		return "duty"
	case EventWarning:
		return "warning"
	case EventRejected:
		return "rejected"
	}
	return "unknown"
}

// Motion phases reported with EventPhase
const (
	PhaseRampUp   = "ramp-up"
	PhaseRun      = "run"
	PhaseRampDown = "ramp-down"
	PhaseDone     = "done"
	PhasePWMOn    = "pwm-on"
	PhasePWMOff   = "pwm-off"
)

// Event is one entry of the structured status stream emitted by the driver
// and the motion engines.
type Event struct {
	Kind    EventKind
	Signal  string
	Phase   string
	Message string

	Rpm       float64
	Period    float64 // us
	Duty      uint32
	Ticks     int
	Remainder float64 // degrees

	Err error
}

// Observer receives events synchronously from the calling goroutine.
// Implementations must not block: they run inside the pulse loop.
type Observer interface {
	OnEvent(ev Event)
}

// ObserverFunc adapts a plain function to Observer
type ObserverFunc func(ev Event)

func (f ObserverFunc) OnEvent(ev Event) { f(ev) }

// DefaultRecorderSize is the number of events a Recorder keeps
const DefaultRecorderSize = 64

// Recorder keeps the most recent events in a ring buffer for post-mortem dumps
type Recorder struct {
	mu   sync.Mutex
	ring []Event
	head int
	full bool
}

// NewRecorder creates a recorder holding up to size events (DefaultRecorderSize if size <= 0)
func NewRecorder(size int) *Recorder {
	if size <= 0 {
		size = DefaultRecorderSize
	}
	return &Recorder{ring: make([]Event, size)}
}

// OnEvent stores ev, overwriting the oldest entry when the ring is full
func (r *Recorder) OnEvent(ev Event) {
	r.mu.Lock()
	r.ring[r.head] = ev
	r.head = (r.head + 1) % len(r.ring)
	if r.head == 0 {
		r.full = true
	}
	r.mu.Unlock()
}

// Events returns the recorded events, oldest first
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.full {
		return append([]Event(nil), r.ring[:r.head]...)
	}
	out := make([]Event, 0, len(r.ring))
	out = append(out, r.ring[r.head:]...)
	return append(out, r.ring[:r.head]...)
}

// Clear drops all recorded events
func (r *Recorder) Clear() {
	r.mu.Lock()
	r.head = 0
	r.full = false
	r.mu.Unlock()
}

// logEvent renders ev on log at a level matching its kind
func logEvent(log logrus.FieldLogger, ev Event) {
	fields := logrus.Fields{"kind": ev.Kind.String()}
	if ev.Signal != "" {
		fields["signal"] = ev.Signal
	}
	if ev.Phase != "" {
		fields["phase"] = ev.Phase
	}
	if ev.Rpm != 0 {
		fields["rpm"] = ev.Rpm
	}
	if ev.Period != 0 {
		fields["period_us"] = ev.Period
	}
	if ev.Ticks != 0 {
		fields["ticks"] = ev.Ticks
	}
	entry := log.WithFields(fields)
	if ev.Err != nil {
		entry = entry.WithError(ev.Err)
	}

	switch ev.Kind {
	case EventWarning:
		if ev.Remainder != 0 {
			entry = entry.WithField("remainder_deg", ev.Remainder)
		}
		entry.Warn(ev.Message)
	case EventRejected:
		entry.Warn(ev.Message)
	case EventDuty:
		entry.WithField("duty", ev.Duty).Debug(ev.Message)
	default:
		entry.Info(ev.Message)
	}
}
