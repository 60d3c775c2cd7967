package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/zapdesk/console/internal/bus"
)

// State is a connection lifecycle state of the console daemon.
type State string

const (
	Booting       State = "BOOTING"
	AuthRequired  State = "AUTH_REQUIRED"
	Connecting    State = "CONNECTING"
	Bootstrapping State = "BOOTSTRAPPING"
	Live          State = "LIVE"
	Reconnecting  State = "RECONNECTING"
	Degraded      State = "DEGRADED"
	Error         State = "ERROR"
)

// validTransitions defines the allowed lifecycle moves. Bootstrapping sits
// between socket connect and the first successful REST snapshot; LIVE means
// realtime events are being applied on top of a reconciled bootstrap.
var validTransitions = map[State][]State{
	Booting:       {AuthRequired, Connecting, Error},
	AuthRequired:  {Connecting, Error},
	Connecting:    {Bootstrapping, AuthRequired, Reconnecting, Error},
	Bootstrapping: {Live, Reconnecting, Degraded, Error},
	Live:          {Reconnecting, Degraded, AuthRequired, Error},
	Reconnecting:  {Connecting, Degraded, Error},
	Degraded:      {Connecting, Reconnecting, Live, Error},
	Error:         {Booting},
}

// Machine tracks and enforces the daemon's connection state.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a machine starting in Booting.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{current: Booting, bus: b}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Invalid moves leave the
// machine unchanged and return an error.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !slices.Contains(validTransitions[m.current], to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:    bus.KindSession,
			Payload: Change{From: from, To: to},
		})
	}
	return nil
}

// Change is the payload of session status events.
type Change struct {
	From State
	To   State
}
