package lifecycle

import "slices"

// Rule allows Event to move an entity from any of From into To.
type Rule[S ~string, E ~string] struct {
	Event E
	From  []S
	To    S
}

// Machine is a static transition table shared by the appointment and
// transaction lifecycles. Guards that depend on time or entity fields are
// checked by the caller after Next succeeds.
type Machine[S ~string, E ~string] struct {
	rules    map[E]Rule[S, E]
	terminal map[S]struct{}
}

func NewMachine[S ~string, E ~string](terminal []S, rules ...Rule[S, E]) *Machine[S, E] {
	m := &Machine[S, E]{
		rules:    make(map[E]Rule[S, E], len(rules)),
		terminal: make(map[S]struct{}, len(terminal)),
	}

	for _, r := range rules {
		m.rules[r.Event] = r
	}

	for _, s := range terminal {
		m.terminal[s] = struct{}{}
	}

	return m
}

// Next returns the target state for event, or a TransitionError when the
// event is unknown or not allowed from the current state.
func (m *Machine[S, E]) Next(from S, event E) (S, error) {
	r, ok := m.rules[event]
	if !ok || m.IsTerminal(from) || !slices.Contains(r.From, from) {
		return from, &TransitionError{From: string(from), Event: string(event)}
	}

	return r.To, nil
}

func (m *Machine[S, E]) IsTerminal(s S) bool {
	_, ok := m.terminal[s]
	return ok
}

// Events lists every event the machine knows about.
func (m *Machine[S, E]) Events() []E {
	events := make([]E, 0, len(m.rules))
	for e := range m.rules {
		events = append(events, e)
	}

	return events
}
