// Package statemachine compiles declarative state machine schemas into runnable
// machines. A machine moves between states when named triggers are invoked,
// performs timed automatic transitions, and notifies observers after every
// committed state change.
package statemachine

import (
	"slices"
	"time"
)

// Timeout describes an automatic transition taken when a state has been
// occupied for After without any other transition.
type Timeout struct {
	After   time.Duration
	Target  string
	Trigger string // synthetic trigger, see SyntheticTrigger
}

// State is a named condition the machine can occupy.
type State struct {
	Name    string
	Timeout Timeout
}

// HasTimeout reports whether the state carries an automatic transition.
func (s State) HasTimeout() bool {
	return s.Timeout.After > 0
}

// Transition is a (source, trigger, destination) rule.
type Transition struct {
	Trigger     string
	Source      string
	Destination string
	Timeout     bool // true for synthetic timeout transitions
}

// Schema is a validated, immutable machine definition. It is produced by
// Compile and may be shared read-only by any number of machines.
type Schema struct {
	id          string
	initial     string
	states      []State
	transitions []Transition
	index       map[string]int
}

// ID returns the identity the synthetic timeout triggers are derived from.
func (s *Schema) ID() string {
	return s.id
}

// Initial returns the initial state name.
func (s *Schema) Initial() string {
	return s.initial
}

// States returns the declared states in document order.
func (s *Schema) States() []State {
	return slices.Clone(s.states)
}

// Transitions returns the declared transitions in document order. Synthetic
// timeout transitions are not included; see Table.
func (s *Schema) Transitions() []Transition {
	return slices.Clone(s.transitions)
}

// State looks up a state by name.
func (s *Schema) State(name string) (State, bool) {
	i, ok := s.index[name]
	if !ok {
		return State{}, false
	}

	return s.states[i], true
}
