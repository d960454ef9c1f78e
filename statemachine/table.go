package statemachine

import (
	"slices"

	"facette.io/natsort"
)

// SyntheticTrigger returns the name of the trigger that drives a timeout
// transition into target for the machine identified by id.
func SyntheticTrigger(id, target string) string {
	return id + "__" + target
}

// Table is the query index built from a Schema. It maps (state, trigger) to a
// destination and knows every trigger the machine recognizes, synthetic
// timeout triggers included. A Table is never mutated and may be shared by
// any number of machines.
type Table struct {
	id          string
	initial     string
	states      []string
	transitions []Transition
	routes      map[string]map[string]string
	timeouts    map[string]Timeout
	recognized  map[string]bool
	synthetic   map[string]bool
	triggers    []string
	from        map[string][]string
}

// BuildTable derives the transition table of a schema.
func BuildTable(schema *Schema) *Table {
	t := &Table{
		id:          schema.id,
		initial:     schema.initial,
		states:      make([]string, 0, len(schema.states)),
		transitions: make([]Transition, 0, len(schema.transitions)+len(schema.states)),
		routes:      make(map[string]map[string]string, len(schema.states)),
		timeouts:    make(map[string]Timeout),
		recognized:  make(map[string]bool),
		synthetic:   make(map[string]bool),
		from:        make(map[string][]string, len(schema.states)),
	}

	for _, st := range schema.states {
		t.states = append(t.states, st.Name)
		t.routes[st.Name] = make(map[string]string)
	}

	for _, tr := range schema.transitions {
		t.add(tr)
	}

	for _, st := range schema.states {
		if !st.HasTimeout() {
			continue
		}

		t.timeouts[st.Name] = st.Timeout
		t.synthetic[st.Timeout.Trigger] = true
		t.add(Transition{
			Trigger:     st.Timeout.Trigger,
			Source:      st.Name,
			Destination: st.Timeout.Target,
			Timeout:     true,
		})
	}

	t.triggers = make([]string, 0, len(t.recognized))
	for trigger := range t.recognized {
		t.triggers = append(t.triggers, trigger)
	}

	natsort.Sort(t.triggers)

	for state := range t.from {
		natsort.Sort(t.from[state])
	}

	return t
}

func (t *Table) add(tr Transition) {
	t.routes[tr.Source][tr.Trigger] = tr.Destination
	t.recognized[tr.Trigger] = true
	t.from[tr.Source] = append(t.from[tr.Source], tr.Trigger)
	t.transitions = append(t.transitions, tr)
}

// ID returns the identity of the schema the table was built from.
func (t *Table) ID() string {
	return t.id
}

// Initial returns the initial state.
func (t *Table) Initial() string {
	return t.initial
}

// States returns the state names in document order.
func (t *Table) States() []string {
	return slices.Clone(t.states)
}

// Transitions returns every rule, timeout transitions last.
func (t *Table) Transitions() []Transition {
	return slices.Clone(t.transitions)
}

// Destination looks up where trigger leads from state.
func (t *Table) Destination(state, trigger string) (string, bool) {
	dest, ok := t.routes[state][trigger]

	return dest, ok
}

// HasTrigger reports whether any state recognizes trigger.
func (t *Table) HasTrigger(trigger string) bool {
	return t.recognized[trigger]
}

// IsTimeoutTrigger reports whether trigger is a synthetic timeout trigger.
func (t *Table) IsTimeoutTrigger(trigger string) bool {
	return t.synthetic[trigger]
}

// Triggers returns every recognized trigger in natural order.
func (t *Table) Triggers() []string {
	return slices.Clone(t.triggers)
}

// TriggersFrom returns the triggers valid from state in natural order.
func (t *Table) TriggersFrom(state string) []string {
	return slices.Clone(t.from[state])
}

// Timeout returns the timeout of state, if it has one.
func (t *Table) Timeout(state string) (Timeout, bool) {
	to, ok := t.timeouts[state]

	return to, ok
}
