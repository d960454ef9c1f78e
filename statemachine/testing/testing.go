// Package testing provides testing utilities for state machines.
//
//nolint:varnamelen // short names idiomatic
package testing

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/amp-labs/amp-fsm/statemachine"
	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/require"
)

const pollInterval = 2 * time.Millisecond

// Recorder is a Notifier that keeps every change it receives.
type Recorder struct {
	mu      sync.Mutex
	changes []statemachine.Change
}

var _ statemachine.Notifier = (*Recorder)(nil)

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) StateChanged(_ context.Context, change statemachine.Change) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.changes = append(r.changes, change)
}

// Changes returns a copy of the recorded changes in arrival order.
func (r *Recorder) Changes() []statemachine.Change {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.changes)
}

// Len returns how many changes were recorded.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.changes)
}

// States returns the destination of each recorded change.
func (r *Recorder) States() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	states := make([]string, len(r.changes))
	for i, c := range r.changes {
		states[i] = c.To
	}

	return states
}

// Last returns the most recent change.
func (r *Recorder) Last() (statemachine.Change, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.changes) == 0 {
		return statemachine.Change{}, false
	}

	return r.changes[len(r.changes)-1], true
}

// Reset forgets every recorded change.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.changes = nil
}

// NewMachine compiles doc and starts a machine whose changes go to the
// returned Recorder and whose logs go to t.Log. The machine is closed when
// the test ends.
func NewMachine(
	t *testing.T, doc string, compileOpts []statemachine.CompileOption, opts ...statemachine.Option,
) (*statemachine.Machine, *Recorder) {
	t.Helper()

	schema, err := statemachine.Compile([]byte(doc), compileOpts...)
	require.NoError(t, err, "failed to compile schema")

	rec := NewRecorder()

	base := []statemachine.Option{
		statemachine.WithNotifier(rec),
		statemachine.WithLogger(statemachine.NewDefaultLogger(slogt.New(t))),
		statemachine.WithName(t.Name()),
	}

	m := statemachine.New(context.Background(), statemachine.BuildTable(schema), append(base, opts...)...)

	t.Cleanup(func() {
		_ = m.Close()
	})

	return m, rec
}

// RequireState fails the test unless m is in state want.
func RequireState(t *testing.T, m *statemachine.Machine, want string) {
	t.Helper()

	require.Equal(t, want, m.State(), "machine %s should be in state %q", m.Name(), want)
}

// WaitForState fails the test unless m reaches state want within timeout.
func WaitForState(t *testing.T, m *statemachine.Machine, want string, timeout time.Duration) {
	t.Helper()

	require.Eventually(t, func() bool {
		return m.State() == want
	}, timeout, pollInterval, "machine %s should reach state %q, still in %q", m.Name(), want, m.State())
}

// RequireNoChangeFor fails the test if r records anything during d.
func RequireNoChangeFor(t *testing.T, r *Recorder, d time.Duration) {
	t.Helper()

	before := r.Len()

	time.Sleep(d)

	require.Equal(t, before, r.Len(), "no state change expected within %s, got %v", d, r.States()[before:])
}

// RequireChanges fails the test unless exactly n changes were recorded.
func RequireChanges(t *testing.T, r *Recorder, n int) {
	t.Helper()

	require.Equal(t, n, r.Len(), "expected %d state changes, got %v", n, r.States())
}
