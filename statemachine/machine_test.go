package statemachine

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// changeLog is a Notifier that records changes.
type changeLog struct {
	mu      sync.Mutex
	changes []Change
}

func (c *changeLog) StateChanged(_ context.Context, change Change) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.changes = append(c.changes, change)
}

func (c *changeLog) all() []Change {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Change, len(c.changes))
	copy(out, c.changes)

	return out
}

func (c *changeLog) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.changes)
}

func newTestMachine(t *testing.T, doc string, opts ...Option) (*Machine, *changeLog) {
	t.Helper()

	schema, err := Compile([]byte(doc), WithID("door"))
	require.NoError(t, err)

	log := &changeLog{}
	base := []Option{
		WithNotifier(log),
		WithLogger(NewDefaultLogger(slogt.New(t))),
		WithName(t.Name()),
	}

	m := New(context.Background(), BuildTable(schema), append(base, opts...)...)

	t.Cleanup(func() {
		_ = m.Close()
	})

	return m, log
}

func TestMachine_StartsInInitialState(t *testing.T) {
	t.Parallel()

	m, log := newTestMachine(t, matterYAML, WithMachineID("m-1"))

	assert.Equal(t, "solid", m.State())
	assert.Equal(t, "m-1", m.ID())
	assert.Equal(t, t.Name(), m.Name())
	assert.Equal(t, 0, log.len(), "entering the initial state is not a change")

	obs := m.Observe()
	assert.Equal(t, Observation{Machine: "m-1", Name: t.Name(), State: "solid", Features: FeatureTransition}, obs)
	assert.True(t, obs.Supports(FeatureTransition))
	assert.False(t, obs.Supports(FeatureTransition|Feature(2)))
}

func TestMachine_DefaultIdentity(t *testing.T) {
	t.Parallel()

	schema, err := Compile([]byte(matterYAML))
	require.NoError(t, err)

	m := New(context.Background(), BuildTable(schema), WithLogger(NopLogger()))
	t.Cleanup(func() { _ = m.Close() })

	assert.NotEmpty(t, m.ID())
	assert.Equal(t, m.ID(), m.Name())
}

func TestMachine_PhasesOfMatter(t *testing.T) {
	t.Parallel()

	m, log := newTestMachine(t, matterYAML)
	ctx := context.Background()

	require.NoError(t, m.Trigger(ctx, "melt"))
	assert.Equal(t, "liquid", m.State())
	require.Equal(t, 1, log.len())

	change := log.all()[0]
	assert.Equal(t, "solid", change.From)
	assert.Equal(t, "liquid", change.To)
	assert.Equal(t, "melt", change.Trigger)
	assert.False(t, change.Timeout)
	assert.Equal(t, m.ID(), change.Machine)
	assert.Equal(t, m.Name(), change.Name)
	assert.False(t, change.At.IsZero())

	// melt is known but not valid from liquid
	require.NoError(t, m.Trigger(ctx, "melt"))
	assert.Equal(t, "liquid", m.State())
	assert.Equal(t, 1, log.len())

	err := m.Trigger(ctx, "fly")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrUnknownTrigger)
	assert.True(t, IsUnknownTriggerError(err))
	assert.Equal(t, "'fly' is not a possible trigger on '"+m.Name()+"'", err.Error())
	assert.Equal(t, "liquid", m.State())
	assert.Equal(t, 1, log.len())
}

func TestMachine_HasTriggerAndMayTrigger(t *testing.T) {
	t.Parallel()

	m, _ := newTestMachine(t, matterYAML)

	assert.True(t, m.HasTrigger("melt"))
	assert.True(t, m.HasTrigger("freeze"))
	assert.False(t, m.HasTrigger("fly"))

	assert.True(t, m.MayTrigger("melt"))
	assert.False(t, m.MayTrigger("freeze"))
	assert.False(t, m.MayTrigger("fly"))

	require.NoError(t, m.Trigger(context.Background(), "melt"))

	assert.False(t, m.MayTrigger("melt"))
	assert.True(t, m.MayTrigger("freeze"))
	assert.Equal(t, []string{"evaporate", "freeze"}, m.AvailableTriggers())
}

func TestMachine_AvailableTriggersHidesTimeouts(t *testing.T) {
	t.Parallel()

	m, _ := newTestMachine(t, pendingYAML)

	assert.Equal(t, []string{"approve", "retry"}, m.AvailableTriggers())
	assert.True(t, m.MayTrigger("door__expired"))
}

func TestMachine_Deterministic(t *testing.T) {
	t.Parallel()

	schema, err := Compile([]byte(matterYAML))
	require.NoError(t, err)

	table := BuildTable(schema)
	sequence := []string{"melt", "freeze", "evaporate", "melt", "evaporate", "freeze", "melt"}
	expected := []string{"liquid", "solid", "solid", "liquid", "gas", "gas", "gas"}

	for range 2 {
		m := New(context.Background(), table, WithLogger(NopLogger()))

		for i, trigger := range sequence {
			require.NoError(t, m.Trigger(context.Background(), trigger))
			assert.Equal(t, expected[i], m.State(), "after %s", trigger)
		}

		require.NoError(t, m.Close())
	}
}

func TestMachine_ConcurrentTriggersAreSequenced(t *testing.T) {
	t.Parallel()

	m, log := newTestMachine(t, "state: {status: a}\ntransitions: {a: {toggle: b}, b: {toggle: a}}\n")

	const n = 200

	var wg sync.WaitGroup

	for range n {
		wg.Add(1)

		go func() {
			defer wg.Done()

			assert.NoError(t, m.Trigger(context.Background(), "toggle"))
		}()
	}

	wg.Wait()

	changes := log.all()
	require.Len(t, changes, n)

	prev := "a"
	for _, c := range changes {
		assert.Equal(t, prev, c.From)
		prev = c.To
	}

	assert.Equal(t, "a", m.State(), "an even number of toggles returns to a")
}

func TestMachine_IndependentInstancesShareTable(t *testing.T) {
	t.Parallel()

	schema, err := Compile([]byte(matterYAML))
	require.NoError(t, err)

	table := BuildTable(schema)

	a := New(context.Background(), table, WithLogger(NopLogger()))
	b := New(context.Background(), table, WithLogger(NopLogger()))

	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})

	require.NoError(t, a.Trigger(context.Background(), "melt"))

	assert.Equal(t, "liquid", a.State())
	assert.Equal(t, "solid", b.State())
}

func TestMachine_Close(t *testing.T) {
	t.Parallel()

	m, _ := newTestMachine(t, matterYAML)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	select {
	case <-m.Done():
	default:
		t.Fatal("sequencer should have stopped")
	}

	require.ErrorIs(t, m.Trigger(context.Background(), "melt"), ErrMachineClosed)
	assert.Equal(t, "solid", m.State())
}

func TestMachine_StopsWithContext(t *testing.T) {
	t.Parallel()

	schema, err := Compile([]byte(matterYAML))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	m := New(ctx, BuildTable(schema), WithLogger(NopLogger()))

	cancel()

	select {
	case <-m.Done():
	case <-time.After(time.Second):
		t.Fatal("sequencer should stop when its context ends")
	}

	require.ErrorIs(t, m.Trigger(context.Background(), "melt"), ErrMachineClosed)
}

func TestMachine_CallerContextEndsWhileQueued(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	entered := make(chan struct{})

	blocking := NotifierFunc(func(context.Context, Change) {
		close(entered)
		<-release
	})

	m, _ := newTestMachine(t, matterYAML, WithNotifier(blocking), WithMailboxDepth(0))

	go func() {
		_ = m.Trigger(context.Background(), "melt")
	}()

	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := m.Trigger(ctx, "freeze")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)

	require.Eventually(t, func() bool { return m.State() == "liquid" }, time.Second, time.Millisecond)
}

func TestMachine_NotifierPanicIsRecovered(t *testing.T) {
	t.Parallel()

	calls := 0
	panicky := NotifierFunc(func(context.Context, Change) {
		calls++

		if calls == 1 {
			panic("boom")
		}
	})

	m, _ := newTestMachine(t, matterYAML, WithNotifier(panicky))
	ctx := context.Background()

	require.NoError(t, m.Trigger(ctx, "melt"))
	assert.Equal(t, "liquid", m.State())

	require.NoError(t, m.Trigger(ctx, "evaporate"))
	assert.Equal(t, "gas", m.State())
	assert.Equal(t, 2, calls)
}

func TestMachine_Logging(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	m, _ := newTestMachine(t, matterYAML, WithName("matter"), WithLogger(NewDefaultLogger(log)))
	ctx := context.Background()

	require.NoError(t, m.Trigger(ctx, "melt"))
	require.NoError(t, m.Trigger(ctx, "melt"))
	require.Error(t, m.Trigger(ctx, "fly"))

	out := buf.String()
	assert.Contains(t, out, "Trigger 'melt' on 'matter' [solid -> liquid]")
	assert.Contains(t, out, `level=INFO msg="Trigger not valid from current state, skipped" machine=matter trigger=melt state=liquid`)
	assert.Contains(t, out, `level=WARN msg="Unknown trigger" machine=matter trigger=fly`)
}

// hookLogger records which hooks ran.
type hookLogger struct {
	nopLogger

	mu     sync.Mutex
	events []string
}

func (h *hookLogger) record(event string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.events = append(h.events, event)
}

func (h *hookLogger) TransitionExecuted(_ context.Context, _, trigger, from, to string) {
	h.record("transition " + trigger + " " + from + "->" + to)
}

func (h *hookLogger) TriggerSkipped(_ context.Context, _, trigger, state string) {
	h.record("skipped " + trigger + " in " + state)
}

func (h *hookLogger) UnknownTrigger(_ context.Context, _, trigger string) {
	h.record("unknown " + trigger)
}

func (h *hookLogger) NotifierPanicked(_ context.Context, _ string, recovered any, _ []byte) {
	h.record("panic " + recovered.(string)) //nolint:forcetypeassert
}

func (h *hookLogger) StepPanicked(_ context.Context, _, trigger, state string, recovered any, _ []byte) {
	h.record("step panic " + trigger + " in " + state + ": " + recovered.(string)) //nolint:forcetypeassert
}

func (h *hookLogger) all() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]string(nil), h.events...)
}

func TestMachine_LoggerHooks(t *testing.T) {
	t.Parallel()

	hooks := &hookLogger{}
	panicky := NotifierFunc(func(_ context.Context, c Change) {
		if c.To == "gas" {
			panic("too hot")
		}
	})

	m, _ := newTestMachine(t, matterYAML, WithLogger(hooks), WithNotifier(panicky))
	ctx := context.Background()

	require.NoError(t, m.Trigger(ctx, "melt"))
	require.NoError(t, m.Trigger(ctx, "melt"))
	require.True(t, errors.Is(m.Trigger(ctx, "fly"), ErrUnknownTrigger))
	require.NoError(t, m.Trigger(ctx, "evaporate"))

	assert.Equal(t, []string{
		"transition melt solid->liquid",
		"skipped melt in liquid",
		"unknown fly",
		"transition evaporate liquid->gas",
		"panic too hot",
	}, hooks.all())
}

// explodingLogger panics while logging one transition.
type explodingLogger struct {
	hookLogger

	on string
}

func (e *explodingLogger) TransitionExecuted(ctx context.Context, machine, trigger, from, to string) {
	if trigger == e.on {
		panic("boom")
	}

	e.hookLogger.TransitionExecuted(ctx, machine, trigger, from, to)
}

func TestMachine_StepPanicIsRecovered(t *testing.T) {
	t.Parallel()

	hooks := &explodingLogger{on: "melt"}
	m, _ := newTestMachine(t, matterYAML, WithLogger(hooks))
	ctx := context.Background()

	err := m.Trigger(ctx, "melt")
	require.ErrorIs(t, err, ErrMachinePanic)

	var stateErr *StateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, "solid", stateErr.State)

	require.NoError(t, m.Trigger(ctx, "evaporate"))
	assert.Equal(t, "gas", m.State())

	assert.Equal(t, []string{
		"step panic melt in solid: boom",
		"transition evaporate liquid->gas",
	}, hooks.all())
}

func TestWrapStateError(t *testing.T) {
	t.Parallel()

	require.NoError(t, WrapStateError("idle", nil))

	err := WrapStateError("idle", ErrMachinePanic)
	require.ErrorIs(t, err, ErrMachinePanic)
	assert.Equal(t, "state idle: panic in machine", err.Error())
}
