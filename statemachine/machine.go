package statemachine

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/atomic"
)

const defaultMailboxDepth = 16

// BeforeTimeoutFunc runs on the sequencer immediately before a timeout
// transition commits. The returned context, if not nil, is the one the
// transition is logged and notified with, so hooks can attach provenance.
type BeforeTimeoutFunc func(ctx context.Context, change Change) context.Context

// Machine is a running instance of a Table. All mutation happens on a
// private sequencer goroutine; the exported methods are safe for concurrent use.
type Machine struct {
	table *Table
	id    string
	name  string
	label string
	depth int

	ctx           context.Context //nolint:containedctx
	log           Logger
	notifier      Notifier
	beforeTimeout BeforeTimeoutFunc

	current    *atomic.String
	generation *atomic.Uint64
	closed     *atomic.Bool

	timer    timeoutTimer
	inbox    chan request
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// Option configures a Machine.
type Option func(*Machine)

// WithNotifier sets the change notifier.
func WithNotifier(n Notifier) Option {
	return func(m *Machine) {
		m.notifier = n
	}
}

// WithLogger sets the diagnostic sink. Defaults to a DefaultLogger over logger.Get.
func WithLogger(l Logger) Option {
	return func(m *Machine) {
		m.log = l
	}
}

// WithBeforeTimeout sets the hook invoked before timeout transitions.
func WithBeforeTimeout(fn BeforeTimeoutFunc) Option {
	return func(m *Machine) {
		m.beforeTimeout = fn
	}
}

// WithMailboxDepth sets how many requests may queue for the sequencer.
func WithMailboxDepth(depth int) Option {
	return func(m *Machine) {
		if depth >= 0 {
			m.depth = depth
		}
	}
}

// WithName sets the display name used in logs, metrics and observations.
func WithName(name string) Option {
	return func(m *Machine) {
		m.name = name
	}
}

// WithMachineID sets the machine ID. A random UUID is used when unset.
func WithMachineID(id string) Option {
	return func(m *Machine) {
		m.id = id
	}
}

// New starts a machine in the table's initial state. The machine stops when
// ctx is done or Close is called.
func New(ctx context.Context, table *Table, opts ...Option) *Machine {
	m := &Machine{
		table:      table,
		depth:      defaultMailboxDepth,
		ctx:        context.WithoutCancel(ctx),
		current:    atomic.NewString(table.Initial()),
		generation: atomic.NewUint64(0),
		closed:     atomic.NewBool(false),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.id == "" {
		m.id = uuid.NewString()
	}

	if m.name == "" {
		m.name = m.id
	}

	if m.log == nil {
		m.log = NewDefaultLogger(nil)
	}

	m.label = hashLabel(m.name)
	m.inbox = make(chan request, m.depth)

	m.armTimeout(m.ctx, table.Initial(), 0)

	go m.run(ctx)

	return m
}

// ID returns the machine ID.
func (m *Machine) ID() string {
	return m.id
}

// Name returns the display name.
func (m *Machine) Name() string {
	return m.name
}

// Table returns the table the machine runs.
func (m *Machine) Table() *Table {
	return m.table
}

// State returns the current state.
func (m *Machine) State() string {
	return m.current.Load()
}

// HasTrigger reports whether any state of the machine recognizes trigger.
func (m *Machine) HasTrigger(trigger string) bool {
	return m.table.HasTrigger(trigger)
}

// MayTrigger reports whether trigger is valid from the current state.
func (m *Machine) MayTrigger(trigger string) bool {
	_, ok := m.table.Destination(m.current.Load(), trigger)

	return ok
}

// AvailableTriggers lists the triggers valid from the current state, timeout
// triggers excluded.
func (m *Machine) AvailableTriggers() []string {
	all := m.table.TriggersFrom(m.current.Load())
	out := all[:0]

	for _, t := range all {
		if !m.table.IsTimeoutTrigger(t) {
			out = append(out, t)
		}
	}

	return out
}

// Trigger invokes a trigger by name and returns once the sequencer has
// processed it. An unrecognized trigger fails with *UnknownTriggerError and
// leaves the machine untouched. A recognized trigger that is not valid from
// the current state is skipped without error or notification.
func (m *Machine) Trigger(ctx context.Context, trigger string) error {
	if m.closed.Load() {
		return ErrMachineClosed
	}

	if !m.table.HasTrigger(trigger) {
		state := m.current.Load()
		err := &UnknownTriggerError{Machine: m.name, Trigger: trigger}

		_, span := startTriggerSpan(ctx, m.name, trigger, false)
		endTriggerSpan(span, state, "", outcomeUnknown, err)

		unknownTriggersTotal.WithLabelValues(m.label).Inc()
		m.log.UnknownTrigger(ctx, m.name, trigger)

		return err
	}

	req := request{
		ctx:     context.WithoutCancel(ctx),
		trigger: trigger,
		result:  make(chan error, 1),
	}

	if err := m.submit(ctx, req); err != nil {
		return err
	}

	return m.await(ctx, req)
}

// Observe returns the host-facing view of the machine.
func (m *Machine) Observe() Observation {
	return Observation{
		Machine:  m.id,
		Name:     m.name,
		State:    m.current.Load(),
		Features: FeatureTransition,
	}
}

// Done is closed once the sequencer has stopped.
func (m *Machine) Done() <-chan struct{} {
	return m.done
}

// Close stops the pending timer and the sequencer and waits for it to exit.
// Requests still queued fail with ErrMachineClosed. Safe to call more than once.
// Like Trigger, it must not be called synchronously from a Notifier of the same
// machine: it would wait for the sequencer it is running on. Use an
// AsyncNotifier.
func (m *Machine) Close() error {
	m.closed.Store(true)
	m.stopOnce.Do(func() {
		close(m.stop)
	})

	<-m.done

	return nil
}
