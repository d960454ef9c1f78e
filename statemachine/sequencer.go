package statemachine

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"
)

// request is a mailbox entry. External triggers carry a result channel;
// timer firings carry the generation they were armed for instead.
type request struct {
	ctx        context.Context //nolint:containedctx
	trigger    string
	generation uint64
	timeout    bool
	result     chan error
}

// run is the sequencer: the only goroutine that mutates the machine. Every
// lookup, state change, timer rearm and notification happens here, one
// request at a time, in mailbox order.
func (m *Machine) run(ctx context.Context) {
	machinesAlive.Inc()

	defer machinesAlive.Dec()
	defer close(m.done)
	defer m.timer.cancel()

	for {
		select {
		case <-ctx.Done():
			m.closed.Store(true)

			return
		case <-m.stop:
			return
		case req := <-m.inbox:
			err := m.step(req)

			if req.result != nil {
				req.result <- err
			}
		}
	}
}

// submit places req in the mailbox.
func (m *Machine) submit(ctx context.Context, req request) error {
	if m.closed.Load() {
		return ErrMachineClosed
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return ErrMachineClosed
	case m.inbox <- req:
		return nil
	}
}

// await waits for the sequencer to process req.
func (m *Machine) await(ctx context.Context, req request) error {
	select {
	case err := <-req.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		select {
		case err := <-req.result:
			return err
		default:
			return ErrMachineClosed
		}
	}
}

// step executes one request.
func (m *Machine) step(req request) (err error) {
	ctx, span := startTriggerSpan(req.ctx, m.name, req.trigger, req.timeout)

	from := m.current.Load()
	to := ""
	outcome := outcomeSkipped

	defer func() {
		if r := recover(); r != nil {
			err = WrapStateError(from, fmt.Errorf("%w %s: %v", ErrMachinePanic, m.name, r))
			outcome = outcomePanic

			m.log.StepPanicked(ctx, m.name, req.trigger, from, r, debug.Stack())
		}

		endTriggerSpan(span, from, to, outcome, err)
	}()

	if req.timeout {
		if current := m.generation.Load(); req.generation != current {
			staleTimeoutsTotal.WithLabelValues(m.label).Inc()
			m.log.StaleTimeout(ctx, m.name, req.trigger, req.generation, current)

			outcome = outcomeStale

			return nil
		}
	}

	dest, ok := m.table.Destination(from, req.trigger)
	if !ok {
		triggersSkippedTotal.WithLabelValues(m.label, from).Inc()
		m.log.TriggerSkipped(ctx, m.name, req.trigger, from)

		return nil
	}

	to = dest
	m.commit(ctx, req, from, dest)
	outcome = outcomeTransitioned

	return nil
}

// commit moves the machine from one state to the next. The pending timer is
// cancelled and the generation bumped before the new state becomes visible,
// so a timer of the left state can no longer take effect.
func (m *Machine) commit(ctx context.Context, req request, from, to string) {
	m.timer.cancel()
	gen := m.generation.Inc()

	change := Change{
		Machine: m.id,
		Name:    m.name,
		From:    from,
		To:      to,
		Trigger: req.trigger,
		Timeout: req.timeout,
		At:      time.Now(),
	}

	if req.timeout && m.beforeTimeout != nil {
		if hooked := m.beforeTimeout(ctx, change); hooked != nil {
			ctx = hooked //nolint:fatcontext
		}
	}

	m.current.Store(to)
	m.armTimeout(ctx, to, gen)

	kind := kindTrigger
	if req.timeout {
		kind = kindTimeout
	}

	transitionTotal.WithLabelValues(m.label, from, to, kind).Inc()
	m.log.TransitionExecuted(ctx, m.name, req.trigger, from, to)

	m.notify(ctx, change)
}

func (m *Machine) notify(ctx context.Context, change Change) {
	if m.notifier == nil {
		return
	}

	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			m.log.NotifierPanicked(ctx, m.name, r, debug.Stack())
		}

		notifyDuration.WithLabelValues(m.label).Observe(time.Since(start).Seconds())
	}()

	m.notifier.StateChanged(ctx, change)
}
