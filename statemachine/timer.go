package statemachine

import (
	"context"
	"time"
)

// timeoutTimer is the single pending timeout of a machine. It is owned by
// the sequencer goroutine and needs no locking.
type timeoutTimer struct {
	timer *time.Timer
}

// arm replaces any pending timer.
func (t *timeoutTimer) arm(after time.Duration, fire func()) {
	t.cancel()

	t.timer = time.AfterFunc(after, fire)
}

// cancel stops the pending timer. It reports whether a timer was stopped
// before firing; a timer that already fired is caught by the generation check.
func (t *timeoutTimer) cancel() bool {
	if t.timer == nil {
		return false
	}

	stopped := t.timer.Stop()
	t.timer = nil

	return stopped
}

// armTimeout arms the timeout of state, if it has one, for generation gen.
func (m *Machine) armTimeout(ctx context.Context, state string, gen uint64) {
	to, ok := m.table.Timeout(state)
	if !ok {
		return
	}

	m.timer.arm(to.After, func() {
		m.fire(to.Trigger, gen)
	})

	timersArmedTotal.WithLabelValues(m.label, state).Inc()
	m.log.TimeoutArmed(ctx, m.name, state, to.After)
}

// fire delivers an elapsed timeout to the sequencer, exactly like an external
// trigger but stamped with the generation it was armed for.
func (m *Machine) fire(trigger string, gen uint64) {
	req := request{
		ctx:        m.ctx,
		trigger:    trigger,
		generation: gen,
		timeout:    true,
	}

	select {
	case m.inbox <- req:
	case <-m.done:
	}
}
