package statemachine

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/amp-labs/amp-fsm/logger"
)

// Change describes one committed transition.
type Change struct {
	Machine string // machine ID
	Name    string // machine display name
	From    string
	To      string
	Trigger string
	Timeout bool // the transition was driven by a state timeout
	At      time.Time
}

// Notifier receives every committed state change, in commit order, on the
// machine's sequencer. Implementations must return quickly and must not call
// Trigger or Close on the same machine synchronously; wrap them in an
// AsyncNotifier when they need to.
type Notifier interface {
	StateChanged(ctx context.Context, change Change)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, change Change)

func (f NotifierFunc) StateChanged(ctx context.Context, change Change) {
	f(ctx, change)
}

type multiNotifier []Notifier

func (m multiNotifier) StateChanged(ctx context.Context, change Change) {
	for _, n := range m {
		n.StateChanged(ctx, change)
	}
}

// Notifiers fans a change out to each notifier in order. Nil entries are ignored.
func Notifiers(notifiers ...Notifier) Notifier { //nolint:ireturn
	out := make(multiNotifier, 0, len(notifiers))

	for _, n := range notifiers {
		if n != nil {
			out = append(out, n)
		}
	}

	return out
}

// AsyncNotifier hands changes to a single background worker, so the
// sequencer never waits on the wrapped notifier. Changes are delivered in
// the order they were committed.
type AsyncNotifier struct {
	next Notifier
	pool pond.Pool
}

var _ Notifier = (*AsyncNotifier)(nil)

// NewAsyncNotifier wraps next. Call Close to drain pending changes.
func NewAsyncNotifier(next Notifier) *AsyncNotifier {
	return &AsyncNotifier{
		next: next,
		pool: pond.NewPool(1),
	}
}

func (a *AsyncNotifier) StateChanged(ctx context.Context, change Change) {
	ctx = context.WithoutCancel(ctx)

	err := a.pool.Go(func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Get(ctx).Error("async notifier recovered from panic",
					"machine", change.Name,
					"error", r,
					"stack", string(debug.Stack()))
			}
		}()

		a.next.StateChanged(ctx, change)
	})
	if err != nil {
		logger.Get(ctx).Warn("async notifier stopped, change dropped",
			"machine", change.Name,
			"from", change.From,
			"to", change.To,
			"error", err)
	}
}

// Close waits for queued changes to be delivered and stops the worker.
func (a *AsyncNotifier) Close() error {
	a.pool.StopAndWait()

	return nil
}
