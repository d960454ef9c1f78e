package testing

import (
	"context"
	"testing"
	"time"

	"github.com/amp-labs/amp-fsm/statemachine"
	"github.com/stretchr/testify/require"
)

// Step is one action of a scenario followed by its expectations. A step
// either invokes Trigger, or (when Trigger is empty) lets Wait elapse.
type Step struct {
	Trigger string
	Wait    time.Duration
	// WantErr is matched with errors.Is; nil means the trigger must succeed.
	WantErr   error
	WantState string
	// Notifications is the exact number of changes the step must produce.
	Notifications int
}

// Scenario is a schema and a sequence of steps run against a fresh machine.
type Scenario struct {
	Name     string
	Schema   string
	Compile  []statemachine.CompileOption
	Options  []statemachine.Option
	Steps    []Step
	Matchers []Matcher
}

// RunScenario executes a scenario as a subtest and validates every step.
func RunScenario(t *testing.T, scenario Scenario) {
	t.Helper()
	t.Run(scenario.Name, func(t *testing.T) {
		m, rec := NewMachine(t, scenario.Schema, scenario.Compile, scenario.Options...)
		ctx := context.Background()

		for i, step := range scenario.Steps {
			before := rec.Len()

			if step.Trigger != "" {
				err := m.Trigger(ctx, step.Trigger)
				if step.WantErr != nil {
					require.ErrorIs(t, err, step.WantErr, "step %d (%s)", i, step.Trigger)
				} else {
					require.NoError(t, err, "step %d (%s)", i, step.Trigger)
				}
			}

			if step.Wait > 0 {
				time.Sleep(step.Wait)
			}

			if step.WantState != "" {
				require.Equal(t, step.WantState, m.State(), "step %d: state", i)
			}

			require.Equal(t, step.Notifications, rec.Len()-before, "step %d: notifications", i)
		}

		AssertMatches(t, rec, scenario.Matchers...)
	})
}

// MatterScenario drives PhasesOfMatter through melt, an inapplicable melt,
// an unknown trigger, and back.
func MatterScenario() Scenario {
	return Scenario{
		Name:   "Phases of matter",
		Schema: PhasesOfMatter(),
		Steps: []Step{
			{Trigger: "melt", WantState: "liquid", Notifications: 1},
			{Trigger: "melt", WantState: "liquid", Notifications: 0},
			{Trigger: "fly", WantErr: statemachine.ErrUnknownTrigger, WantState: "liquid", Notifications: 0},
			{Trigger: "freeze", WantState: "solid", Notifications: 1},
			{Trigger: "melt", WantState: "liquid", Notifications: 1},
			{Trigger: "evaporate", WantState: "gas", Notifications: 1},
			{Trigger: "freeze", WantState: "gas", Notifications: 0},
		},
		Matchers: []Matcher{
			TransitionWasTaken("solid", "liquid"),
			TransitionWasTaken("liquid", "gas"),
			ChangeCount(4),
		},
	}
}

// ExpiryScenario lets Expiring(d) time out.
func ExpiryScenario(d time.Duration) Scenario {
	return Scenario{
		Name:   "Pending expires",
		Schema: Expiring(d),
		Steps: []Step{
			{WantState: "pending"},
			{Wait: d * 3, WantState: "expired", Notifications: 1},
			{Wait: d * 2, WantState: "expired", Notifications: 0},
		},
		Matchers: []Matcher{
			TimeoutFired("pending", "expired"),
			ChangeCount(1),
		},
	}
}

// CancelledExpiryScenario leaves the timed state before the timeout elapses.
func CancelledExpiryScenario(d time.Duration) Scenario {
	return Scenario{
		Name:   "Approval cancels expiry",
		Schema: Expiring(d),
		Steps: []Step{
			{Trigger: "approve", WantState: "approved", Notifications: 1},
			{Wait: d * 3, WantState: "approved", Notifications: 0},
		},
		Matchers: []Matcher{
			StateWasVisited("approved"),
			Not(StateWasVisited("expired")),
		},
	}
}
