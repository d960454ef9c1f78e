package testing

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Matcher errors.
var (
	ErrNoChangesRecorded   = errors.New("no state changes recorded")
	ErrNoMatchersPassed    = errors.New("no matchers passed")
	ErrStateNotVisited     = errors.New("state was not visited")
	ErrTransitionNotTaken  = errors.New("transition was not taken")
	ErrTimeoutNotFired     = errors.New("timeout transition did not fire")
	ErrChangeCountMismatch = errors.New("unexpected number of state changes")
	ErrMatcherPassed       = errors.New("matcher unexpectedly passed")
)

// Matcher defines an assertion over the changes a Recorder saw.
type Matcher interface {
	Match(rec *Recorder) (bool, error)
	Description() string
}

// AssertMatches reports every matcher that does not pass.
func AssertMatches(t *testing.T, rec *Recorder, matchers ...Matcher) {
	t.Helper()

	for _, m := range matchers {
		ok, err := m.Match(rec)
		assert.True(t, ok, "%s: %v", m.Description(), err)
	}
}

// StateWasVisited creates a matcher that checks if a state was entered.
func StateWasVisited(name string) Matcher {
	return &stateVisitedMatcher{stateName: name}
}

type stateVisitedMatcher struct {
	stateName string
}

func (m *stateVisitedMatcher) Match(rec *Recorder) (bool, error) {
	for _, c := range rec.Changes() {
		if c.To == m.stateName {
			return true, nil
		}
	}

	return false, fmt.Errorf("%w: '%s'", ErrStateNotVisited, m.stateName)
}

func (m *stateVisitedMatcher) Description() string {
	return fmt.Sprintf("state '%s' should be visited", m.stateName)
}

// TransitionWasTaken creates a matcher that checks if a transition occurred.
func TransitionWasTaken(from, to string) Matcher {
	return &transitionTakenMatcher{from: from, to: to}
}

type transitionTakenMatcher struct {
	from string
	to   string
}

func (m *transitionTakenMatcher) Match(rec *Recorder) (bool, error) {
	for _, c := range rec.Changes() {
		if c.From == m.from && c.To == m.to {
			return true, nil
		}
	}

	return false, fmt.Errorf("%w: from '%s' to '%s'", ErrTransitionNotTaken, m.from, m.to)
}

func (m *transitionTakenMatcher) Description() string {
	return fmt.Sprintf("transition from '%s' to '%s' should be taken", m.from, m.to)
}

// TimeoutFired creates a matcher that checks a timeout transition occurred.
func TimeoutFired(from, to string) Matcher {
	return &timeoutFiredMatcher{from: from, to: to}
}

type timeoutFiredMatcher struct {
	from string
	to   string
}

func (m *timeoutFiredMatcher) Match(rec *Recorder) (bool, error) {
	for _, c := range rec.Changes() {
		if c.Timeout && c.From == m.from && c.To == m.to {
			return true, nil
		}
	}

	return false, fmt.Errorf("%w: from '%s' to '%s'", ErrTimeoutNotFired, m.from, m.to)
}

func (m *timeoutFiredMatcher) Description() string {
	return fmt.Sprintf("timeout from '%s' to '%s' should fire", m.from, m.to)
}

// ChangeCount creates a matcher that checks the exact number of changes.
func ChangeCount(n int) Matcher {
	return &changeCountMatcher{want: n}
}

type changeCountMatcher struct {
	want int
}

func (m *changeCountMatcher) Match(rec *Recorder) (bool, error) {
	if got := rec.Len(); got != m.want {
		if got == 0 {
			return false, ErrNoChangesRecorded
		}

		return false, fmt.Errorf("%w: got %d, want %d", ErrChangeCountMismatch, got, m.want)
	}

	return true, nil
}

func (m *changeCountMatcher) Description() string {
	return fmt.Sprintf("exactly %d state changes should be recorded", m.want)
}

// Not inverts a matcher.
func Not(matcher Matcher) Matcher {
	return &notMatcher{matcher: matcher}
}

type notMatcher struct {
	matcher Matcher
}

func (m *notMatcher) Match(rec *Recorder) (bool, error) {
	ok, _ := m.matcher.Match(rec)
	if ok {
		return false, fmt.Errorf("%w: %s", ErrMatcherPassed, m.matcher.Description())
	}

	return true, nil
}

func (m *notMatcher) Description() string {
	return "not: " + m.matcher.Description()
}

// All creates a matcher that requires all sub-matchers to pass.
func All(matchers ...Matcher) Matcher {
	return &allMatcher{matchers: matchers}
}

type allMatcher struct {
	matchers []Matcher
}

func (m *allMatcher) Match(rec *Recorder) (bool, error) {
	for _, matcher := range m.matchers {
		matched, err := matcher.Match(rec)
		if !matched || err != nil {
			return false, err
		}
	}

	return true, nil
}

func (m *allMatcher) Description() string {
	return "all matchers should pass"
}

// Any creates a matcher that requires at least one sub-matcher to pass.
func Any(matchers ...Matcher) Matcher {
	return &anyMatcher{matchers: matchers}
}

type anyMatcher struct {
	matchers []Matcher
}

func (m *anyMatcher) Match(rec *Recorder) (bool, error) {
	for _, matcher := range m.matchers {
		matched, err := matcher.Match(rec)
		if matched && err == nil {
			return true, nil
		}
	}

	return false, ErrNoMatchersPassed
}

func (m *anyMatcher) Description() string {
	return "at least one matcher should pass"
}
