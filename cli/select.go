// Package cli holds the interactive terminal helpers used by fsmctl.
package cli

import (
	"errors"
	"io"
	"slices"
	"strings"

	"facette.io/natsort"
	"github.com/manifoldco/promptui"
)

const (
	itemQuit  = "[Quit]"
	itemOther = "[Other...]"
)

var (
	// ErrQuit is returned when the user picks the quit entry.
	ErrQuit = errors.New("quit")

	// ErrNoTriggers is returned when there is nothing to select and no free-form entry.
	ErrNoTriggers = errors.New("no triggers available")
)

// TriggerSelect asks the user for the next trigger to fire.
type TriggerSelect struct {
	// Label is shown above the list, e.g. the machine name and state.
	Label string

	// Triggers are the triggers valid from the current state.
	Triggers []string

	// AllowOther adds an entry for typing any trigger name, including ones
	// the machine does not recognize.
	AllowOther bool

	Stdin  io.ReadCloser
	Stdout io.WriteCloser
}

// triggerItems orders triggers naturally, behind the quit entry and ahead of
// the free-form entry.
func triggerItems(triggers []string, allowOther bool) []string {
	sorted := slices.Clone(triggers)
	natsort.Sort(sorted)
	sorted = slices.Compact(sorted)

	items := append([]string{itemQuit}, sorted...)
	if allowOther {
		items = append(items, itemOther)
	}

	return items
}

// searcher matches triggers by prefix and never matches the control entries.
func searcher(items []string) func(input string, index int) bool {
	return func(input string, index int) bool {
		item := items[index]
		if item == itemQuit || item == itemOther || input == "" {
			return false
		}

		return strings.HasPrefix(item, input)
	}
}

// Run shows the list and returns the chosen trigger.
func (s TriggerSelect) Run() (string, error) {
	if len(s.Triggers) == 0 && !s.AllowOther {
		return "", ErrNoTriggers
	}

	items := triggerItems(s.Triggers, s.AllowOther)

	sel := &promptui.Select{
		Label:    s.Label,
		Items:    items,
		Searcher: searcher(items),
		Stdin:    s.Stdin,
		Stdout:   s.Stdout,
	}

	_, value, err := sel.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
			return "", ErrQuit
		}

		return "", err
	}

	switch value {
	case itemQuit:
		return "", ErrQuit
	case itemOther:
		return promptString("Trigger", s.Stdin, s.Stdout)
	default:
		return value, nil
	}
}
