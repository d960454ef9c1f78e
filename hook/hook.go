// Package hook runs an external command for every state change of a machine.
//
// The command receives the change in its environment:
//
//	FSM_MACHINE_ID, FSM_MACHINE, FSM_FROM, FSM_TO, FSM_TRIGGER, FSM_TIMEOUT
//
// and as a JSON object on stdin.
package hook

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/amp-labs/amp-fsm/logger"
	"github.com/amp-labs/amp-fsm/statemachine"
)

const defaultTimeout = 30 * time.Second

// payload is the JSON document written to the command's stdin.
type payload struct {
	MachineID string    `json:"machine_id"`
	Machine   string    `json:"machine"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Trigger   string    `json:"trigger"`
	Timeout   bool      `json:"timeout"`
	At        time.Time `json:"at"`
}

// Hook is a statemachine.Notifier that runs a command per change. It blocks
// until the command exits, so wrap it in a statemachine.AsyncNotifier.
type Hook struct {
	Command string
	Args    []string

	// Timeout bounds each run. Zero means 30 seconds.
	Timeout time.Duration
}

var _ statemachine.Notifier = (*Hook)(nil)

func (h *Hook) StateChanged(ctx context.Context, change statemachine.Change) {
	if _, err := h.Run(ctx, change); err != nil {
		logger.Get(ctx).Error("on-change hook failed",
			"command", h.Command,
			"machine", change.Name,
			"from", change.From,
			"to", change.To,
			"error", err)
	}
}

// Run runs the command for one change and returns its combined output.
func (h *Hook) Run(ctx context.Context, change statemachine.Change) ([]byte, error) {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	input, err := json.Marshal(payload{
		MachineID: change.Machine,
		Machine:   change.Name,
		From:      change.From,
		To:        change.To,
		Trigger:   change.Trigger,
		Timeout:   change.Timeout,
		At:        change.At,
	})
	if err != nil {
		return nil, err
	}

	var output []byte

	_, err = NewCmd(ctx, h.Command, h.Args...).
		SetOwnProcessGroup().
		AppendEnv("FSM_MACHINE_ID", change.Machine).
		AppendEnv("FSM_MACHINE", change.Name).
		AppendEnv("FSM_FROM", change.From).
		AppendEnv("FSM_TO", change.To).
		AppendEnv("FSM_TRIGGER", change.Trigger).
		AppendEnv("FSM_TIMEOUT", strconv.FormatBool(change.Timeout)).
		SetStdinBytes(input).
		SetOutputObserver(func(b []byte) { output = b }).
		Run()
	if err != nil {
		return output, logger.AnnotateError(err, "output", string(output))
	}

	logger.Get(ctx).Debug("on-change hook ran", "command", h.Command, "to", change.To)

	return output, nil
}
