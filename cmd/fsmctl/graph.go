package main

import (
	"context"
	"fmt"

	"github.com/amp-labs/amp-fsm/statemachine/visualizer"
)

func (a *app) graph(ctx context.Context, args []string) error {
	fs := a.newFlagSet("graph")

	var sf schemaFlags

	sf.register(ctx, fs)

	opts := visualizer.DefaultOptions()

	direction := fs.String("direction", opts.Direction, "diagram direction: TB or LR")
	theme := fs.String("theme", opts.Theme, "color theme: default, dark or forest")
	highlight := fs.String("highlight", "", "comma separated states to highlight")
	noTriggers := fs.Bool("no-triggers", false, "omit trigger labels")
	noTimeouts := fs.Bool("no-timeouts", false, "omit timeout edges")
	noTerminal := fs.Bool("no-terminal", false, "omit end state markers")

	if err := parse(fs, args); err != nil {
		return err
	}

	schema, err := sf.load(ctx)
	if err != nil {
		return err
	}

	opts = opts.
		WithDirection(*direction).
		WithTheme(*theme).
		WithHighlightPath(splitList(*highlight)).
		WithShowTriggers(!*noTriggers).
		WithShowTimeouts(!*noTimeouts).
		WithShowTerminal(!*noTerminal)

	diagram, err := visualizer.GenerateMermaidWithOptions(schema, opts)
	if err != nil {
		return err
	}

	_, err = fmt.Fprint(a.stdout, diagram)

	return err
}
