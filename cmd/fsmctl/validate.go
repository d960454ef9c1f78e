package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/amp-labs/amp-fsm/statemachine"
)

var errInvalidSchema = errors.New("schema is invalid")

func (a *app) validate(ctx context.Context, args []string) error {
	fs := a.newFlagSet("validate")

	var sf schemaFlags

	sf.register(ctx, fs)

	if err := parse(fs, args); err != nil {
		return err
	}

	schema, err := sf.load(ctx)
	if err != nil {
		var compileErr *statemachine.CompileError
		if !errors.As(err, &compileErr) {
			return err
		}

		for _, f := range compileErr.Fields() {
			_, _ = fmt.Fprintln(a.stdout, f.Error())
		}

		return fmt.Errorf("%w: %d error(s)", errInvalidSchema, len(compileErr.Fields()))
	}

	timed := 0

	for _, st := range schema.States() {
		if st.HasTimeout() {
			timed++
		}
	}

	_, _ = fmt.Fprintf(a.stdout, "ok: initial %q, %d states (%d timed), %d transitions\n",
		schema.Initial(), len(schema.States()), timed, len(schema.Transitions()))

	return nil
}
