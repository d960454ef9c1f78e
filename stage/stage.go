// Package stage identifies the environment fsmctl runs in, from RUNNING_ENV.
package stage

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/amp-labs/amp-fsm/envutil"
)

type Stage string

var ErrUnrecognizedStage = errors.New("unrecognized stage")

const (
	Unknown Stage = "unknown"
	Local   Stage = "local"
	Test    Stage = "test"
	Dev     Stage = "dev"
	Staging Stage = "staging"
	Prod    Stage = "prod"
)

func parse(s string) (Stage, error) {
	switch Stage(s) {
	case Local, Test, Dev, Staging, Prod:
		return Stage(s), nil
	case Unknown:
		fallthrough
	default:
		return "", fmt.Errorf("%w: %s", ErrUnrecognizedStage, s)
	}
}

// Current returns the configured stage. An unset or invalid RUNNING_ENV means
// Test under "go test" and Local otherwise; invalid values are logged.
func Current(ctx context.Context) Stage {
	env := envutil.Map(envutil.String(ctx, "RUNNING_ENV"), parse)

	if flag.Lookup("test.v") != nil {
		return env.ValueOrElse(Test)
	}

	return env.ValueOrElse(Local)
}
