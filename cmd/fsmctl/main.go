// Command fsmctl validates, draws and runs declarative state machines.
//
//	fsmctl validate -schema door.yaml
//	fsmctl graph -schema https://example.com/door.yaml.br -direction LR
//	fsmctl run -schema door.yaml open close
//	fsmctl run -schema door.yaml -interactive -on-change 'notify-send "$FSM_TO"'
package main

import (
	"context"
	"os"
	"time"

	"github.com/amp-labs/amp-fsm/logger"
	"github.com/amp-labs/amp-fsm/shutdown"
	"github.com/amp-labs/amp-fsm/stage"
	"github.com/amp-labs/amp-fsm/startup"
	"github.com/amp-labs/amp-fsm/telemetry"
)

const (
	appName              = "fsmctl"
	telemetryStopTimeout = 5 * time.Second
)

func main() {
	ctx := shutdown.SetupHandler()
	ctx = logger.WithSubsystem(ctx, appName)

	envErr := startup.ConfigureEnvironment(ctx)

	logger.ConfigureLogging(ctx, appName)

	if envErr != nil {
		logger.Fatal("failed to load environment files", "error", envErr)
	}

	cfg, err := telemetry.LoadConfigFromEnv(ctx, string(stage.Current(ctx)))
	if err != nil {
		logger.Fatal("failed to load telemetry config", "error", err)
	}

	if err := telemetry.Initialize(ctx, cfg); err != nil {
		logger.Get(ctx).Error("failed to initialize telemetry", "error", err)
	}

	if h := telemetry.LogHandler(appName); h != nil {
		logger.ConfigureLogging(ctx, appName, logger.WithHandler(h))
	}

	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), telemetryStopTimeout)
	if err := telemetry.Shutdown(stopCtx); err != nil {
		logger.Get(ctx).Error("failed to shut down telemetry", "error", err)
	}

	cancel()

	os.Exit(code) //nolint:gocritic
}
