// Package startup prepares the process environment before configuration is read.
//
// ENV_FILE names one or more dotenv files, separated by semicolons. Their
// variables are set in the process unless already present:
//
//	ENV_FILE=".env;.env.local" fsmctl run -schema door.yaml
package startup

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/amp-labs/amp-fsm/envutil"
	"github.com/amp-labs/amp-fsm/logger"
	"github.com/joho/godotenv"
)

type Option func(*options)

type options struct {
	allowOverride bool
}

// WithAllowOverride lets file values replace variables already in the environment.
func WithAllowOverride(allowOverride bool) Option {
	return func(o *options) {
		o.allowOverride = allowOverride
	}
}

// ConfigureEnvironment loads the files listed in ENV_FILE.
func ConfigureEnvironment(ctx context.Context, opts ...Option) error {
	envFiles := envutil.Map(envutil.String(ctx, "ENV_FILE"), sanitizeEnvFileList).ValueOrElse(nil)

	return ConfigureEnvironmentFromFiles(ctx, envFiles, opts...)
}

// ConfigureEnvironmentFromFiles loads the given dotenv files in order; later
// files win over earlier ones.
func ConfigureEnvironmentFromFiles(ctx context.Context, envFiles []string, opts ...Option) error {
	cfg := &options{}

	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}

	if len(envFiles) == 0 {
		return nil
	}

	env := make(map[string]string)

	for _, file := range envFiles {
		values, err := godotenv.Read(file)
		if err != nil {
			return fmt.Errorf("loading environment variables from file %q: %w", file, err)
		}

		for k, v := range values {
			env[k] = v
		}
	}

	set := 0

	for k, v := range env {
		oldValue, exists := os.LookupEnv(k)
		if exists && (!cfg.allowOverride || oldValue == v) {
			continue
		}

		if err := os.Setenv(k, v); err != nil {
			return fmt.Errorf("setting environment variable %q: %w", k, err)
		}

		set++
	}

	logger.Get(ctx).Debug("loaded environment files", "files", envFiles, "set", set, "read", len(env))

	return nil
}

// sanitizeEnvFileList splits ENV_FILE on semicolons and drops blank entries.
func sanitizeEnvFileList(in string) ([]string, error) {
	var out []string

	for _, s := range strings.Split(in, ";") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}

	return out, nil
}
