package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/amp-labs/amp-fsm/build"
	"github.com/amp-labs/amp-fsm/envutil"
	"github.com/amp-labs/amp-fsm/fetch"
	"github.com/amp-labs/amp-fsm/logger"
	"github.com/amp-labs/amp-fsm/statemachine"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

const usage = `usage: fsmctl <command> [flags] [args]

commands:
  validate   compile a schema and report every error
  graph      print a Mermaid state diagram
  run        drive a machine with triggers from args, stdin or a prompt
  version    print build information

Run "fsmctl <command> -h" for the flags of a command.
`

// app carries the process streams so commands can be driven from tests.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	a := &app{stdin: stdin, stdout: stdout, stderr: stderr}

	if len(args) == 0 {
		_, _ = fmt.Fprint(stderr, usage)

		return exitUsage
	}

	var cmd func(context.Context, []string) error

	switch args[0] {
	case "validate":
		cmd = a.validate
	case "graph":
		cmd = a.graph
	case "run":
		cmd = a.run
	case "version":
		cmd = a.version
	case "help", "-h", "-help", "--help":
		_, _ = fmt.Fprint(stdout, usage)

		return exitOK
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)

		return exitUsage
	}

	err := cmd(ctx, args[1:])

	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, flag.ErrHelp):
		return exitOK
	case errors.Is(err, errUsage):
		return exitUsage
	default:
		_, _ = fmt.Fprintf(stderr, "fsmctl %s: %v\n", args[0], err)

		return exitError
	}
}

var errUsage = errors.New("usage error")

func (a *app) version(_ context.Context, args []string) error {
	fs := a.newFlagSet("version")
	deps := fs.Bool("deps", false, "also list module dependencies")

	if err := parse(fs, args); err != nil {
		return err
	}

	info := build.Get()

	_, _ = fmt.Fprintf(a.stdout, "fsmctl %s\n", info)

	if *deps {
		for _, dep := range info.SortedDependencies() {
			_, _ = fmt.Fprintf(a.stdout, "  %s\n", dep)
		}
	}

	return nil
}

// newFlagSet returns a flag set that reports parse problems on stderr.
func (a *app) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)

	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}

		return fmt.Errorf("%w: %w", errUsage, err)
	}

	return nil
}

// schemaFlags are shared by every command that loads a schema.
type schemaFlags struct {
	schema   string
	dir      string
	id       string
	lastWins bool
	maxSize  int64
	dnsCache bool
}

func (s *schemaFlags) register(ctx context.Context, fs *flag.FlagSet) {
	fs.StringVar(&s.schema, "schema", envutil.String(ctx, "FSM_SCHEMA").ValueOrElse(""),
		"schema file, http(s) URL, or name resolved in -schema-dir (env FSM_SCHEMA)")
	fs.StringVar(&s.dir, "schema-dir", envutil.String(ctx, "FSM_SCHEMA_DIR", envutil.Default(".")).ValueOrElse("."),
		"directory searched for schemas given by name (env FSM_SCHEMA_DIR)")
	fs.StringVar(&s.id, "id", "", "schema identity used for synthetic timeout triggers")
	fs.BoolVar(&s.lastWins, "duplicates-last-wins", false,
		"accept duplicate triggers in a state, keeping the last one")
	fs.Int64Var(&s.maxSize, "max-size", 0, "maximum decompressed schema size in bytes")
	fs.BoolVar(&s.dnsCache, "dns-cache", false, "cache DNS lookups when fetching schemas")
}

// load resolves the schema argument as a URL, a path, or a name, in that order.
func (s *schemaFlags) load(ctx context.Context) (*statemachine.Schema, error) {
	if s.schema == "" {
		return nil, fmt.Errorf("%w: -schema is required", errUsage)
	}

	opts := []statemachine.CompileOption{
		statemachine.WithCompileLogger(logger.Get(ctx)),
	}

	if s.id != "" {
		opts = append(opts, statemachine.WithID(s.id))
	}

	if s.lastWins {
		opts = append(opts, statemachine.WithDuplicateTriggers(statemachine.DuplicatesLastWins))
	}

	if s.maxSize > 0 {
		opts = append(opts, statemachine.WithMaxDocumentSize(s.maxSize))
	}

	if fetch.IsURL(s.schema) {
		var fetchOpts []fetch.Option
		if s.dnsCache {
			fetchOpts = append(fetchOpts, fetch.EnableDNSCache)
		}

		if s.maxSize > 0 {
			fetchOpts = append(fetchOpts, fetch.WithMaxBytes(s.maxSize))
		}

		data, name, err := fetch.Schema(ctx, s.schema, fetchOpts...)
		if err != nil {
			return nil, err
		}

		return statemachine.LoadConfigFromBytes(data, append(opts, statemachine.WithSourceName(name))...)
	}

	if filepath.Ext(s.schema) == "" && !strings.ContainsAny(s.schema, `/\`) {
		statemachine.SetConfigLoader(&statemachine.FSConfigLoader{FS: os.DirFS(s.dir)})
	}

	return statemachine.LoadConfig(s.schema, opts...)
}

// splitList parses a comma separated flag value, dropping empty entries.
func splitList(s string) []string {
	var out []string

	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}

	return out
}
