package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/amp-labs/amp-fsm/cli"
	"github.com/amp-labs/amp-fsm/envutil"
	"github.com/amp-labs/amp-fsm/hook"
	"github.com/amp-labs/amp-fsm/logger"
	"github.com/amp-labs/amp-fsm/should"
	"github.com/amp-labs/amp-fsm/statemachine"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultHookTimeout = 30 * time.Second
	readHeaderTimeout  = 5 * time.Second
)

var errUnknownTriggers = errors.New("unknown triggers were sent")

type runFlags struct {
	schemaFlags

	name        string
	machineID   string
	onChange    string
	hookTimeout time.Duration
	interactive bool
	metricsAddr string
	wait        time.Duration
	mailbox     int
}

func (a *app) run(ctx context.Context, args []string) error {
	fs := a.newFlagSet("run")

	var rf runFlags

	rf.register(ctx, fs)

	fs.StringVar(&rf.name, "name", envutil.String(ctx, "FSM_NAME").ValueOrElse(""),
		"machine display name used in logs, metrics and errors (env FSM_NAME)")
	fs.StringVar(&rf.machineID, "machine-id", "", "machine instance id; random when empty")
	fs.StringVar(&rf.onChange, "on-change", envutil.String(ctx, "FSM_ON_CHANGE").ValueOrElse(""),
		"shell command run after every state change, with FSM_* variables set (env FSM_ON_CHANGE)")
	fs.DurationVar(&rf.hookTimeout, "hook-timeout", defaultHookTimeout, "time limit for one -on-change run")
	fs.BoolVar(&rf.interactive, "interactive", false, "pick triggers from a menu")
	fs.StringVar(&rf.metricsAddr, "metrics-addr", envutil.String(ctx, "FSM_METRICS_ADDR").ValueOrElse(""),
		"serve Prometheus metrics on this address (env FSM_METRICS_ADDR)")
	fs.DurationVar(&rf.wait, "wait", 0, "keep running this long after the input ends so timeouts can fire")
	fs.IntVar(&rf.mailbox, "mailbox", 0, "pending request capacity; 0 keeps the default")

	if err := parse(fs, args); err != nil {
		return err
	}

	schema, err := rf.load(ctx)
	if err != nil {
		return err
	}

	if rf.metricsAddr != "" {
		stop, err := serveMetrics(ctx, rf.metricsAddr)
		if err != nil {
			return err
		}

		defer stop()
	}

	out := &syncWriter{w: a.stdout}

	notifiers := []statemachine.Notifier{printer(out)}

	if rf.onChange != "" {
		onChange := statemachine.NewAsyncNotifier(&hook.Hook{
			Command: "sh",
			Args:    []string{"-c", rf.onChange},
			Timeout: rf.hookTimeout,
		})

		defer should.Close(ctx, onChange, "failed to drain on-change hooks")

		notifiers = append(notifiers, onChange)
	}

	opts := []statemachine.Option{
		statemachine.WithNotifier(statemachine.Notifiers(notifiers...)),
	}

	if rf.name != "" {
		opts = append(opts, statemachine.WithName(rf.name))
	}

	if rf.machineID != "" {
		opts = append(opts, statemachine.WithMachineID(rf.machineID))
	}

	if rf.mailbox > 0 {
		opts = append(opts, statemachine.WithMailboxDepth(rf.mailbox))
	}

	machine := statemachine.New(ctx, statemachine.BuildTable(schema), opts...)
	defer should.Close(ctx, machine, "failed to stop machine")

	ctx = logger.WithMachine(ctx, machine.ID(), machine.Name())

	switch {
	case rf.interactive:
		err = a.interactive(ctx, machine, out)
	case fs.NArg() > 0:
		err = fire(ctx, machine, fs.Args(), a.stderr)
	default:
		var triggers []string

		triggers, err = readTriggers(a.stdin)
		if err == nil {
			err = fire(ctx, machine, triggers, a.stderr)
		}
	}

	if rf.wait > 0 && err == nil {
		select {
		case <-ctx.Done():
		case <-machine.Done():
		case <-time.After(rf.wait):
		}
	}

	out.printf("state: %s\n", machine.State())

	return err
}

// fire sends each trigger in order. Unknown triggers are reported and the
// run continues; the first other failure stops it.
func fire(ctx context.Context, machine *statemachine.Machine, triggers []string, stderr io.Writer) error {
	unknown := 0

	for _, trigger := range triggers {
		err := machine.Trigger(ctx, trigger)

		var unknownErr *statemachine.UnknownTriggerError

		switch {
		case err == nil:
		case errors.As(err, &unknownErr):
			unknown++

			_, _ = fmt.Fprintln(stderr, err)
		default:
			return err
		}
	}

	if unknown > 0 {
		return fmt.Errorf("%w: %d", errUnknownTriggers, unknown)
	}

	return nil
}

// readTriggers reads one trigger per line. Blank lines and lines starting
// with '#' are ignored. Nothing is returned if the input cannot be read to
// the end.
func readTriggers(r io.Reader) ([]string, error) {
	var triggers []string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		triggers = append(triggers, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read triggers: %w", err)
	}

	return triggers, nil
}

func (a *app) interactive(ctx context.Context, machine *statemachine.Machine, out *syncWriter) error {
	stdin := io.NopCloser(a.stdin)
	stdout := nopWriteCloser{out}

	for {
		out.printf("%s", cli.Banner(machine.Name()+"\n"+machine.State(), cli.DefaultWidth, cli.AlignCenter))

		trigger, err := cli.TriggerSelect{
			Label:      "Trigger",
			Triggers:   machine.AvailableTriggers(),
			AllowOther: true,
			Stdin:      stdin,
			Stdout:     stdout,
		}.Run()
		if errors.Is(err, cli.ErrQuit) {
			if _, timed := machine.Table().Timeout(machine.State()); !timed {
				return nil
			}

			quit, err := cli.PromptConfirm("A timeout is pending, quit anyway", stdin, stdout)
			if err != nil || quit {
				return err
			}

			continue
		}

		if err != nil {
			return err
		}

		if err := machine.Trigger(ctx, trigger); err != nil {
			var unknownErr *statemachine.UnknownTriggerError
			if !errors.As(err, &unknownErr) {
				return err
			}

			out.printf("%v\n", err)
		}
	}
}

// printer writes one line per committed change.
func printer(out *syncWriter) statemachine.Notifier { //nolint:ireturn
	return statemachine.NotifierFunc(func(_ context.Context, change statemachine.Change) {
		trigger := change.Trigger
		if change.Timeout {
			trigger = "timeout"
		}

		out.printf("%s: %s -> %s\n", trigger, change.From, change.To)
	})
}

func serveMetrics(ctx context.Context, addr string) (func(), error) {
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen for metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Get(ctx).Error("metrics server failed", "error", err)
		}
	}()

	logger.Get(ctx).Info("serving metrics", "addr", "http://"+ln.Addr().String()+"/metrics")

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), readHeaderTimeout)
		defer cancel()

		_ = srv.Shutdown(shutdownCtx)
	}, nil
}

// syncWriter serializes writes from the sequencer and the command loop.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.w.Write(p)
}

func (s *syncWriter) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(s, format, args...)
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
