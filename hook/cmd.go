package hook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// waitDelay bounds how long Run waits for output pipes after the process
// group has been killed.
const waitDelay = time.Second

// Cmd is a small builder around exec.Cmd.
type Cmd struct {
	cmd      *exec.Cmd
	finished []func()
}

// NewCmd prepares cmd with the current process environment.
func NewCmd(ctx context.Context, cmd string, args ...string) *Cmd {
	c := exec.CommandContext(ctx, cmd, args...)
	c.Env = os.Environ()

	return &Cmd{
		cmd: c,
	}
}

func (c *Cmd) SetStdinBytes(input []byte) *Cmd {
	c.cmd.Stdin = bytes.NewReader(input)

	return c
}

// SetOutputObserver collects stdout and stderr and hands them to f once the
// command has finished.
func (c *Cmd) SetOutputObserver(f func([]byte)) *Cmd {
	var buf bytes.Buffer

	c.cmd.Stdout = &buf
	c.cmd.Stderr = &buf

	c.finished = append(c.finished, func() {
		f(buf.Bytes())
	})

	return c
}

// SetOwnProcessGroup starts the command in a new process group and kills the
// whole group when the context ends, so children of a shell go down with it.
func (c *Cmd) SetOwnProcessGroup() *Cmd {
	modSysProcAttr(c.cmd, func(sa *syscall.SysProcAttr) {
		sa.Setpgid = true
		sa.Pgid = 0
	})

	c.cmd.Cancel = func() error {
		return syscall.Kill(-c.cmd.Process.Pid, syscall.SIGKILL)
	}
	c.cmd.WaitDelay = waitDelay

	return c
}

func (c *Cmd) AppendEnv(key, value string) *Cmd {
	c.cmd.Env = append(c.cmd.Env, key+"="+value)

	return c
}

var errCommandFailed = errors.New("command failed")

func status(err error) (int, error) {
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), fmt.Errorf("%w: %w", errCommandFailed, exitErr)
	}

	return -1, err
}

// Run runs the command and returns its exit status.
func (c *Cmd) Run() (int, error) {
	slog.Debug("run cmd", "cmd", strings.Join(c.cmd.Args, " "))

	err := c.cmd.Run()

	st, err := status(err)

	for _, f := range c.finished {
		f()
	}

	return st, err
}

func modSysProcAttr(cmd *exec.Cmd, f func(sa *syscall.SysProcAttr)) {
	if cmd == nil {
		return
	}

	if cmd.SysProcAttr == nil {
		a := &syscall.SysProcAttr{}
		f(a)
		cmd.SysProcAttr = a
	} else {
		f(cmd.SysProcAttr)
	}
}
