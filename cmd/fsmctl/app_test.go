package main

import (
	"bufio"
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	smtesting "github.com/amp-labs/amp-fsm/statemachine/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBrokenStdin = errors.New("broken stdin")

type result struct {
	code   int
	stdout string
	stderr string
}

func runCLI(t *testing.T, stdin string, args ...string) result {
	t.Helper()

	var stdout, stderr bytes.Buffer

	code := run(t.Context(), args, strings.NewReader(stdin), &stdout, &stderr)

	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func writeSchema(t *testing.T, name, doc string) string {
	t.Helper()

	path, err := smtesting.WriteTestSchema(t.TempDir(), name, doc)
	require.NoError(t, err)

	return path
}

func TestRun_Usage(t *testing.T) {
	t.Parallel()

	res := runCLI(t, "")
	assert.Equal(t, exitUsage, res.code)
	assert.Contains(t, res.stderr, "usage: fsmctl")

	res = runCLI(t, "", "explode")
	assert.Equal(t, exitUsage, res.code)
	assert.Contains(t, res.stderr, `unknown command "explode"`)

	res = runCLI(t, "", "help")
	assert.Equal(t, exitOK, res.code)
	assert.Contains(t, res.stdout, "validate")

	res = runCLI(t, "", "validate", "-h")
	assert.Equal(t, exitOK, res.code)
	assert.Contains(t, res.stderr, "-schema")

	res = runCLI(t, "", "validate", "-bogus")
	assert.Equal(t, exitUsage, res.code)

	res = runCLI(t, "", "validate")
	assert.Equal(t, exitUsage, res.code)
	assert.Contains(t, res.stderr, "-schema is required")
}

func TestVersion(t *testing.T) {
	t.Parallel()

	res := runCLI(t, "", "version")
	require.Equal(t, exitOK, res.code, res.stderr)
	assert.True(t, strings.HasPrefix(res.stdout, "fsmctl dev"), res.stdout)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	t.Run("valid", func(t *testing.T) {
		t.Parallel()

		path := writeSchema(t, "matter.json", smtesting.PhasesOfMatter())

		res := runCLI(t, "", "validate", "-schema", path)
		require.Equal(t, exitOK, res.code, res.stderr)
		assert.Equal(t, "ok: initial \"solid\", 3 states (0 timed), 3 transitions\n", res.stdout)
	})

	t.Run("timed", func(t *testing.T) {
		t.Parallel()

		path := writeSchema(t, "expiring.yaml", smtesting.Expiring(time.Minute))

		res := runCLI(t, "", "validate", "-schema", path)
		require.Equal(t, exitOK, res.code, res.stderr)
		assert.Equal(t, "ok: initial \"pending\", 3 states (1 timed), 4 transitions\n", res.stdout)
	})

	t.Run("invalid", func(t *testing.T) {
		t.Parallel()

		path := writeSchema(t, "broken.yaml", `
state:
  status: idle
transitions:
  idle:
    start: running
    timeout:
      after: -1
      to: idle
`)

		res := runCLI(t, "", "validate", "-schema", path)
		assert.Equal(t, exitError, res.code)
		assert.Equal(t,
			"[unknown_state] transitions.idle.start: state \"running\" is not declared\n"+
				"[invalid_timeout] transitions.idle.timeout.after: \"after\" must be positive: -1\n",
			res.stdout)
		assert.Contains(t, res.stderr, "schema is invalid: 2 error(s)")
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		res := runCLI(t, "", "validate", "-schema", filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Equal(t, exitError, res.code)
		assert.Contains(t, res.stderr, "failed to read schema file")
	})

	t.Run("by name", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		_, err := smtesting.WriteTestSchema(dir, "matter.json", smtesting.PhasesOfMatter())
		require.NoError(t, err)

		res := runCLI(t, "", "validate", "-schema-dir", dir, "-schema", "matter")
		require.Equal(t, exitOK, res.code, res.stderr)
		assert.Contains(t, res.stdout, "3 states")
	})
}

func TestGraph(t *testing.T) {
	t.Parallel()

	path := writeSchema(t, "expiring.yaml", smtesting.Expiring(time.Minute))

	res := runCLI(t, "", "graph", "-schema", path, "-direction", "LR", "-highlight", "pending, approved")
	require.Equal(t, exitOK, res.code, res.stderr)

	assert.Contains(t, res.stdout, "stateDiagram-v2\n")
	assert.Contains(t, res.stdout, "    direction LR\n")
	assert.Contains(t, res.stdout, "    class s0 highlighted\n")
	assert.Contains(t, res.stdout, "    s0 --> s2: after 1m0s\n")
	assert.Contains(t, res.stdout, "    s0 --> s1: approve\n")

	res = runCLI(t, "", "graph", "-schema", path, "-no-triggers", "-no-timeouts")
	require.Equal(t, exitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "    s0 --> s1\n")
	assert.NotContains(t, res.stdout, "after 1m0s")
}

func TestGraph_FromURL(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/schemas/matter.json" {
			http.NotFound(w, r)

			return
		}

		_, _ = w.Write([]byte(smtesting.PhasesOfMatter()))
	}))
	t.Cleanup(srv.Close)

	res := runCLI(t, "", "graph", "-schema", srv.URL+"/schemas/matter.json")
	require.Equal(t, exitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, `state "solid" as s0`)

	res = runCLI(t, "", "graph", "-schema", srv.URL+"/schemas/missing.json")
	assert.Equal(t, exitError, res.code)
	assert.Contains(t, res.stderr, "404")
}

func TestRunCommand_Args(t *testing.T) {
	t.Parallel()

	path := writeSchema(t, "matter.json", smtesting.PhasesOfMatter())

	res := runCLI(t, "", "run", "-schema", path, "-name", "matter", "melt", "freeze", "melt", "evaporate")
	require.Equal(t, exitOK, res.code, res.stderr)
	assert.Equal(t,
		"melt: solid -> liquid\n"+
			"freeze: liquid -> solid\n"+
			"melt: solid -> liquid\n"+
			"evaporate: liquid -> gas\n"+
			"state: gas\n",
		res.stdout)
}

func TestRunCommand_Stdin(t *testing.T) {
	t.Parallel()

	path := writeSchema(t, "matter.json", smtesting.PhasesOfMatter())

	res := runCLI(t, "melt\n\n# skipped from liquid\nmelt\n  evaporate  \n", "run", "-schema", path)
	require.Equal(t, exitOK, res.code, res.stderr)
	assert.Equal(t, "melt: solid -> liquid\nevaporate: liquid -> gas\nstate: gas\n", res.stdout)
}

func TestRunCommand_UnknownTrigger(t *testing.T) {
	t.Parallel()

	path := writeSchema(t, "matter.json", smtesting.PhasesOfMatter())

	res := runCLI(t, "", "run", "-schema", path, "-name", "matter", "fly", "melt")
	assert.Equal(t, exitError, res.code)
	assert.Equal(t, "melt: solid -> liquid\nstate: liquid\n", res.stdout)
	assert.Contains(t, res.stderr, "'fly' is not a possible trigger on 'matter'")
	assert.Contains(t, res.stderr, "unknown triggers were sent: 1")
}

func TestRunCommand_TimeoutFires(t *testing.T) {
	t.Parallel()

	path := writeSchema(t, "expiring.yaml", smtesting.Expiring(50*time.Millisecond))

	res := runCLI(t, "", "run", "-schema", path, "-wait", "500ms")
	require.Equal(t, exitOK, res.code, res.stderr)
	assert.Equal(t, "timeout: pending -> expired\nstate: expired\n", res.stdout)
}

func TestRunCommand_OnChange(t *testing.T) {
	t.Parallel()

	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	path := writeSchema(t, "matter.json", smtesting.PhasesOfMatter())
	log := filepath.Join(t.TempDir(), "changes.log")

	res := runCLI(t, "", "run", "-schema", path, "-name", "matter",
		"-on-change", `echo "$FSM_MACHINE $FSM_TRIGGER $FSM_FROM $FSM_TO" >> "`+log+`"`,
		"melt", "evaporate")
	require.Equal(t, exitOK, res.code, res.stderr)

	data, err := os.ReadFile(log)
	require.NoError(t, err)
	assert.Equal(t, "matter melt solid liquid\nmatter evaporate liquid gas\n", string(data))
}

func TestRunCommand_Metrics(t *testing.T) {
	t.Parallel()

	path := writeSchema(t, "matter.json", smtesting.PhasesOfMatter())

	res := runCLI(t, "", "run", "-schema", path, "-metrics-addr", "127.0.0.1:0", "melt")
	require.Equal(t, exitOK, res.code, res.stderr)
	assert.Equal(t, "melt: solid -> liquid\nstate: liquid\n", res.stdout)
}

func TestReadTriggers(t *testing.T) {
	t.Parallel()

	triggers, err := readTriggers(strings.NewReader("a\n#x\n\n b c \n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b c"}, triggers)

	triggers, err = readTriggers(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, triggers)

	_, err = readTriggers(strings.NewReader("melt\n" + strings.Repeat("x", bufio.MaxScanTokenSize+1)))
	require.ErrorIs(t, err, bufio.ErrTooLong)

	_, err = readTriggers(iotest.ErrReader(errBrokenStdin))
	require.ErrorIs(t, err, errBrokenStdin)
}

func TestRunCommand_StdinReadError(t *testing.T) {
	t.Parallel()

	path := writeSchema(t, "matter.json", smtesting.PhasesOfMatter())

	res := runCLI(t, "melt\n"+strings.Repeat("x", bufio.MaxScanTokenSize+1), "run", "-schema", path)
	assert.Equal(t, exitError, res.code)
	assert.Equal(t, "state: solid\n", res.stdout)
	assert.Contains(t, res.stderr, "failed to read triggers")
}

func TestSplitList(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"a", "b"}, splitList(" a,,b ,"))
	assert.Empty(t, splitList(""))
}
