package testing

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/amp-labs/amp-fsm/statemachine"
)

// PhasesOfMatter is a three state schema without timeouts:
// solid -melt-> liquid -evaporate-> gas, liquid -freeze-> solid.
func PhasesOfMatter() string {
	return `{
  "state": {"status": "solid"},
  "transitions": {
    "solid": {"melt": "liquid"},
    "liquid": {"evaporate": "gas", "freeze": "solid"},
    "gas": {}
  }
}`
}

// Expiring is a schema whose initial state "pending" moves to "expired"
// after d unless "approve" moves it to "approved" first. "retry" re-enters
// "pending" and restarts the deadline.
func Expiring(d time.Duration) string {
	return fmt.Sprintf(`
state:
  status: pending
transitions:
  pending:
    timeout:
      after: %s
      to: expired
    approve: approved
    retry: pending
  approved:
    reopen: pending
  expired:
    reopen: pending
`, d)
}

// Chain is a schema of n timed states, each moving to the next after d, the
// last one terminal.
func Chain(n int, d time.Duration) string {
	doc := "state:\n  status: step0\ntransitions:\n"

	for i := range n - 1 {
		doc += fmt.Sprintf("  step%d:\n    timeout: {after: %s, to: step%d}\n    skip: step%d\n", i, d, i+1, n-1)
	}

	return doc + fmt.Sprintf("  step%d: {}\n", n-1)
}

// LoadTestSchema compiles a schema from the testdata directory.
func LoadTestSchema(name string, opts ...statemachine.CompileOption) (*statemachine.Schema, error) {
	return statemachine.LoadConfig(filepath.Join("testdata", name), opts...)
}

// WriteTestSchema writes doc to dir/name and returns the path.
func WriteTestSchema(dir, name, doc string) (string, error) {
	path := filepath.Join(dir, name)

	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		return "", fmt.Errorf("failed to write schema: %w", err)
	}

	return path, nil
}
