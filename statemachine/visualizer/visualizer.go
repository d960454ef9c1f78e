// Package visualizer generates Mermaid state diagrams from compiled schemas.
//
//nolint:varnamelen // short names idiomatic
package visualizer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/amp-labs/amp-fsm/statemachine"
)

// Visualizer errors.
var (
	ErrSchemaNil      = errors.New("schema cannot be nil")
	ErrNoInitialState = errors.New("schema must have an initial state")
)

// GenerateMermaid converts a Schema to a Mermaid state diagram.
func GenerateMermaid(schema *statemachine.Schema) (string, error) {
	return GenerateMermaidWithOptions(schema, DefaultOptions())
}

// GenerateMermaidFromFile compiles a schema file and generates a Mermaid diagram.
func GenerateMermaidFromFile(path string) (string, error) {
	schema, err := statemachine.LoadConfig(path)
	if err != nil {
		return "", fmt.Errorf("failed to load schema: %w", err)
	}

	return GenerateMermaid(schema)
}

// GenerateMermaidWithOptions generates a Mermaid diagram with custom options.
func GenerateMermaidWithOptions(schema *statemachine.Schema, opts Options) (string, error) {
	if schema == nil {
		return "", ErrSchemaNil
	}

	if schema.Initial() == "" {
		return "", ErrNoInitialState
	}

	states := schema.States()

	// Mermaid identifiers cannot hold arbitrary text, so every state gets a
	// positional id and its name as the label.
	ids := make(map[string]string, len(states))
	for i, st := range states {
		ids[st.Name] = fmt.Sprintf("s%d", i)
	}

	highlight := make(map[string]bool, len(opts.HighlightPath))
	for _, name := range opts.HighlightPath {
		highlight[name] = true
	}

	outgoing := make(map[string][]statemachine.Transition)
	for _, tr := range schema.Transitions() {
		outgoing[tr.Source] = append(outgoing[tr.Source], tr)
	}

	var sb strings.Builder

	sb.WriteString("```mermaid\n")
	sb.WriteString("stateDiagram-v2\n")

	if opts.Direction != "" {
		fmt.Fprintf(&sb, "    direction %s\n", opts.Direction)
	}

	for _, st := range states {
		fmt.Fprintf(&sb, "    state %q as %s\n", st.Name, ids[st.Name])
	}

	fmt.Fprintf(&sb, "    [*] --> %s\n", ids[schema.Initial()])

	for _, st := range states {
		id := ids[st.Name]

		switch {
		case highlight[st.Name]:
			fmt.Fprintf(&sb, "    class %s highlighted\n", id)
		case st.HasTimeout():
			fmt.Fprintf(&sb, "    class %s timedState\n", id)
		}

		for _, tr := range outgoing[st.Name] {
			label := ""
			if opts.ShowTriggers {
				label = ": " + escapeLabel(tr.Trigger)
			}

			fmt.Fprintf(&sb, "    %s --> %s%s\n", id, ids[tr.Destination], label)
		}

		if st.HasTimeout() && opts.ShowTimeouts {
			fmt.Fprintf(&sb, "    %s --> %s: after %s\n", id, ids[st.Timeout.Target], st.Timeout.After)
		}

		if opts.ShowTerminal && len(outgoing[st.Name]) == 0 && !st.HasTimeout() {
			fmt.Fprintf(&sb, "    %s --> [*]\n", id)
		}
	}

	theme := themes[opts.Theme]
	if theme == nil {
		theme = themes[ThemeDefault]
	}

	sb.WriteString("\n")
	fmt.Fprintf(&sb, "    classDef timedState %s\n", theme["timedState"])
	fmt.Fprintf(&sb, "    classDef highlighted %s\n", theme["highlighted"])

	sb.WriteString("```\n")

	return sb.String(), nil
}

// escapeLabel keeps a trigger name from breaking the edge syntax.
func escapeLabel(s string) string {
	return strings.NewReplacer(":", "#58;", "\n", " ").Replace(s)
}
