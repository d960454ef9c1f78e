package visualizer

// Themes.
const (
	ThemeDefault = "default"
	ThemeDark    = "dark"
	ThemeForest  = "forest"
)

var themes = map[string]map[string]string{ //nolint:gochecknoglobals
	ThemeDefault: {
		"timedState":  "fill:#e1f5ff,stroke:#01579b,stroke-width:2px",
		"highlighted": "fill:#fff9c4,stroke:#f57f17,stroke-width:3px",
	},
	ThemeDark: {
		"timedState":  "fill:#263238,stroke:#80cbc4,color:#eceff1,stroke-width:2px",
		"highlighted": "fill:#4e342e,stroke:#ffb300,color:#fff8e1,stroke-width:3px",
	},
	ThemeForest: {
		"timedState":  "fill:#c8e6c9,stroke:#2e7d32,stroke-width:2px",
		"highlighted": "fill:#f0f4c3,stroke:#827717,stroke-width:3px",
	},
}

// Options configures the visualization output.
type Options struct {
	// ShowTriggers labels edges with their trigger names
	ShowTriggers bool

	// ShowTimeouts draws timeout transitions, labelled "after <duration>"
	ShowTimeouts bool

	// ShowTerminal marks states without outgoing transitions as end states
	ShowTerminal bool

	// Direction controls diagram flow: "TB" (top-bottom) or "LR" (left-right)
	Direction string

	// HighlightPath highlights a specific state path through the diagram
	HighlightPath []string

	// Theme controls the color scheme: "default", "dark", "forest"
	Theme string
}

// DefaultOptions returns sensible defaults for visualization.
func DefaultOptions() Options {
	return Options{
		ShowTriggers: true,
		ShowTimeouts: true,
		ShowTerminal: true,
		Direction:    "TB",
		Theme:        ThemeDefault,
	}
}

// WithShowTriggers enables/disables trigger labels.
func (o Options) WithShowTriggers(show bool) Options {
	o.ShowTriggers = show

	return o
}

// WithShowTimeouts enables/disables timeout edges.
func (o Options) WithShowTimeouts(show bool) Options {
	o.ShowTimeouts = show

	return o
}

// WithShowTerminal enables/disables end state markers.
func (o Options) WithShowTerminal(show bool) Options {
	o.ShowTerminal = show

	return o
}

// WithDirection sets the diagram direction.
func (o Options) WithDirection(direction string) Options {
	o.Direction = direction

	return o
}

// WithHighlightPath sets states to highlight.
func (o Options) WithHighlightPath(path []string) Options {
	o.HighlightPath = path

	return o
}

// WithTheme sets the color theme.
func (o Options) WithTheme(theme string) Options {
	o.Theme = theme

	return o
}
