// Package build reports version metadata for fsmctl.
//
// Release builds inject it with -ldflags:
//
//	go build -ldflags "-X github.com/amp-labs/amp-fsm/build.Version=v1.4.0 \
//	    -X 'github.com/amp-labs/amp-fsm/build.InfoJSON={\"git_commit\":\"abc123\"}'" ./cmd/fsmctl
//
// Anything not injected is filled from the module build info when available.
package build

import (
	"encoding/json"
	"log/slog"
	"runtime/debug"
	"sort"
	"strings"
)

var (
	// Version is the release version. "dev" for local builds.
	Version = "dev" //nolint:gochecknoglobals

	// InfoJSON is a JSON encoded Info set at link time.
	InfoJSON = "" //nolint:gochecknoglobals
)

// Info contains build metadata.
type Info struct {
	Version      string            `json:"version"`
	GitCommit    string            `json:"git_commit"` //nolint:tagliatelle
	GitBranch    string            `json:"git_branch"` //nolint:tagliatelle
	GitDate      string            `json:"git_date"`   //nolint:tagliatelle
	BuildTime    string            `json:"build_time"` //nolint:tagliatelle
	GoVersion    string            `json:"go_version"` //nolint:tagliatelle
	Dependencies map[string]string `json:"dependencies"`
}

// Parse deserializes a JSON string into build Info.
// Returns (nil, false) if the input is empty, "{}", or fails to parse.
func Parse(js string) (*Info, bool) {
	if len(js) == 0 || js == "{}" {
		return nil, false
	}

	var info Info

	err := json.Unmarshal([]byte(js), &info)
	if err != nil {
		slog.Warn("Failed to parse build info from JSON",
			"data", js,
			"error", err)

		return nil, false
	}

	return &info, true
}

// Get returns the injected metadata, completed from the embedded module build info.
func Get() Info {
	info := Info{}
	if parsed, ok := Parse(InfoJSON); ok {
		info = *parsed
	}

	if info.Version == "" {
		info.Version = Version
	}

	if bi, ok := debug.ReadBuildInfo(); ok {
		fill(&info, bi)
	}

	return info
}

func fill(info *Info, bi *debug.BuildInfo) {
	if info.GoVersion == "" {
		info.GoVersion = bi.GoVersion
	}

	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.GitCommit == "" {
				info.GitCommit = s.Value
			}
		case "vcs.time":
			if info.GitDate == "" {
				info.GitDate = s.Value
			}
		}
	}

	if info.Dependencies == nil && len(bi.Deps) > 0 {
		info.Dependencies = make(map[string]string, len(bi.Deps))
		for _, dep := range bi.Deps {
			info.Dependencies[dep.Path] = dep.Version
		}
	}
}

// String renders the one-line form printed by "fsmctl version".
func (i Info) String() string {
	parts := []string{i.Version}

	if i.GitCommit != "" {
		commit := i.GitCommit
		if len(commit) > 12 { //nolint:mnd
			commit = commit[:12]
		}

		parts = append(parts, "commit "+commit)
	}

	if i.GitDate != "" {
		parts = append(parts, i.GitDate)
	}

	if i.GoVersion != "" {
		parts = append(parts, i.GoVersion)
	}

	return strings.Join(parts, ", ")
}

// SortedDependencies lists dependencies as "path version", sorted by path.
func (i Info) SortedDependencies() []string {
	out := make([]string, 0, len(i.Dependencies))
	for path, version := range i.Dependencies {
		out = append(out, path+" "+version)
	}

	sort.Strings(out)

	return out
}
