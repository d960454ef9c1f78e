package statemachine

// Feature is a capability bitmask advertised to hosts.
type Feature uint32

// FeatureTransition means the machine accepts trigger invocations.
const FeatureTransition Feature = 1

// Observation is what a host shows for a machine: its current state and
// what it supports.
type Observation struct {
	Machine  string
	Name     string
	State    string
	Features Feature
}

// Supports reports whether every bit of f is set.
func (o Observation) Supports(f Feature) bool {
	return o.Features&f == f
}
