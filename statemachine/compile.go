package statemachine

import (
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// Reserved keys of the schema document.
const (
	keyState       = "state"
	keyStatus      = "status"
	keyTransitions = "transitions"
	keyTimeout     = "timeout"
	keyAfter       = "after"
	keyTo          = "to"
)

// DuplicatePolicy decides what happens when a state declares the same trigger twice.
type DuplicatePolicy int

const (
	// DuplicatesReject reports a duplicate_trigger error.
	DuplicatesReject DuplicatePolicy = iota
	// DuplicatesLastWins keeps the last declaration and logs a warning. Older
	// schemas relied on this.
	DuplicatesLastWins
)

type compileOptions struct {
	id         string
	duplicates DuplicatePolicy
	logger     *slog.Logger
	sourceName string
	maxSize    int64
}

// CompileOption configures Compile.
type CompileOption func(*compileOptions)

// WithID sets the schema identity used to derive synthetic timeout triggers.
// A random UUID is used when unset.
func WithID(id string) CompileOption {
	return func(o *compileOptions) {
		o.id = id
	}
}

// WithDuplicateTriggers sets the duplicate trigger policy.
func WithDuplicateTriggers(policy DuplicatePolicy) CompileOption {
	return func(o *compileOptions) {
		o.duplicates = policy
	}
}

// WithCompileLogger sets the logger for compile warnings.
func WithCompileLogger(logger *slog.Logger) CompileOption {
	return func(o *compileOptions) {
		o.logger = logger
	}
}

// WithSourceName records where the document came from. The extension is used
// as a compression hint (".br") and the name appears in log lines.
func WithSourceName(name string) CompileOption {
	return func(o *compileOptions) {
		o.sourceName = name
	}
}

// WithMaxDocumentSize bounds the decompressed document size.
func WithMaxDocumentSize(n int64) CompileOption {
	return func(o *compileOptions) {
		o.maxSize = n
	}
}

// codeRank orders diagnostics by validation rule; within a rule they keep document order.
var codeRank = map[string]int{ //nolint:gochecknoglobals
	CodeSchemaParseError: 1,
	CodeNoStateOrStatus:  2,
	CodeNoTransitions:    3,
	CodeDuplicateState:   4,
	CodeDuplicateTrigger: 4,
	CodeUnknownState:     5,
	CodeInvalidTimeout:   6,
	CodeInvalidTrigger:   7,
}

type collector struct {
	errs []FieldError
}

func (c *collector) add(field, code, format string, args ...any) {
	c.errs = append(c.errs, FieldError{Field: field, Code: code, Message: fmt.Sprintf(format, args...)})
}

func (c *collector) err() error {
	if len(c.errs) == 0 {
		return nil
	}

	slices.SortStableFunc(c.errs, func(a, b FieldError) int {
		return codeRank[a.Code] - codeRank[b.Code]
	})

	for _, fe := range c.errs {
		recordCompileFailure(fe.Code)
	}

	return &CompileError{fields: c.errs}
}

// compiler holds the state of one Compile call.
type compiler struct {
	opts   compileOptions
	errs   collector
	schema *Schema
	// destinations are resolved after every state has been seen.
	refs []stateRef
}

type stateRef struct {
	field string
	name  string
}

// Compile parses and validates a schema document. The document is JSON or
// YAML of the form
//
//	state:
//	  status: <initial>
//	transitions:
//	  <state>:
//	    timeout: {after: <seconds or duration>, to: <state>}
//	    <trigger>: <destination>
//
// Compressed and non-UTF-8 documents are decoded transparently. On failure a
// *CompileError carrying every problem found is returned and no schema is produced.
func Compile(raw []byte, opts ...CompileOption) (*Schema, error) {
	options := compileOptions{
		duplicates: DuplicatesReject,
		maxSize:    DefaultMaxDocumentSize,
	}

	for _, opt := range opts {
		opt(&options)
	}

	if options.id == "" {
		options.id = uuid.NewString()
	}

	if options.logger == nil {
		options.logger = slog.Default()
	}

	c := &compiler{
		opts: options,
		schema: &Schema{
			id:    options.id,
			index: make(map[string]int),
		},
	}

	return c.compile(raw)
}

func (c *compiler) compile(raw []byte) (*Schema, error) {
	data, err := decodeDocument(raw, c.opts.sourceName, c.opts.maxSize)
	if err != nil {
		c.errs.add("", CodeSchemaParseError, "%v", err)

		return nil, c.errs.err()
	}

	var doc yaml.Node

	if err := yaml.Unmarshal(data, &doc); err != nil {
		c.errs.add("", CodeSchemaParseError, "%v", err)

		return nil, c.errs.err()
	}

	root := documentRoot(&doc)
	if root == nil || root.Kind != yaml.MappingNode {
		c.errs.add("", CodeSchemaParseError, "document must be a mapping with %q and %q", keyState, keyTransitions)

		return nil, c.errs.err()
	}

	top := c.mapping("", root)

	c.initialState(top[keyState])
	declared := c.transitions(top[keyTransitions])

	if declared {
		c.resolveReferences()
	}

	c.checkSyntheticCollisions()

	if err := c.errs.err(); err != nil {
		return nil, err
	}

	return c.schema, nil
}

func documentRoot(doc *yaml.Node) *yaml.Node {
	node := doc
	if node.Kind == yaml.DocumentNode {
		if len(node.Content) == 0 {
			return nil
		}

		node = node.Content[0]
	}

	for node.Kind == yaml.AliasNode && node.Alias != nil {
		node = node.Alias
	}

	if node.Kind == 0 {
		return nil
	}

	return node
}

// mapping indexes a mapping node by key. Repeated keys are reported; the first one is kept.
func (c *compiler) mapping(field string, node *yaml.Node) map[string]*yaml.Node {
	out := make(map[string]*yaml.Node, len(node.Content)/2)

	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		if _, dup := out[key]; dup {
			c.errs.add(join(field, key), CodeSchemaParseError, "key %q declared more than once", key)

			continue
		}

		out[key] = node.Content[i+1]
	}

	return out
}

func (c *compiler) initialState(node *yaml.Node) {
	if isNull(node) {
		c.errs.add(keyState, CodeNoStateOrStatus, "no initial state: %q is missing", keyState)

		return
	}

	if node.Kind != yaml.MappingNode {
		c.errs.add(keyState, CodeNoStateOrStatus, "%q must be a mapping with a %q entry", keyState, keyStatus)

		return
	}

	status := c.mapping(keyState, node)[keyStatus]

	name, ok := scalarString(status)
	if !ok || name == "" {
		c.errs.add(join(keyState, keyStatus), CodeNoStateOrStatus, "no initial state: %q is missing or empty", keyStatus)

		return
	}

	c.schema.initial = normalize(name)
	c.refs = append(c.refs, stateRef{field: join(keyState, keyStatus), name: c.schema.initial})
}

// transitions compiles the per-state table and reports whether any state was declared.
func (c *compiler) transitions(node *yaml.Node) bool {
	if isNull(node) || (node.Kind == yaml.MappingNode && len(node.Content) == 0) {
		c.errs.add(keyTransitions, CodeNoTransitions, "no transitions declared")

		return false
	}

	if node.Kind != yaml.MappingNode {
		c.errs.add(keyTransitions, CodeSchemaParseError, "%q must be a mapping of states", keyTransitions)

		return false
	}

	rules := 0

	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, body := node.Content[i], node.Content[i+1]

		raw, ok := scalarString(keyNode)
		if !ok || raw == "" {
			c.errs.add(join(keyTransitions, keyNode.Value), CodeSchemaParseError, "state name must be a non-empty string")

			continue
		}

		name := normalize(raw)
		field := join(keyTransitions, name)

		if _, dup := c.schema.index[name]; dup {
			c.errs.add(field, CodeDuplicateState, "state %q declared more than once", name)

			continue
		}

		c.schema.index[name] = len(c.schema.states)
		c.schema.states = append(c.schema.states, State{Name: name})

		rules += c.stateBody(field, name, body)
	}

	if rules == 0 && len(c.schema.states) > 0 {
		c.errs.add(keyTransitions, CodeNoTransitions, "no state declares a trigger or timeout")
	}

	return len(c.schema.states) > 0
}

// stateBody compiles the triggers and timeout of one state and returns how many rules it declared.
func (c *compiler) stateBody(field, source string, body *yaml.Node) int {
	if isNull(body) {
		return 0
	}

	if body.Kind != yaml.MappingNode {
		c.errs.add(field, CodeSchemaParseError, "state %q must be a mapping of triggers", source)

		return 0
	}

	var (
		rules       int
		seenTimeout bool
		byTrigger   = make(map[string]int)
	)

	for i := 0; i+1 < len(body.Content); i += 2 {
		keyNode, value := body.Content[i], body.Content[i+1]

		if keyNode.Value == keyTimeout {
			if seenTimeout {
				c.errs.add(join(field, keyTimeout), CodeInvalidTimeout, "timeout declared more than once")

				continue
			}

			seenTimeout = true

			if c.timeout(join(field, keyTimeout), source, value) {
				rules++
			}

			continue
		}

		raw, ok := scalarString(keyNode)
		if !ok || raw == "" {
			c.errs.add(join(field, keyNode.Value), CodeInvalidTrigger, "trigger name must be a non-empty string")

			continue
		}

		trigger := normalize(raw)
		tfield := join(field, trigger)

		dest, ok := scalarString(value)
		if !ok || dest == "" {
			c.errs.add(tfield, CodeInvalidTrigger, "destination of %q must be a state name", trigger)

			continue
		}

		dest = normalize(dest)

		if at, dup := byTrigger[trigger]; dup {
			if c.opts.duplicates == DuplicatesReject {
				c.errs.add(tfield, CodeDuplicateTrigger, "trigger %q declared more than once for state %q", trigger, source)

				continue
			}

			c.opts.logger.Warn("Duplicate trigger, last declaration wins",
				"source", c.opts.sourceName,
				"state", source,
				"trigger", trigger,
				"previous", c.schema.transitions[at].Destination,
				"destination", dest,
			)

			c.schema.transitions[at].Destination = dest
			c.refs = append(c.refs, stateRef{field: tfield, name: dest})

			continue
		}

		byTrigger[trigger] = len(c.schema.transitions)
		c.schema.transitions = append(c.schema.transitions, Transition{
			Trigger:     trigger,
			Source:      source,
			Destination: dest,
		})
		c.refs = append(c.refs, stateRef{field: tfield, name: dest})
		rules++
	}

	return rules
}

func (c *compiler) timeout(field, source string, node *yaml.Node) bool {
	if isNull(node) || node.Kind != yaml.MappingNode {
		c.errs.add(field, CodeInvalidTimeout, "timeout must be a mapping with %q and %q", keyAfter, keyTo)

		return false
	}

	entries := c.mapping(field, node)
	valid := true

	for i := 0; i < len(node.Content); i += 2 {
		if k := node.Content[i].Value; k != keyAfter && k != keyTo {
			c.errs.add(join(field, k), CodeInvalidTimeout, "unexpected key %q", k)

			valid = false
		}
	}

	after, err := parseAfter(entries[keyAfter])
	if err != nil {
		c.errs.add(join(field, keyAfter), CodeInvalidTimeout, "%v", err)

		valid = false
	}

	target, ok := scalarString(entries[keyTo])
	if !ok || target == "" {
		c.errs.add(join(field, keyTo), CodeInvalidTimeout, "timeout target must be a state name")

		valid = false
	}

	if !valid {
		return false
	}

	target = normalize(target)
	c.refs = append(c.refs, stateRef{field: join(field, keyTo), name: target})

	st := &c.schema.states[c.schema.index[source]]
	st.Timeout = Timeout{
		After:   after,
		Target:  target,
		Trigger: SyntheticTrigger(c.schema.id, target),
	}

	return true
}

// parseAfter accepts a number of seconds or a Go duration string.
func parseAfter(node *yaml.Node) (time.Duration, error) {
	if isNull(node) {
		return 0, fmt.Errorf("%q is required", keyAfter)
	}

	if node.Kind != yaml.ScalarNode {
		return 0, fmt.Errorf("%q must be a number of seconds or a duration", keyAfter)
	}

	var d time.Duration

	if secs, err := strconv.ParseFloat(node.Value, 64); err == nil {
		if math.IsNaN(secs) || math.IsInf(secs, 0) || secs > math.MaxInt64/float64(time.Second) {
			return 0, fmt.Errorf("%q is out of range: %s", keyAfter, node.Value)
		}

		d = time.Duration(secs * float64(time.Second))
	} else {
		parsed, err := time.ParseDuration(node.Value)
		if err != nil {
			return 0, fmt.Errorf("%q must be a number of seconds or a duration: %s", keyAfter, node.Value)
		}

		d = parsed
	}

	if d <= 0 {
		return 0, fmt.Errorf("%q must be positive: %s", keyAfter, node.Value)
	}

	return d, nil
}

func (c *compiler) resolveReferences() {
	for _, ref := range c.refs {
		if _, ok := c.schema.index[ref.name]; !ok {
			c.errs.add(ref.field, CodeUnknownState, "state %q is not declared", ref.name)
		}
	}
}

// checkSyntheticCollisions rejects user triggers that shadow a timeout trigger.
func (c *compiler) checkSyntheticCollisions() {
	synthetic := make(map[string]bool)

	for _, st := range c.schema.states {
		if st.HasTimeout() {
			synthetic[st.Timeout.Trigger] = true
		}
	}

	for _, tr := range c.schema.transitions {
		if synthetic[tr.Trigger] {
			c.errs.add(join(keyTransitions, tr.Source, tr.Trigger), CodeInvalidTrigger,
				"trigger %q is reserved for a timeout transition", tr.Trigger)
		}
	}
}

func isNull(node *yaml.Node) bool {
	return node == nil || node.Kind == 0 || (node.Kind == yaml.ScalarNode && node.Tag == "!!null")
}

func scalarString(node *yaml.Node) (string, bool) {
	if isNull(node) {
		return "", false
	}

	for node.Kind == yaml.AliasNode && node.Alias != nil {
		node = node.Alias
	}

	if node.Kind != yaml.ScalarNode {
		return "", false
	}

	return node.Value, true
}

func normalize(name string) string {
	return norm.NFC.String(name)
}

func join(parts ...string) string {
	out := ""

	for _, p := range parts {
		if p == "" {
			continue
		}

		if out != "" {
			out += "."
		}

		out += p
	}

	return out
}
