package statemachine

import (
	"errors"
	"fmt"
	"strings"
)

// Validation codes reported by Compile. The first three are the codes the
// configuration forms have always rendered; the rest are stricter checks.
const (
	CodeSchemaParseError = "schema_parse_error"
	CodeNoStateOrStatus  = "no_state_or_status"
	CodeNoTransitions    = "no_transitions"
	CodeDuplicateState   = "duplicate_state"
	CodeDuplicateTrigger = "duplicate_trigger"
	CodeInvalidTrigger   = "invalid_trigger"
	CodeInvalidTimeout   = "invalid_timeout"
	CodeUnknownState     = "unknown_state"
)

// Predefined error types.
var (
	// ErrSchemaParse indicates that the document is not well-formed structured data.
	ErrSchemaParse = errors.New("schema could not be parsed")
	// ErrMissingInitialState indicates that the document does not designate an initial state.
	ErrMissingInitialState = errors.New("no initial state declared")
	// ErrNoTransitions indicates that the document declares no transitions at all.
	ErrNoTransitions = errors.New("no transitions declared")
	// ErrDuplicateState indicates that a state is declared more than once.
	ErrDuplicateState = errors.New("state declared more than once")
	// ErrDuplicateTrigger indicates that a trigger is declared twice from the same state.
	ErrDuplicateTrigger = errors.New("trigger declared more than once for the same state")
	// ErrInvalidTrigger indicates an empty, malformed, or reserved trigger entry.
	ErrInvalidTrigger = errors.New("invalid trigger")
	// ErrInvalidTimeout indicates a malformed timeout entry.
	ErrInvalidTimeout = errors.New("invalid timeout")
	// ErrUnknownState indicates a reference to a state that is not declared.
	ErrUnknownState = errors.New("state is not declared")

	// ErrUnknownTrigger indicates that no state of the machine recognizes the trigger.
	ErrUnknownTrigger = errors.New("unknown trigger")
	// ErrMachineClosed indicates that the machine no longer accepts triggers.
	ErrMachineClosed = errors.New("machine is closed")
	// ErrMachinePanic indicates that a transition step panicked inside the sequencer.
	ErrMachinePanic = errors.New("panic in machine")
	// ErrNoConfigLoader indicates that no config loader is registered.
	ErrNoConfigLoader = errors.New("no config loader registered; use SetConfigLoader() or provide a file path")
	// ErrDocumentTooLarge indicates that a (decompressed) document exceeds the size limit.
	ErrDocumentTooLarge = errors.New("schema document too large")
)

var codeSentinels = map[string]error{ //nolint:gochecknoglobals
	CodeSchemaParseError: ErrSchemaParse,
	CodeNoStateOrStatus:  ErrMissingInitialState,
	CodeNoTransitions:    ErrNoTransitions,
	CodeDuplicateState:   ErrDuplicateState,
	CodeDuplicateTrigger: ErrDuplicateTrigger,
	CodeInvalidTrigger:   ErrInvalidTrigger,
	CodeInvalidTimeout:   ErrInvalidTimeout,
	CodeUnknownState:     ErrUnknownState,
}

// FieldError is a single validation failure, addressed by the dotted path of
// the offending document field (for example "transitions.liquid.freeze").
type FieldError struct {
	Field   string
	Code    string
	Message string
}

func (e FieldError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}

	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Unwrap returns the sentinel matching the error code.
func (e FieldError) Unwrap() error {
	return codeSentinels[e.Code]
}

// CompileError carries every field error found in a document, so callers can
// render them together rather than one at a time.
type CompileError struct {
	fields []FieldError
}

func (e *CompileError) Error() string {
	msgs := make([]string, len(e.fields))
	for i, f := range e.fields {
		msgs[i] = f.Error()
	}

	return fmt.Sprintf("schema has %d error(s): %s", len(e.fields), strings.Join(msgs, "; "))
}

// Unwrap exposes each field error, so errors.Is(err, ErrNoTransitions) works.
func (e *CompileError) Unwrap() []error {
	errs := make([]error, len(e.fields))
	for i, f := range e.fields {
		errs[i] = f
	}

	return errs
}

// Fields returns a copy of the field errors in the order they were found.
func (e *CompileError) Fields() []FieldError {
	out := make([]FieldError, len(e.fields))
	copy(out, e.fields)

	return out
}

// Codes returns the distinct error codes in the order they were first seen.
func (e *CompileError) Codes() []string {
	seen := make(map[string]bool, len(e.fields))
	codes := make([]string, 0, len(e.fields))

	for _, f := range e.fields {
		if !seen[f.Code] {
			seen[f.Code] = true
			codes = append(codes, f.Code)
		}
	}

	return codes
}

// UnknownTriggerError is returned when a trigger is not recognized by any state.
type UnknownTriggerError struct {
	Machine string
	Trigger string
}

func (e *UnknownTriggerError) Error() string {
	return fmt.Sprintf("'%s' is not a possible trigger on '%s'", e.Trigger, e.Machine)
}

func (e *UnknownTriggerError) Unwrap() error {
	return ErrUnknownTrigger
}

// IsUnknownTriggerError reports whether err is (or wraps) an UnknownTriggerError.
func IsUnknownTriggerError(err error) bool {
	var e *UnknownTriggerError

	return errors.As(err, &e)
}

// StateError records the state a machine was in when a step failed. A
// recovered panic reaches the caller of Trigger as a StateError wrapping
// ErrMachinePanic.
type StateError struct {
	State string
	Err   error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("state %s: %v", e.State, e.Err)
}

func (e *StateError) Unwrap() error {
	return e.Err
}

// WrapStateError wraps err with the state it happened in; nil stays nil.
func WrapStateError(state string, err error) error {
	if err == nil {
		return nil
	}

	return &StateError{
		State: state,
		Err:   err,
	}
}
