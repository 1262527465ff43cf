package rom

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for common operations.
var (
	// ErrTupleCountMismatch is returned when an operation that expects at most
	// (or exactly) one tuple encounters a different number of tuples.
	ErrTupleCountMismatch = errors.New("rom: tuple count mismatch")

	// ErrArgument is returned when a relation, view or command is invoked
	// with arguments it cannot accept.
	ErrArgument = errors.New("rom: invalid arguments")

	// ErrNotImplemented is returned by abstract operations that require an
	// adapter-specific implementation.
	ErrNotImplemented = errors.New("rom: not implemented")

	// ErrNoMethod is returned when a view or forwarded operation does not exist.
	ErrNoMethod = errors.New("rom: undefined method")

	// ErrKeyMissing is returned when a command input path cannot be resolved.
	ErrKeyMissing = errors.New("rom: input key missing")
)

// TupleCountMismatchError represents a cardinality violation.
type TupleCountMismatchError struct {
	label string
	count int // Number of tuples found (-1 if unknown)
}

// Error returns the error string.
func (e *TupleCountMismatchError) Error() string {
	if e.count >= 0 {
		return fmt.Sprintf("rom: %s expects one tuple (got %d)", e.label, e.count)
	}
	return fmt.Sprintf("rom: %s expects one tuple", e.label)
}

// Is reports whether the target error matches TupleCountMismatchError.
func (e *TupleCountMismatchError) Is(err error) bool {
	return err == ErrTupleCountMismatch
}

// Count returns the number of tuples found, or -1 if unknown.
func (e *TupleCountMismatchError) Count() int {
	return e.count
}

// NewTupleCountMismatchError returns a new TupleCountMismatchError.
func NewTupleCountMismatchError(label string, count int) *TupleCountMismatchError {
	return &TupleCountMismatchError{label: label, count: count}
}

// IsTupleCountMismatch returns true if the error is a TupleCountMismatchError.
func IsTupleCountMismatch(err error) bool {
	if err == nil {
		return false
	}
	var e *TupleCountMismatchError
	return errors.As(err, &e) || errors.Is(err, ErrTupleCountMismatch)
}

// ArgumentError represents an invalid invocation of a relation, view or command.
type ArgumentError struct {
	Op  string // Operation being invoked (e.g. "users#by_name")
	Msg string
}

// Error returns the error string.
func (e *ArgumentError) Error() string {
	return fmt.Sprintf("rom: %s: %s", e.Op, e.Msg)
}

// Is reports whether the target error matches ArgumentError.
func (e *ArgumentError) Is(err error) bool {
	return err == ErrArgument
}

// NewArgumentError returns a new ArgumentError.
func NewArgumentError(op, format string, args ...any) *ArgumentError {
	return &ArgumentError{Op: op, Msg: fmt.Sprintf(format, args...)}
}

// IsArgumentError returns true if the error is an ArgumentError.
func IsArgumentError(err error) bool {
	if err == nil {
		return false
	}
	var e *ArgumentError
	return errors.As(err, &e) || errors.Is(err, ErrArgument)
}

// NoMethodError is returned when a relation has no view (or forwarded
// operation) with the requested name.
type NoMethodError struct {
	Receiver string
	Method   string
}

// Error returns the error string.
func (e *NoMethodError) Error() string {
	return fmt.Sprintf("rom: undefined method %q for %s", e.Method, e.Receiver)
}

// Is reports whether the target error matches NoMethodError.
func (e *NoMethodError) Is(err error) bool {
	return err == ErrNoMethod
}

// NewNoMethodError returns a new NoMethodError.
func NewNoMethodError(receiver, method string) *NoMethodError {
	return &NoMethodError{Receiver: receiver, Method: method}
}

// IsNoMethod returns true if the error is a NoMethodError.
func IsNoMethod(err error) bool {
	if err == nil {
		return false
	}
	var e *NoMethodError
	return errors.As(err, &e) || errors.Is(err, ErrNoMethod)
}

// MissingAdapterIdentifierError is returned when a relation is defined
// without an adapter identifier.
type MissingAdapterIdentifierError struct {
	Relation string
}

// Error returns the error string.
func (e *MissingAdapterIdentifierError) Error() string {
	return fmt.Sprintf("rom: relation %q is missing an adapter identifier", e.Relation)
}

// MissingSchemaError is returned when a relation requires a schema that
// was not provided.
type MissingSchemaError struct {
	Relation string
}

// Error returns the error string.
func (e *MissingSchemaError) Error() string {
	return fmt.Sprintf("rom: relation %q is missing a schema", e.Relation)
}

// RelationAlreadyDefinedError is returned when two relations are registered
// under the same key.
type RelationAlreadyDefinedError struct {
	Name string
}

// Error returns the error string.
func (e *RelationAlreadyDefinedError) Error() string {
	return fmt.Sprintf("rom: relation %q is already defined", e.Name)
}

// UnsupportedRelationError is returned when a relation value cannot take part
// in a graph, e.g. combining with a composite pipeline.
type UnsupportedRelationError struct {
	Type string
}

// Error returns the error string.
func (e *UnsupportedRelationError) Error() string {
	return fmt.Sprintf("rom: %s cannot be used as a graph node", e.Type)
}

// AdapterNotPresentError is returned when no command type is registered for
// the given adapter.
type AdapterNotPresentError struct {
	Adapter string
	Type    string
}

// Error returns the error string.
func (e *AdapterNotPresentError) Error() string {
	return fmt.Sprintf("rom: adapter %q has no %s command", e.Adapter, e.Type)
}

// IsConfigurationError returns true if the error was raised while defining
// relations or commands, as opposed to executing them.
func IsConfigurationError(err error) bool {
	if err == nil {
		return false
	}
	var (
		e1 *MissingAdapterIdentifierError
		e2 *MissingSchemaError
		e3 *RelationAlreadyDefinedError
		e4 *UnsupportedRelationError
		e5 *AdapterNotPresentError
	)
	return errors.As(err, &e1) || errors.As(err, &e2) || errors.As(err, &e3) ||
		errors.As(err, &e4) || errors.As(err, &e5)
}

// CommandFailure wraps an error raised by a node of a command graph and
// keeps a reference to the node that failed.
type CommandFailure struct {
	Node any   // The failing command
	Err  error // Underlying error
}

// Error returns the error string.
func (e *CommandFailure) Error() string {
	if s, ok := e.Node.(fmt.Stringer); ok {
		return fmt.Sprintf("rom: command %s failed: %v", s, e.Err)
	}
	return fmt.Sprintf("rom: command failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *CommandFailure) Unwrap() error {
	return e.Err
}

// NewCommandFailure returns a new CommandFailure.
func NewCommandFailure(node any, err error) *CommandFailure {
	return &CommandFailure{Node: node, Err: err}
}

// IsCommandFailure returns true if the error is a CommandFailure.
func IsCommandFailure(err error) bool {
	if err == nil {
		return false
	}
	var e *CommandFailure
	return errors.As(err, &e)
}

// KeyMissingError is returned when a nested input path does not resolve.
type KeyMissingError struct {
	Path []string
	Key  string
}

// Error returns the error string.
func (e *KeyMissingError) Error() string {
	return fmt.Sprintf("rom: key %q not found in input path %v", e.Key, e.Path)
}

// Is reports whether the target error matches KeyMissingError.
func (e *KeyMissingError) Is(err error) bool {
	return err == ErrKeyMissing
}

// ValidationError represents a validation error for command input.
type ValidationError struct {
	Name string // Relation name
	Err  error  // Underlying validation error
}

// Error returns the error string.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("rom: validation failed for %q: %s", e.Name, e.Err)
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError returns a new ValidationError for the given relation.
func NewValidationError(name string, err error) *ValidationError {
	return &ValidationError{Name: name, Err: err}
}

// IsValidationError returns true if the error is a ValidationError.
func IsValidationError(err error) bool {
	if err == nil {
		return false
	}
	var e *ValidationError
	return errors.As(err, &e)
}

// ConstraintError represents a database constraint violation error.
type ConstraintError struct {
	msg  string
	wrap error
}

// Error returns the error string.
func (e ConstraintError) Error() string {
	return fmt.Sprintf("rom: constraint failed: %s", e.msg)
}

// Unwrap returns the underlying error.
func (e ConstraintError) Unwrap() error {
	return e.wrap
}

// NewConstraintError returns a new ConstraintError with the given message.
func NewConstraintError(msg string, wrap error) error {
	return ConstraintError{msg: msg, wrap: wrap}
}

// IsConstraintError returns true if the error is a ConstraintError.
func IsConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var e ConstraintError
	return errors.As(err, &e)
}
