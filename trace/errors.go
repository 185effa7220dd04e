package trace

import "github.com/pkg/errors"

// Kind classifies why loading or processing a trace failed, matching the
// fatal error kinds a session can hit. Non-fatal conditions (a bad
// request, an out-of-range expression, an unverified breakpoint) have no
// Kind: the dap package reports them inline in its responses.
type Kind int

const (
	// BadTrace means the trace JSON is missing required fields or is
	// otherwise structurally invalid.
	BadTrace Kind = iota
	// MissingSource means a traced program's hash has no matching entry
	// in the sources descriptor.
	MissingSource
	// IoError means a supplied file could not be read.
	IoError
)

func (k Kind) String() string {
	switch k {
	case BadTrace:
		return "BadTrace"
	case MissingSource:
		return "MissingSource"
	case IoError:
		return "IoError"
	default:
		return "Unknown"
	}
}

// Error wraps a Kind with the underlying cause. It satisfies the error
// interface and keeps errors.Is/errors.As working through Cause.
type Error struct {
	Kind  Kind
	cause error
}

func newError(kind Kind, cause error) *Error {
	return &Error{Kind: kind, cause: cause}
}

func (e *Error) Error() string {
	return e.Kind.String() + ": " + e.cause.Error()
}

func (e *Error) Unwrap() error {
	return e.cause
}

func wrapf(kind Kind, cause error, format string, args ...interface{}) *Error {
	return newError(kind, errors.Wrapf(cause, format, args...))
}

func errorf(kind Kind, format string, args ...interface{}) *Error {
	return newError(kind, errors.Errorf(format, args...))
}
