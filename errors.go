package weave

import (
	"errors"
	"fmt"
)

// Sentinel errors for programmatic error handling.
// Every failure surfaced by a Serializer is a *SerializationError wrapping one of these;
// use errors.Is() to check the category.
var (
	// ErrUnknownField indicates a document element names no field of the target type.
	ErrUnknownField = errors.New("unknown field")

	// ErrAbstractType indicates an interface type with no resolvable concrete type.
	ErrAbstractType = errors.New("no concrete type for interface")

	// ErrArrayOverflow indicates an array element past the declared extents.
	ErrArrayOverflow = errors.New("more items than specified")

	// ErrUnresolvedRef indicates a ref attribute naming an id that was never defined.
	ErrUnresolvedRef = errors.New("unresolved reference")

	// ErrNullWithID indicates a null marker on an element that also carries an id.
	ErrNullWithID = errors.New("null element carries an id")

	// ErrNameCollision indicates two distinct types or fields competing for one name.
	ErrNameCollision = errors.New("name collision")

	// ErrUnsupportedCallable indicates a callable that cannot be decomposed.
	ErrUnsupportedCallable = errors.New("unsupported callable")

	// ErrHookSignature indicates a lifecycle hook method with the wrong signature.
	ErrHookSignature = errors.New("invalid hook signature")

	// ErrHookFailed indicates a lifecycle hook returned an error.
	ErrHookFailed = errors.New("lifecycle hook failed")

	// ErrUnknownType indicates a type name that does not resolve.
	ErrUnknownType = errors.New("unknown type")

	// ErrUnsupportedType indicates a Go kind the codec cannot represent.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrMaxDepth indicates the nesting limit was exceeded.
	ErrMaxDepth = errors.New("maximum depth exceeded")

	// ErrRootName indicates the document root does not match the configured name.
	ErrRootName = errors.New("unexpected root element")

	// ErrMalformed indicates a structurally invalid document or value text.
	ErrMalformed = errors.New("malformed document")
)

// SerializationError is the single error kind reported by the codec.
// It wraps a sentinel error with the document path where the failure occurred.
type SerializationError struct {
	Err    error  // Underlying sentinel error (ErrUnknownField, etc.)
	Path   string // Element path, e.g. "Portfolio/Trades/item"
	Detail string // Human readable specifics
	Cause  error  // Original error from a collaborator, if any
}

func (e *SerializationError) Error() string {
	msg := e.Err.Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Path != "" {
		msg = fmt.Sprintf("%s (at %s)", msg, e.Path)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}

// newSerializationError creates a SerializationError with a formatted detail.
func newSerializationError(sentinel error, path, format string, args ...any) error {
	return &SerializationError{
		Err:    sentinel,
		Path:   path,
		Detail: fmt.Sprintf(format, args...),
	}
}

// wrapSerializationError attaches a collaborator error to a sentinel.
// An error that already is a *SerializationError is returned unchanged.
func wrapSerializationError(sentinel error, path string, cause error) error {
	var se *SerializationError
	if errors.As(cause, &se) {
		return cause
	}
	return &SerializationError{
		Err:   sentinel,
		Path:  path,
		Cause: cause,
	}
}
