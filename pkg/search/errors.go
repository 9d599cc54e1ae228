package search

import (
	"errors"
	"fmt"
)

// ErrorKind classifies compilation failures so transport layers can map them
// onto a status code and OperationOutcome issue type without string matching.
type ErrorKind int

const (
	// KindBadRequest marks malformed client input.
	KindBadRequest ErrorKind = iota
	// KindResourceNotSupported marks a resource type the directory does not know.
	KindResourceNotSupported
	// KindInvalidSearchOperation marks a request that can never be valid,
	// such as a compartment search against an unknown compartment type.
	KindInvalidSearchOperation
	// KindOperationNotSupported marks a recognized but unsupported search
	// feature, such as _total=estimate.
	KindOperationNotSupported
	// KindParamNotSupported marks a parameter the directory does not define.
	// The compiler demotes these to the unsupported list instead of failing.
	KindParamNotSupported
)

// Error is the failure type returned by the compiler and its parsers.
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// BadRequestf builds a KindBadRequest error.
func BadRequestf(format string, args ...any) *Error {
	return newError(KindBadRequest, format, args...)
}

// ResourceNotSupportedf builds a KindResourceNotSupported error.
func ResourceNotSupportedf(format string, args ...any) *Error {
	return newError(KindResourceNotSupported, format, args...)
}

// InvalidSearchOperationf builds a KindInvalidSearchOperation error.
func InvalidSearchOperationf(format string, args ...any) *Error {
	return newError(KindInvalidSearchOperation, format, args...)
}

// OperationNotSupportedf builds a KindOperationNotSupported error.
func OperationNotSupportedf(format string, args ...any) *Error {
	return newError(KindOperationNotSupported, format, args...)
}

// ParamNotSupportedf builds the recoverable unknown-parameter error.
func ParamNotSupportedf(format string, args ...any) *Error {
	return newError(KindParamNotSupported, format, args...)
}

// KindOf extracts the kind of err when it is (or wraps) a search Error.
func KindOf(err error) (ErrorKind, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return 0, false
}

// IsParamNotSupported reports whether err is the recoverable failure the
// compiler turns into an unsupported-parameter entry.
func IsParamNotSupported(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == KindParamNotSupported
}
