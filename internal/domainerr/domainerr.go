// Package domainerr defines the error taxonomy shared by every layer of the
// scratch-notebook service, from the catalog store up through the MCP and
// HTTP request surfaces.
package domainerr

import (
	"errors"
	"fmt"
)

// Code is one of the stable error codes carried in every tool/HTTP response.
type Code string

const (
	NotFound             Code = "NOT_FOUND"
	InvalidID            Code = "INVALID_ID"
	InvalidIndex         Code = "INVALID_INDEX"
	CapacityLimitReached Code = "CAPACITY_LIMIT_REACHED"
	ValidationError      Code = "VALIDATION_ERROR"
	ValidationTimeout    Code = "VALIDATION_TIMEOUT"
	ConfigError          Code = "CONFIG_ERROR"
	Unauthorized         Code = "UNAUTHORIZED"
	Conflict             Code = "CONFLICT"
	Internal             Code = "INTERNAL_ERROR"

	// Unavailable is returned by the shutdown gate for requests that arrive
	// while the server is DRAINING or STOPPED (spec §4.F), mapped to 503 on
	// HTTP transports.
	Unavailable Code = "UNAVAILABLE"
)

// Error is the concrete error type returned by every core operation.
// Details is an open map for structured, code-specific context (e.g. the
// offending schema ref) and must never carry filesystem paths or other
// infrastructure detail — see the propagation rule in SPEC_FULL.md §7.
type Error struct {
	Code    Code
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New constructs a domain error with no details.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf constructs a domain error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithDetails returns a copy of e carrying the given structured details.
func (e *Error) WithDetails(details map[string]any) *Error {
	return &Error{Code: e.Code, Message: e.Message, Details: details}
}

// As extracts a *Error from err, following the wrapping chain.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// CodeOf returns the domain code carried by err, or Internal if err does
// not wrap a *Error. Used at the request-surface boundary, which must
// always have a code to map to a transport status.
func CodeOf(err error) Code {
	if de, ok := As(err); ok {
		return de.Code
	}
	return Internal
}
