// Package jmxerr defines the typed errors shared by the jmxsh core packages.
//
// Every failure surfaced by the registry, the type codec, the marshaller and
// the browse menu carries a [Kind]. Kinds are grouped into a [Class], which is
// what most callers switch on. Use [errors.Is] against the exported sentinels
// (ErrRefused, ErrSignatureMismatch, ...) or [KindOf] to classify an error.
package jmxerr

import (
	"errors"
	"fmt"
)

// Class groups related kinds.
type Class int

const (
	ClassUnknown Class = iota
	ClassConnection
	ClassLookup
	ClassConversion
	ClassUsage
	ClassRemote
)

func (c Class) String() string {
	switch c {
	case ClassConnection:
		return "connection"
	case ClassLookup:
		return "lookup"
	case ClassConversion:
		return "conversion"
	case ClassUsage:
		return "usage"
	case ClassRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// Kind is a single, closed error classification.
type Kind int

const (
	KindUnknown Kind = iota

	// connection
	KindAuthentication
	KindHostUnresolved
	KindRefused
	KindTimedOut
	KindTLSRequired
	KindTransport

	// lookup
	KindServerNotFound
	KindObjectNotFound
	KindAttributeNotFound
	KindOperationNotFound

	// conversion
	KindMalformedType
	KindTypeNotResolvable
	KindNoStringConstructor
	KindConstructionFailed
	KindAccessFailed

	// usage
	KindOutOfRange
	KindMalformedFilter
	KindSignatureMismatch
	KindMissingContext
	KindInvalidArgument
	KindAttributeNotWritable

	// the managed object raised
	KindRemote
)

var kindNames = map[Kind]string{
	KindUnknown:              "unknown",
	KindAuthentication:       "authentication failed",
	KindHostUnresolved:       "host unresolved",
	KindRefused:              "connection refused",
	KindTimedOut:             "timed out",
	KindTLSRequired:          "tls required",
	KindTransport:            "transport error",
	KindServerNotFound:       "server not found",
	KindObjectNotFound:       "mbean not found",
	KindAttributeNotFound:    "attribute not found",
	KindOperationNotFound:    "operation not found",
	KindMalformedType:        "malformed type",
	KindTypeNotResolvable:    "type not resolvable",
	KindNoStringConstructor:  "no string constructor",
	KindConstructionFailed:   "construction failed",
	KindAccessFailed:         "access failed",
	KindOutOfRange:           "out of range",
	KindMalformedFilter:      "malformed filter",
	KindSignatureMismatch:    "signature mismatch",
	KindMissingContext:       "missing context",
	KindInvalidArgument:      "invalid argument",
	KindAttributeNotWritable: "attribute not writable",
	KindRemote:               "remote exception",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Class returns the group the kind belongs to.
func (k Kind) Class() Class {
	switch {
	case k >= KindAuthentication && k <= KindTransport:
		return ClassConnection
	case k >= KindServerNotFound && k <= KindOperationNotFound:
		return ClassLookup
	case k >= KindMalformedType && k <= KindAccessFailed:
		return ClassConversion
	case k >= KindOutOfRange && k <= KindAttributeNotWritable:
		return ClassUsage
	case k == KindRemote:
		return ClassRemote
	default:
		return ClassUnknown
	}
}

// IsMarshalFailure reports whether the kind is one of the value construction
// failures.
func (k Kind) IsMarshalFailure() bool {
	return k >= KindTypeNotResolvable && k <= KindAccessFailed
}

// Error is the concrete error type. Op names the failing operation (for
// example "connect" or "setAttribute"), Msg is the human readable message and
// Err the retained cause, if any.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	// connection causes are kept for diagnostics only; the message is the
	// classification
	if e.Err != nil && e.Kind.Class() != ClassConnection {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinel errors by kind. ErrMarshalFailure matches every
// construction failure kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Op != "" || t.Msg != "" || t.Err != nil {
		return false
	}
	if t == ErrMarshalFailure {
		return e.Kind.IsMarshalFailure()
	}
	return t.Kind == e.Kind
}

func sentinel(k Kind) *Error { return &Error{Kind: k} }

// ErrMarshalFailure matches any of the construction failure kinds.
var ErrMarshalFailure = &Error{Kind: KindUnknown}

var (
	ErrAuthentication       = sentinel(KindAuthentication)
	ErrHostUnresolved       = sentinel(KindHostUnresolved)
	ErrRefused              = sentinel(KindRefused)
	ErrTimedOut             = sentinel(KindTimedOut)
	ErrTLSRequired          = sentinel(KindTLSRequired)
	ErrTransport            = sentinel(KindTransport)
	ErrServerNotFound       = sentinel(KindServerNotFound)
	ErrObjectNotFound       = sentinel(KindObjectNotFound)
	ErrAttributeNotFound    = sentinel(KindAttributeNotFound)
	ErrOperationNotFound    = sentinel(KindOperationNotFound)
	ErrMalformedType        = sentinel(KindMalformedType)
	ErrTypeNotResolvable    = sentinel(KindTypeNotResolvable)
	ErrNoStringConstructor  = sentinel(KindNoStringConstructor)
	ErrConstructionFailed   = sentinel(KindConstructionFailed)
	ErrAccessFailed         = sentinel(KindAccessFailed)
	ErrOutOfRange           = sentinel(KindOutOfRange)
	ErrMalformedFilter      = sentinel(KindMalformedFilter)
	ErrSignatureMismatch    = sentinel(KindSignatureMismatch)
	ErrMissingContext       = sentinel(KindMissingContext)
	ErrInvalidArgument      = sentinel(KindInvalidArgument)
	ErrAttributeNotWritable = sentinel(KindAttributeNotWritable)
	ErrRemote               = sentinel(KindRemote)
)

// New builds an error without a cause.
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an error that retains cause.
func Wrap(kind Kind, op string, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...), Err: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// ClassOf is shorthand for KindOf(err).Class().
func ClassOf(err error) Class { return KindOf(err).Class() }
