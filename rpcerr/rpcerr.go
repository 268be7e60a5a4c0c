// Package rpcerr defines the error taxonomy shared by every engine operation.
//
// Each failure carries a Kind so callers can branch with errors.Is against the
// package sentinels:
//
//	if errors.Is(err, rpcerr.ErrCallFailed) { ... }
//
// CallFailed keeps the engine's message verbatim in Message.
package rpcerr

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindBindingUnavailable
	KindInvalidArgument
	KindCallFailed
	KindMalformedPayload
	KindProtocolViolation
	KindTimeout
	KindUnauthenticated
)

func (k Kind) String() string {
	switch k {
	case KindBindingUnavailable:
		return "binding unavailable"
	case KindInvalidArgument:
		return "invalid argument"
	case KindCallFailed:
		return "call failed"
	case KindMalformedPayload:
		return "malformed payload"
	case KindProtocolViolation:
		return "protocol violation"
	case KindTimeout:
		return "timeout"
	case KindUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is. They match any *Error of the same Kind.
var (
	ErrBindingUnavailable = &Error{Kind: KindBindingUnavailable}
	ErrInvalidArgument    = &Error{Kind: KindInvalidArgument}
	ErrCallFailed         = &Error{Kind: KindCallFailed}
	ErrMalformedPayload   = &Error{Kind: KindMalformedPayload}
	ErrProtocolViolation  = &Error{Kind: KindProtocolViolation}
	ErrTimeout            = &Error{Kind: KindTimeout}
	ErrUnauthenticated    = &Error{Kind: KindUnauthenticated}
)

// Error is a classified failure of a single operation.
type Error struct {
	Kind    Kind
	Op      string // operation name, empty when not tied to one
	Message string
	Err     error // underlying cause, may be nil
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	prefix := e.Kind.String()
	if e.Op != "" {
		prefix = e.Op + ": " + prefix
	}
	if msg == "" {
		return prefix
	}
	return prefix + ": " + msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same Kind. A target with an Op
// set also requires the operation to match.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Op == "" || t.Op == e.Op
}

// New creates a classified error.
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err. An err that already is an *Error keeps its Kind and
// only gains the operation name if it had none.
func Wrap(kind Kind, op string, err error) *Error {
	if err == nil {
		return nil
	}
	var re *Error
	if errors.As(err, &re) {
		if re.Op == "" && op != "" {
			cp := *re
			cp.Op = op
			return &cp
		}
		return re
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// CallFailed builds the error for a non-empty engine error string. The message
// is kept exactly as the engine produced it.
func CallFailed(op, message string) *Error {
	return &Error{Kind: KindCallFailed, Op: op, Message: message}
}

// FromContext classifies the error of a finished context. An expired deadline
// is a Timeout; a cancelled call is reported as BindingUnavailable since the
// engine never answered.
func FromContext(op string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Op: op, Err: err}
	}
	return &Error{Kind: KindBindingUnavailable, Op: op, Err: err}
}

// KindOf returns the Kind of err, or KindUnknown.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindUnknown
}
