// Package message defines the envelopes exchanged between the client and the engine.
//
// A Request is an operation name plus ordered scalar arguments. A Response is
// either the engine's error string or the list of buffers the engine allocated
// while serving the call. Both get serialized by the codec layer and wrapped in
// a protocol frame when the engine runs out of process.
package message

import (
	"fmt"

	"pixlise-client/buffer"
)

// ArgKind identifies the scalar type of an argument.
type ArgKind uint8

const (
	ArgString ArgKind = iota
	ArgInt32
	ArgBool
)

func (k ArgKind) String() string {
	switch k {
	case ArgString:
		return "string"
	case ArgInt32:
		return "int32"
	case ArgBool:
		return "bool"
	}
	return fmt.Sprintf("ArgKind(%d)", uint8(k))
}

// Arg is one positional argument. Only the field matching Kind is meaningful.
type Arg struct {
	Kind ArgKind `json:"kind"`
	Str  string  `json:"str,omitempty"`
	Int  int32   `json:"int,omitempty"`
	Bool bool    `json:"bool,omitempty"`
}

func String(s string) Arg { return Arg{Kind: ArgString, Str: s} }

func Int32(v int32) Arg { return Arg{Kind: ArgInt32, Int: v} }

func Bool(b bool) Arg { return Arg{Kind: ArgBool, Bool: b} }

// Value returns the argument as a Go value.
func (a Arg) Value() any {
	switch a.Kind {
	case ArgInt32:
		return a.Int
	case ArgBool:
		return a.Bool
	default:
		return a.Str
	}
}

// Request is the serializable form of a call.
type Request struct {
	Operation string `json:"op"`
	Args      []Arg  `json:"args,omitempty"`
}

// Allocation is a buffer the engine filled while serving a call.
type Allocation struct {
	Type  byte   `json:"type"`
	Count int    `json:"count"`
	Data  []byte `json:"data,omitempty"`
}

// Response carries the outcome of a call.
//
//   - Error is non-empty if the engine rejected the call; Allocations is then ignored.
//   - Otherwise Allocations lists the buffers in the order they were allocated.
type Response struct {
	Error       string       `json:"error,omitempty"`
	Allocations []Allocation `json:"allocs,omitempty"`
}

// Call is one in-flight invocation as seen by bindings and middleware. Alloc is
// the allocator of the caller's arena for this call only.
type Call struct {
	Seq       uint64
	Operation string
	Args      []Arg
	Alloc     buffer.Allocator
}

func (c *Call) Request() *Request {
	return &Request{Operation: c.Operation, Args: c.Args}
}
