// Package buffer implements the exchange of variable-length buffers between the
// client and the engine.
//
// The engine never returns memory directly. Instead the caller hands it an
// Allocator for the duration of a call; the engine asks for a buffer of
// (type tag, element count), fills it, and the caller owns it afterwards.
// Every buffer produced during a call lands in the caller's Arena, a FIFO
// queue scoped to one client instance:
//
//	Begin() → seq, alloc ─┐
//	                      ├──→ engine: alloc('B', n) → fill → return ""
//	Pop(seq) ←── front ───┘
//	End(seq)  releases anything left over and closes the allocator
//
// Handles are tagged with the sequence number of the call that produced them,
// so a buffer from an abandoned call can never be mistaken for the answer to a
// later one.
package buffer

import (
	"errors"
	"fmt"
)

// TypeTag is the element type requested by the engine, using the array
// typecodes ('B' unsigned byte, 'd' double, ...).
type TypeTag byte

const (
	Uint8   TypeTag = 'B'
	Int8    TypeTag = 'b'
	Int16   TypeTag = 'h'
	Uint16  TypeTag = 'H'
	Int32   TypeTag = 'i'
	Uint32  TypeTag = 'I'
	Int64   TypeTag = 'q'
	Uint64  TypeTag = 'Q'
	Float32 TypeTag = 'f'
	Float64 TypeTag = 'd'
)

// Size returns the element width in bytes, or 0 for an unknown tag.
func (t TypeTag) Size() int {
	switch t {
	case Uint8, Int8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Int64, Uint64, Float64:
		return 8
	}
	return 0
}

func (t TypeTag) Valid() bool {
	return t.Size() > 0
}

func (t TypeTag) String() string {
	if !t.Valid() {
		return fmt.Sprintf("TypeTag(%d)", byte(t))
	}
	return string(rune(t))
}

// Allocator is handed to the engine for one call. It returns a zeroed buffer
// of count elements of the given type.
type Allocator func(tag TypeTag, count int) (*Handle, error)

// Handle is one buffer produced during a call.
type Handle struct {
	seq      uint64
	tag      TypeTag
	count    int
	data     []byte
	released bool
	owner    *Arena
}

// Seq returns the sequence number of the call that allocated the buffer.
func (h *Handle) Seq() uint64 { return h.seq }

func (h *Handle) Tag() TypeTag { return h.tag }

// Count returns the number of elements, not bytes.
func (h *Handle) Count() int { return h.count }

// Len returns the size in bytes.
func (h *Handle) Len() int { return len(h.data) }

// Bytes returns the underlying storage. It is nil after Release.
func (h *Handle) Bytes() []byte { return h.data }

// Release frees the buffer. Calling it more than once is harmless.
func (h *Handle) Release() {
	if h.owner != nil {
		h.owner.release(h)
		return
	}
	h.data = nil
	h.released = true
}

func checkRequest(tag TypeTag, count, maxAlloc int) (int, error) {
	if !tag.Valid() {
		return 0, fmt.Errorf("unknown type tag %q", byte(tag))
	}
	if count < 0 {
		return 0, fmt.Errorf("negative element count %d", count)
	}
	n := count * tag.Size()
	if count > 0 && n/count != tag.Size() {
		return 0, fmt.Errorf("allocation of %d x %s overflows", count, tag)
	}
	if maxAlloc > 0 && n > maxAlloc {
		return 0, fmt.Errorf("allocation of %d bytes exceeds limit %d", n, maxAlloc)
	}
	return n, nil
}

var errSealed = errors.New("allocator used after the call returned")
