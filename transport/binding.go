// Package transport carries calls from a client to an engine.
//
// A Binding runs one call at a time from the client's point of view: it sends
// the operation and its arguments and returns the engine's error string. While
// the engine works it allocates result buffers through call.Alloc. Engines in
// another process or host return their buffers with the response, and the
// binding replays them into call.Alloc in the order they were allocated.
//
//	client ──Invoke──► binding ──frame/gRPC/HTTP──► engine host
//	   ▲                  │                            │ Collector
//	   └── arena ◄─Replay─┴────── allocations ◄────────┘
package transport

import (
	"context"

	"pixlise-client/buffer"
	"pixlise-client/message"
	"pixlise-client/rpcerr"
)

// Binding is a connection to an engine.
//
// Invoke returns the engine's error string, empty on success, or an error when
// the call never completed. An error is always an *rpcerr.Error.
type Binding interface {
	Invoke(ctx context.Context, call *message.Call) (string, error)
	Close() error
}

// Dispatcher runs calls in the current process.
type Dispatcher interface {
	Dispatch(ctx context.Context, call *message.Call) (string, error)
}

// LocalBinding calls an in-process engine directly; buffers are allocated
// straight into the caller's arena.
type LocalBinding struct {
	d Dispatcher
}

func NewLocalBinding(d Dispatcher) *LocalBinding {
	return &LocalBinding{d: d}
}

func (b *LocalBinding) Invoke(ctx context.Context, call *message.Call) (string, error) {
	if b.d == nil {
		return "", rpcerr.New(rpcerr.KindBindingUnavailable, call.Operation, "no engine loaded")
	}
	return b.d.Dispatch(ctx, call)
}

func (b *LocalBinding) Close() error { return nil }

// Replay turns a remote response into the outcome of call. Each allocation is
// re-made through call.Alloc and its bytes copied in.
func Replay(call *message.Call, resp *message.Response) (string, error) {
	if resp.Error != "" {
		return resp.Error, nil
	}
	for i, a := range resp.Allocations {
		h, err := call.Alloc(buffer.TypeTag(a.Type), a.Count)
		if err != nil {
			return "", rpcerr.Wrap(rpcerr.KindProtocolViolation, call.Operation, err)
		}
		if h.Len() != len(a.Data) {
			return "", rpcerr.New(rpcerr.KindProtocolViolation, call.Operation,
				"allocation %d: %d bytes for %d x %s", i, len(a.Data), a.Count, buffer.TypeTag(a.Type))
		}
		copy(h.Bytes(), a.Data)
	}
	return "", nil
}

// Allocations converts buffers filled by a host-side engine into response
// allocations, in order.
func Allocations(handles []*buffer.Handle) []message.Allocation {
	out := make([]message.Allocation, len(handles))
	for i, h := range handles {
		out[i] = message.Allocation{Type: byte(h.Tag()), Count: h.Count(), Data: h.Bytes()}
	}
	return out
}
