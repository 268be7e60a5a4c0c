package server

import (
	"context"
	"fmt"
	"reflect"
	"unicode"
	"unicode/utf8"

	"pixlise-client/buffer"
	"pixlise-client/message"
)

// HandlerFunc serves one operation. A returned error is sent to the caller as
// the engine error string; buffers allocated before it are dropped.
type HandlerFunc func(ctx context.Context, req *Request) error

// Request is one call as seen by an operation handler.
type Request struct {
	Operation string
	Args      []message.Arg
	alloc     buffer.Allocator
}

func (r *Request) arg(i int, kind message.ArgKind) (message.Arg, error) {
	if i >= len(r.Args) {
		return message.Arg{}, fmt.Errorf("%s: missing argument %d", r.Operation, i)
	}
	a := r.Args[i]
	if a.Kind != kind {
		return message.Arg{}, fmt.Errorf("%s: argument %d is %s, want %s", r.Operation, i, a.Kind, kind)
	}
	return a, nil
}

func (r *Request) String(i int) (string, error) {
	a, err := r.arg(i, message.ArgString)
	return a.Str, err
}

func (r *Request) Int32(i int) (int32, error) {
	a, err := r.arg(i, message.ArgInt32)
	return a.Int, err
}

func (r *Request) Bool(i int) (bool, error) {
	a, err := r.arg(i, message.ArgBool)
	return a.Bool, err
}

// Alloc asks the caller for a buffer.
func (r *Request) Alloc(tag buffer.TypeTag, count int) (*buffer.Handle, error) {
	return r.alloc(tag, count)
}

// Reply allocates one byte buffer and copies data into it. Most operations
// answer with exactly one encoded message.
func (r *Request) Reply(data []byte) error {
	h, err := r.alloc(buffer.Uint8, len(data))
	if err != nil {
		return err
	}
	copy(h.Bytes(), data)
	return nil
}

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	requestType = reflect.TypeOf((*Request)(nil))
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// scanHandlers returns the exported methods of rcvr that look like
//
//	func (e *Engine) ListScans(ctx context.Context, req *server.Request) error
//
// keyed by operation name, the method name with a lower-case first letter.
func scanHandlers(rcvr any) (map[string]HandlerFunc, error) {
	typ := reflect.TypeOf(rcvr)
	if typ == nil || typ.Kind() != reflect.Ptr {
		return nil, fmt.Errorf("server: rcvr must be a pointer, got %T", rcvr)
	}
	if typ.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("server: rcvr must point to a struct, got %s", typ.Elem().Kind())
	}
	val := reflect.ValueOf(rcvr)

	handlers := make(map[string]HandlerFunc)
	for i := 0; i < typ.NumMethod(); i++ {
		method := typ.Method(i)
		mt := method.Type
		// receiver, ctx, req
		if mt.NumIn() != 3 || mt.NumOut() != 1 || mt.Out(0) != errorType ||
			mt.In(1) != contextType || mt.In(2) != requestType {
			continue
		}
		fn := val.Method(i)
		handlers[operationName(method.Name)] = func(ctx context.Context, req *Request) error {
			out := fn.Call([]reflect.Value{reflect.ValueOf(ctx), reflect.ValueOf(req)})
			if out[0].IsNil() {
				return nil
			}
			return out[0].Interface().(error)
		}
	}
	if len(handlers) == 0 {
		return nil, fmt.Errorf("server: %s has no operation methods", typ.Elem().Name())
	}
	return handlers, nil
}

func operationName(method string) string {
	r, n := utf8.DecodeRuneInString(method)
	return string(unicode.ToLower(r)) + method[n:]
}
