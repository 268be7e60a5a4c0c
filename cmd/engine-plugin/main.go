// engine-plugin builds the in-memory engine as a Go plugin:
//
//	go build -buildmode=plugin -o engine.so ./cmd/engine-plugin
//
// and is dialed as plugin:///path/to/engine.so.
package main

import (
	"context"

	"pixlise-client/buffer"
	"pixlise-client/message"
	"pixlise-client/mock"
)

var engine = mock.NewServer(mock.NewEngine())

// Invoke runs one operation. Transport failures cannot happen in-process, so
// every failure is reported as an engine error string.
func Invoke(ctx context.Context, op string, args []message.Arg, alloc buffer.Allocator) string {
	callErr, err := engine.Dispatch(ctx, &message.Call{Operation: op, Args: args, Alloc: alloc})
	if err != nil {
		return err.Error()
	}
	return callErr
}

func main() {}
