//go:build (linux || darwin) && cgo

package transport

import (
	"context"
	"plugin"

	"pixlise-client/buffer"
	"pixlise-client/message"
	"pixlise-client/rpcerr"
)

func init() {
	RegisterScheme("plugin", dialPlugin)
}

// PluginSymbol is the exported function an engine plugin must provide.
const PluginSymbol = "Invoke"

// PluginBinding runs an engine built as a Go plugin inside this process.
// Buffers go straight into the caller's arena, as with LocalBinding.
type PluginBinding struct {
	invoke func(ctx context.Context, op string, args []message.Arg, alloc buffer.Allocator) string
}

// OpenPlugin loads the engine plugin at path.
func OpenPlugin(path string) (*PluginBinding, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, rpcerr.Wrap(rpcerr.KindBindingUnavailable, "", err)
	}
	sym, err := p.Lookup(PluginSymbol)
	if err != nil {
		return nil, rpcerr.Wrap(rpcerr.KindBindingUnavailable, "", err)
	}
	fn, ok := sym.(func(context.Context, string, []message.Arg, buffer.Allocator) string)
	if !ok {
		return nil, rpcerr.New(rpcerr.KindBindingUnavailable, "", "plugin %s: symbol %s has type %T", path, PluginSymbol, sym)
	}
	return &PluginBinding{invoke: fn}, nil
}

func dialPlugin(_ context.Context, path string, _ *Options) (Binding, error) {
	return OpenPlugin(path)
}

func (b *PluginBinding) Invoke(ctx context.Context, call *message.Call) (string, error) {
	return b.invoke(ctx, call.Operation, call.Args, call.Alloc), nil
}

// Close is a no-op: Go plugins cannot be unloaded.
func (b *PluginBinding) Close() error { return nil }
