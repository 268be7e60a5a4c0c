//go:build !((linux || darwin) && cgo)

package transport

import (
	"context"
	"runtime"

	"pixlise-client/rpcerr"
)

func init() {
	RegisterScheme("plugin", func(context.Context, string, *Options) (Binding, error) {
		return nil, rpcerr.New(rpcerr.KindBindingUnavailable, "", "engine plugins are not supported on %s", runtime.GOOS)
	})
}
