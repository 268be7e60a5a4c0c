// Package middleware wraps the path from a call to its binding (client side)
// or to its engine handler (host side).
//
// Middlewares nest like an onion; Chain(A, B, C)(h) runs
//
//	A.before → B.before → C.before → h → C.after → B.after → A.after
package middleware

import (
	"context"

	"pixlise-client/message"
)

// HandlerFunc runs one call and returns the engine's error string, or an error
// if the call did not complete.
type HandlerFunc func(ctx context.Context, call *message.Call) (string, error)

type Middleware func(next HandlerFunc) HandlerFunc

// Chain combines several middlewares into one. The first one is outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
