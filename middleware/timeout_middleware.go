package middleware

import (
	"context"
	"errors"
	"time"

	"pixlise-client/message"
	"pixlise-client/rpcerr"
)

// Timeout bounds a call. The handler runs in its own goroutine so an engine
// that ignores ctx cannot hold the caller; anything it allocates after the
// deadline is rejected once the caller ends the call.
func Timeout(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *message.Call) (string, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			type outcome struct {
				callErr string
				err     error
			}
			done := make(chan outcome, 1)
			go func() {
				callErr, err := next(ctx, call)
				done <- outcome{callErr, err}
			}()

			select {
			case o := <-done:
				return o.callErr, o.err
			case <-ctx.Done():
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					return "", rpcerr.New(rpcerr.KindTimeout, call.Operation, "no answer within %s", timeout)
				}
				return "", rpcerr.FromContext(call.Operation, ctx.Err())
			}
		}
	}
}
