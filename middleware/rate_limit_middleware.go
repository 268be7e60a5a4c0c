package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"pixlise-client/message"
	"pixlise-client/rpcerr"
)

// RateLimitExceeded is the engine error returned by RateLimitReject.
const RateLimitExceeded = "rate limit exceeded"

// RateLimit spaces out outgoing calls with a token bucket. Callers wait for a
// token; a wait that cannot finish before the context deadline fails with
// Timeout.
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *message.Call) (string, error) {
			if err := limiter.Wait(ctx); err != nil {
				if ctx.Err() != nil {
					return "", rpcerr.FromContext(call.Operation, ctx.Err())
				}
				if _, ok := ctx.Deadline(); ok {
					return "", rpcerr.Wrap(rpcerr.KindTimeout, call.Operation, err)
				}
				return "", rpcerr.Wrap(rpcerr.KindBindingUnavailable, call.Operation, err)
			}
			return next(ctx, call)
		}
	}
}

// RateLimitReject is the engine host variant: calls over the limit are
// answered with the engine error RateLimitExceeded instead of waiting.
func RateLimitReject(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *message.Call) (string, error) {
			if !limiter.Allow() {
				return RateLimitExceeded, nil
			}
			return next(ctx, call)
		}
	}
}
