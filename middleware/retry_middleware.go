package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"pixlise-client/message"
	"pixlise-client/rpcerr"
)

// Retry repeats read-only calls that failed with BindingUnavailable, with
// exponential backoff starting at baseDelay. Writes (createROI, deleteROI,
// authenticate), engine errors and every other failure are returned as is.
func Retry(maxRetries int, baseDelay time.Duration, logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *message.Call) (string, error) {
			callErr, err := next(ctx, call)
			if !message.ReadOnly(call.Operation) {
				return callErr, err
			}
			for i := 0; i < maxRetries; i++ {
				if err == nil || rpcerr.KindOf(err) != rpcerr.KindBindingUnavailable {
					return callErr, err
				}
				delay := baseDelay * time.Duration(1<<i)
				logger.Info("retrying call",
					zap.String("op", call.Operation),
					zap.Int("attempt", i+1),
					zap.Duration("delay", delay),
					zap.Error(err))

				t := time.NewTimer(delay)
				select {
				case <-ctx.Done():
					t.Stop()
					return "", rpcerr.FromContext(call.Operation, ctx.Err())
				case <-t.C:
				}
				callErr, err = next(ctx, call)
			}
			return callErr, err
		}
	}
}
