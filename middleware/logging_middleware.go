package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"pixlise-client/message"
	"pixlise-client/rpcerr"
)

// Logging records every call. Successful calls log at debug, engine errors at
// warn, and calls that did not complete at error for protocol violations and
// warn otherwise.
func Logging(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *message.Call) (string, error) {
			start := time.Now()
			callErr, err := next(ctx, call)
			fields := []zap.Field{
				zap.String("op", call.Operation),
				zap.Uint64("seq", call.Seq),
				zap.Duration("duration", time.Since(start)),
			}
			switch {
			case err != nil && rpcerr.KindOf(err) == rpcerr.KindProtocolViolation:
				logger.Error("call broke the buffer protocol", append(fields, zap.Error(err))...)
			case err != nil:
				logger.Warn("call did not complete", append(fields, zap.Error(err))...)
			case callErr != "":
				logger.Warn("engine rejected call", append(fields, zap.String("callError", callErr))...)
			default:
				logger.Debug("call", fields...)
			}
			return callErr, err
		}
	}
}
