package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"pixlise-client/message"
	"pixlise-client/rpcerr"
)

const instrumentationName = "pixlise-client"

// Tracing starts a span per call and records a request counter and a duration
// histogram. Nil providers fall back to the global ones.
//
// Span status is Error both for engine errors and for calls that did not
// complete; the "status" metric attribute tells them apart.
func Tracing(tp trace.TracerProvider, mp metric.MeterProvider) Middleware {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	tracer := tp.Tracer(instrumentationName)
	meter := mp.Meter(instrumentationName)
	requests, _ := meter.Int64Counter("pixlise.client.requests",
		metric.WithUnit("{request}"),
		metric.WithDescription("Number of engine calls"),
	)
	duration, _ := meter.Float64Histogram("pixlise.client.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Duration of engine calls"),
	)

	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *message.Call) (string, error) {
			ctx, span := tracer.Start(ctx, "pixlise/"+call.Operation,
				trace.WithSpanKind(trace.SpanKindClient),
				trace.WithAttributes(
					attribute.String("rpc.system", "pixlise"),
					attribute.String("rpc.method", call.Operation),
					attribute.Int64("pixlise.seq", int64(call.Seq)),
				),
			)
			defer span.End()

			start := time.Now()
			callErr, err := next(ctx, call)

			status := "ok"
			switch {
			case err != nil:
				status = rpcerr.KindOf(err).String()
				span.SetStatus(codes.Error, err.Error())
				span.RecordError(err)
			case callErr != "":
				status = rpcerr.KindCallFailed.String()
				span.SetStatus(codes.Error, callErr)
			default:
				span.SetStatus(codes.Ok, "")
			}

			attrs := metric.WithAttributes(
				attribute.String("rpc.method", call.Operation),
				attribute.String("status", status),
			)
			if requests != nil {
				requests.Add(ctx, 1, attrs)
			}
			if duration != nil {
				duration.Record(ctx, time.Since(start).Seconds(), attrs)
			}
			return callErr, err
		}
	}
}
