package middleware

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"pixlise-client/message"
	"pixlise-client/rpcerr"
)

// echoHandler succeeds immediately.
func echoHandler(ctx context.Context, call *message.Call) (string, error) {
	return "", nil
}

// slowHandler needs 200ms and ignores ctx.
func slowHandler(ctx context.Context, call *message.Call) (string, error) {
	time.Sleep(200 * time.Millisecond)
	return "", nil
}

func rejectHandler(ctx context.Context, call *message.Call) (string, error) {
	return "scan not found", nil
}

func newCall(op string) *message.Call {
	return &message.Call{Seq: 1, Operation: op}
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, call *message.Call) (string, error) {
				order = append(order, name+".before")
				callErr, err := next(ctx, call)
				order = append(order, name+".after")
				return callErr, err
			}
		}
	}
	handler := Chain(mark("A"), mark("B"))(func(ctx context.Context, call *message.Call) (string, error) {
		order = append(order, "handler")
		return "", nil
	})
	if _, err := handler(context.Background(), newCall(message.OpListScans)); err != nil {
		t.Fatal(err)
	}
	want := []string{"A.before", "B.before", "handler", "B.after", "A.after"}
	if len(order) != len(want) {
		t.Fatalf("expect %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expect %v, got %v", want, order)
		}
	}
}

func TestLogging(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	if _, err := Logging(logger)(echoHandler)(context.Background(), newCall(message.OpListScans)); err != nil {
		t.Fatal(err)
	}
	callErr, err := Logging(logger)(rejectHandler)(context.Background(), newCall(message.OpGetROI))
	if err != nil || callErr != "scan not found" {
		t.Fatalf("expect engine error to pass through, got %q %v", callErr, err)
	}
	violation := func(ctx context.Context, call *message.Call) (string, error) {
		return "", rpcerr.New(rpcerr.KindProtocolViolation, call.Operation, "queue empty")
	}
	if _, err := Logging(logger)(violation)(context.Background(), newCall(message.OpGetQuant)); !errors.Is(err, rpcerr.ErrProtocolViolation) {
		t.Fatalf("expect protocol violation, got %v", err)
	}

	if n := logs.FilterMessage("call").Len(); n != 1 {
		t.Errorf("expect 1 debug entry, got %d", n)
	}
	rejected := logs.FilterMessage("engine rejected call").All()
	if len(rejected) != 1 || rejected[0].ContextMap()["callError"] != "scan not found" {
		t.Errorf("unexpected warn entries: %v", rejected)
	}
	if n := logs.FilterLevelExact(zapcore.ErrorLevel).Len(); n != 1 {
		t.Errorf("expect 1 error entry, got %d", n)
	}
}

func TestTimeoutPass(t *testing.T) {
	handler := Timeout(500 * time.Millisecond)(echoHandler)
	callErr, err := handler(context.Background(), newCall(message.OpListScans))
	if err != nil || callErr != "" {
		t.Fatalf("expect success, got %q %v", callErr, err)
	}
}

func TestTimeoutExceeded(t *testing.T) {
	handler := Timeout(50 * time.Millisecond)(slowHandler)
	start := time.Now()
	_, err := handler(context.Background(), newCall(message.OpListScans))
	if !errors.Is(err, rpcerr.ErrTimeout) {
		t.Fatalf("expect timeout, got %v", err)
	}
	if time.Since(start) >= 200*time.Millisecond {
		t.Fatal("timeout did not return before the handler finished")
	}
}

func TestTimeoutParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Timeout(time.Second)(slowHandler)(ctx, newCall(message.OpListScans))
	if !errors.Is(err, rpcerr.ErrBindingUnavailable) {
		t.Fatalf("expect binding unavailable, got %v", err)
	}
}

func TestRateLimitWaits(t *testing.T) {
	// 1 per second with burst 2: two calls pass at once, the third would wait
	// longer than the deadline allows.
	handler := RateLimit(1, 2)(echoHandler)
	for i := 0; i < 2; i++ {
		if _, err := handler(context.Background(), newCall(message.OpListScans)); err != nil {
			t.Fatalf("request %d should pass, got error: %v", i, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := handler(ctx, newCall(message.OpListScans)); !errors.Is(err, rpcerr.ErrTimeout) {
		t.Fatalf("request 3 should time out waiting for a token, got: %v", err)
	}
}

func TestRateLimitReject(t *testing.T) {
	handler := RateLimitReject(1, 2)(echoHandler)
	for i := 0; i < 2; i++ {
		if callErr, _ := handler(context.Background(), newCall(message.OpListScans)); callErr != "" {
			t.Fatalf("request %d should pass, got: %s", i, callErr)
		}
	}
	if callErr, _ := handler(context.Background(), newCall(message.OpListScans)); callErr != RateLimitExceeded {
		t.Fatalf("request 3 should be rate limited, got: '%s'", callErr)
	}
}

func flaky(failures int32, attempts *atomic.Int32) HandlerFunc {
	return func(ctx context.Context, call *message.Call) (string, error) {
		if attempts.Add(1) <= failures {
			return "", rpcerr.New(rpcerr.KindBindingUnavailable, call.Operation, "connection refused")
		}
		return "", nil
	}
}

func TestRetryReadOnly(t *testing.T) {
	var attempts atomic.Int32
	handler := Retry(3, time.Millisecond, nil)(flaky(2, &attempts))
	if _, err := handler(context.Background(), newCall(message.OpListScans)); err != nil {
		t.Fatalf("expect success after retries, got %v", err)
	}
	if attempts.Load() != 3 {
		t.Fatalf("expect 3 attempts, got %d", attempts.Load())
	}
}

func TestRetryGivesUp(t *testing.T) {
	var attempts atomic.Int32
	handler := Retry(2, time.Millisecond, nil)(flaky(10, &attempts))
	if _, err := handler(context.Background(), newCall(message.OpGetQuant)); !errors.Is(err, rpcerr.ErrBindingUnavailable) {
		t.Fatalf("expect binding unavailable, got %v", err)
	}
	if attempts.Load() != 3 {
		t.Fatalf("expect 3 attempts, got %d", attempts.Load())
	}
}

func TestRetrySkipsWrites(t *testing.T) {
	for _, op := range []string{message.OpCreateROI, message.OpDeleteROI, message.OpAuthenticate} {
		var attempts atomic.Int32
		handler := Retry(3, time.Millisecond, nil)(flaky(1, &attempts))
		if _, err := handler(context.Background(), newCall(op)); err == nil {
			t.Errorf("%s: expect the first failure to be returned", op)
		}
		if attempts.Load() != 1 {
			t.Errorf("%s: expect 1 attempt, got %d", op, attempts.Load())
		}
	}
}

func TestRetrySkipsEngineErrors(t *testing.T) {
	var attempts atomic.Int32
	handler := Retry(3, time.Millisecond, nil)(func(ctx context.Context, call *message.Call) (string, error) {
		attempts.Add(1)
		return "scan not found", nil
	})
	callErr, err := handler(context.Background(), newCall(message.OpListScans))
	if err != nil || callErr != "scan not found" || attempts.Load() != 1 {
		t.Fatalf("expect single attempt with engine error, got %q %v after %d", callErr, err, attempts.Load())
	}
}

func TestTracing(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	mw := Tracing(tp, mp)
	if _, err := mw(echoHandler)(context.Background(), newCall(message.OpListScans)); err != nil {
		t.Fatal(err)
	}
	if callErr, _ := mw(rejectHandler)(context.Background(), newCall(message.OpGetROI)); callErr == "" {
		t.Fatal("expect engine error")
	}

	spans := sr.Ended()
	if len(spans) != 2 {
		t.Fatalf("expect 2 spans, got %d", len(spans))
	}
	if spans[0].Name() != "pixlise/listScans" || spans[0].Status().Code != codes.Ok {
		t.Errorf("unexpected first span %s %v", spans[0].Name(), spans[0].Status())
	}
	if spans[1].Name() != "pixlise/getROI" || spans[1].Status().Code != codes.Error {
		t.Errorf("unexpected second span %s %v", spans[1].Name(), spans[1].Status())
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatal(err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "pixlise.client.requests" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("unexpected data type %T", m.Data)
			}
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	if total != 2 {
		t.Fatalf("expect 2 requests counted, got %d", total)
	}
}
