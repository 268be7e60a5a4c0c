package server

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"pixlise-client/buffer"
	"pixlise-client/message"
	"pixlise-client/middleware"
	"pixlise-client/registry"
	"pixlise-client/rpcerr"
	"pixlise-client/transport"
)

// testEngine is a tiny engine: echo returns its argument, pair allocates two
// buffers, fail rejects the call.
type testEngine struct{}

func (e *testEngine) Echo(ctx context.Context, req *Request) error {
	s, err := req.String(0)
	if err != nil {
		return err
	}
	return req.Reply([]byte(s))
}

func (e *testEngine) Pair(ctx context.Context, req *Request) error {
	if err := req.Reply([]byte("first")); err != nil {
		return err
	}
	h, err := req.Alloc(buffer.Float64, 2)
	if err != nil {
		return err
	}
	h.Bytes()[0] = 1
	return nil
}

func (e *testEngine) Fail(ctx context.Context, req *Request) error {
	return errors.New("scan not found")
}

func (e *testEngine) Panic(ctx context.Context, req *Request) error {
	panic("engine bug")
}

// Not an operation: wrong signature.
func (e *testEngine) Helper(s string) string { return s }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s := NewServer()
	if err := s.Register(&testEngine{}); err != nil {
		t.Fatal(err)
	}
	return s
}

// invoke runs one call and returns the engine error or the bytes of every
// buffer the call allocated.
func invoke(ctx context.Context, b transport.Binding, arena *buffer.Arena, op string, args ...message.Arg) (string, [][]byte, error) {
	seq, alloc, err := arena.Begin()
	if err != nil {
		return "", nil, err
	}
	defer arena.End(seq)
	callErr, err := b.Invoke(ctx, &message.Call{Seq: seq, Operation: op, Args: args, Alloc: alloc})
	if err != nil || callErr != "" {
		return callErr, nil, err
	}
	var out [][]byte
	for arena.Len() > 0 {
		h, err := arena.Pop(seq)
		if err != nil {
			return "", nil, err
		}
		out = append(out, bytes.Clone(h.Bytes()))
		h.Release()
	}
	return "", out, nil
}

func TestRegisterScansMethods(t *testing.T) {
	s := newTestServer(t)
	ops := s.Operations()
	slices.Sort(ops)
	want := []string{"echo", "fail", "pair", "panic"}
	if !slices.Equal(ops, want) {
		t.Fatalf("expect %v, got %v", want, ops)
	}
}

func TestRegisterRejectsNonPointer(t *testing.T) {
	s := NewServer()
	if err := s.Register(testEngine{}); err == nil {
		t.Fatal("expect error for non-pointer receiver")
	}
	type empty struct{}
	if err := s.Register(&empty{}); err == nil {
		t.Fatal("expect error for receiver without operations")
	}
}

func checkEngine(t *testing.T, b transport.Binding) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	arena := buffer.NewArena()
	defer arena.Close()

	callErr, bufs, err := invoke(ctx, b, arena, "echo", message.String("048300551"))
	if err != nil || callErr != "" {
		t.Fatalf("echo: %q %v", callErr, err)
	}
	if len(bufs) != 1 || string(bufs[0]) != "048300551" {
		t.Fatalf("echo: unexpected buffers %q", bufs)
	}

	_, bufs, err = invoke(ctx, b, arena, "pair")
	if err != nil {
		t.Fatal(err)
	}
	if len(bufs) != 2 || string(bufs[0]) != "first" || len(bufs[1]) != 16 || bufs[1][0] != 1 {
		t.Fatalf("pair: unexpected buffers %v", bufs)
	}

	callErr, _, err = invoke(ctx, b, arena, "fail")
	if err != nil || callErr != "scan not found" {
		t.Fatalf("fail: expect engine error, got %q %v", callErr, err)
	}

	callErr, _, err = invoke(ctx, b, arena, "nope")
	if err != nil || callErr != "unknown operation: nope" {
		t.Fatalf("nope: expect unknown operation, got %q %v", callErr, err)
	}

	callErr, _, err = invoke(ctx, b, arena, "echo", message.Int32(3))
	if err != nil || callErr != "echo: argument 0 is int32, want string" {
		t.Fatalf("echo: expect argument error, got %q %v", callErr, err)
	}

	if arena.Len() != 0 || arena.LiveBytes() != 0 {
		t.Fatalf("arena not empty: %d buffers, %d bytes", arena.Len(), arena.LiveBytes())
	}
}

func TestLocalDispatch(t *testing.T) {
	checkEngine(t, transport.NewLocalBinding(newTestServer(t)))
}

func TestPanicBecomesEngineError(t *testing.T) {
	b := transport.NewLocalBinding(newTestServer(t))
	arena := buffer.NewArena()
	callErr, _, err := invoke(context.Background(), b, arena, "panic")
	if err != nil || callErr != "panic: internal error" {
		t.Fatalf("expect internal error, got %q %v", callErr, err)
	}
}

func startStream(t *testing.T, s *Server) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go s.ServeListener(l)
	t.Cleanup(func() { s.Shutdown(time.Second) })
	return l.Addr().String()
}

func TestServeStream(t *testing.T) {
	addr := startStream(t, newTestServer(t))
	for _, compress := range []bool{false, true} {
		b, err := transport.Dial(context.Background(), "tcp://"+addr, transport.WithCompression(compress))
		if err != nil {
			t.Fatal(err)
		}
		checkEngine(t, b)
		b.Close()
	}
}

func TestServeStreamPooled(t *testing.T) {
	addr := startStream(t, newTestServer(t))
	b, err := transport.Dial(context.Background(), "tcp://"+addr, transport.WithPoolSize(2))
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	checkEngine(t, b)
}

func TestServeGRPC(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	gs := newTestServer(t).GRPCServer()
	go gs.Serve(lis)
	defer gs.Stop()

	b, err := transport.NewGRPCBinding("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	if err := b.WaitReady(context.Background()); err != nil {
		t.Fatal(err)
	}
	checkEngine(t, b)
}

func TestDialGRPC(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	gs := newTestServer(t).GRPCServer()
	go gs.Serve(l)
	defer gs.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	b, err := transport.Dial(ctx, "grpc://"+l.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	checkEngine(t, b)
}

func TestServeHTTP(t *testing.T) {
	h, err := newTestServer(t).HTTPHandler()
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(h)
	defer ts.Close()

	b := transport.NewHTTPBinding(ts.URL, ts.Client())
	defer b.Close()
	if err := b.Ping(context.Background()); err != nil {
		t.Fatal(err)
	}
	checkEngine(t, b)

	dialed, err := transport.Dial(context.Background(), ts.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer dialed.Close()
	checkEngine(t, dialed)
}

func TestDialHTTPNotAnEngine(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()
	if _, err := transport.Dial(context.Background(), ts.URL); !errors.Is(err, rpcerr.ErrBindingUnavailable) {
		t.Fatalf("expect BindingUnavailable, got %v", err)
	}
}

func TestHostMiddleware(t *testing.T) {
	s := newTestServer(t)
	s.Use(middleware.RateLimitReject(1, 1))
	b := transport.NewLocalBinding(s)
	arena := buffer.NewArena()

	if callErr, _, err := invoke(context.Background(), b, arena, "echo", message.String("a")); err != nil || callErr != "" {
		t.Fatalf("first call should pass, got %q %v", callErr, err)
	}
	callErr, _, err := invoke(context.Background(), b, arena, "echo", message.String("b"))
	if err != nil || callErr != middleware.RateLimitExceeded {
		t.Fatalf("second call should be limited, got %q %v", callErr, err)
	}
}

func TestShutdownDeregisters(t *testing.T) {
	reg := registry.NewStaticRegistry()
	s := newTestServer(t)
	addr := startStream(t, s)

	ctx := context.Background()
	if err := s.Advertise(ctx, reg, registry.ServiceInstance{Addr: addr}); err != nil {
		t.Fatal(err)
	}
	b, err := transport.Dial(ctx, "etcd://"+DefaultServiceName, transport.WithRegistry(reg))
	if err != nil {
		t.Fatal(err)
	}
	checkEngine(t, b)
	b.Close()

	if err := s.Shutdown(time.Second); err != nil {
		t.Fatal(err)
	}
	instances, err := reg.Discover(ctx, DefaultServiceName)
	if err != nil {
		t.Fatal(err)
	}
	if len(instances) != 0 {
		t.Fatalf("expect no instances after shutdown, got %v", instances)
	}
}
