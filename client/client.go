// Package client is the typed facade over an engine.
//
// Every operation follows the same path:
//
//	validate args ─► check state ─► Begin ─► middleware chain ─► binding.Invoke
//	                                              │
//	decode ◄─ Pop ◄─ engine error? ◄──────────────┘
//
// A Client runs one call at a time. The engine answers a successful data
// operation with exactly one buffer holding the encoded response; the buffer is
// released as soon as it is decoded.
package client

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"pixlise-client/buffer"
	"pixlise-client/config"
	"pixlise-client/message"
	"pixlise-client/middleware"
	"pixlise-client/protos"
	"pixlise-client/rpcerr"
	"pixlise-client/transport"
)

type Client struct {
	mu      sync.Mutex
	binding transport.Binding
	arena   *buffer.Arena
	invoke  middleware.HandlerFunc
	logger  *zap.Logger
	closers []io.Closer   // closed after the binding
	busy    chan struct{} // held while the binding runs a call, abandoned ones included

	authenticated bool
	violation     error // set once the engine broke the buffer protocol
	closed        bool

	calMu   sync.Mutex
	userCal map[string]EnergyCalibration // by scan id, never sent to the engine
}

type options struct {
	logger      *zap.Logger
	callTimeout time.Duration
	middlewares []middleware.Middleware

	rateLimit float64
	rateBurst int

	retries    int
	retryDelay time.Duration

	tracing bool
	tp      trace.TracerProvider
	mp      metric.MeterProvider

	arenaOpts []buffer.Option
	dialOpts  []transport.Option
}

type Option func(*options)

func WithLogger(l *zap.Logger) Option { return func(o *options) { o.logger = l } }

// WithCallTimeout bounds every call. Expired calls fail with Timeout.
func WithCallTimeout(d time.Duration) Option { return func(o *options) { o.callTimeout = d } }

// WithMiddleware adds middlewares between tracing and rate limiting, in order.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(o *options) { o.middlewares = append(o.middlewares, mws...) }
}

// WithRateLimit allows r calls per second with the given burst. Calls wait
// for their turn.
func WithRateLimit(r float64, burst int) Option {
	return func(o *options) { o.rateLimit, o.rateBurst = r, burst }
}

// WithRetry repeats read operations that failed with BindingUnavailable.
// Operations that change engine state are never repeated.
func WithRetry(maxRetries int, baseDelay time.Duration) Option {
	return func(o *options) { o.retries, o.retryDelay = maxRetries, baseDelay }
}

// WithTracing records a span and metrics per call. Nil providers use the
// global ones.
func WithTracing(tp trace.TracerProvider, mp metric.MeterProvider) Option {
	return func(o *options) { o.tracing, o.tp, o.mp = true, tp, mp }
}

// WithArenaLimits caps single buffers and the bytes held by the client.
func WithArenaLimits(maxAllocation, maxLiveBytes int) Option {
	return func(o *options) {
		o.arenaOpts = append(o.arenaOpts, buffer.WithMaxAllocation(maxAllocation), buffer.WithMaxLiveBytes(maxLiveBytes))
	}
}

// WithDialOptions is passed on to transport.Dial by Dial.
func WithDialOptions(opts ...transport.Option) Option {
	return func(o *options) { o.dialOpts = append(o.dialOpts, opts...) }
}

func newOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}

// New returns a client calling the engine through b. The client owns b and
// closes it on Close.
func New(b transport.Binding, opts ...Option) *Client {
	return newClient(b, newOptions(opts))
}

// Dial connects to the engine at target (see transport.Dial for the schemes).
func Dial(ctx context.Context, target string, opts ...Option) (*Client, error) {
	o := newOptions(opts)
	b, err := dialBinding(ctx, target, o)
	if err != nil {
		return nil, err
	}
	return newClient(b, o), nil
}

func dialBinding(ctx context.Context, target string, o *options) (transport.Binding, error) {
	return transport.Dial(ctx, target, append([]transport.Option{transport.WithLogger(o.logger)}, o.dialOpts...)...)
}

func newClient(b transport.Binding, o *options) *Client {
	c := &Client{
		binding: b,
		arena:   buffer.NewArena(o.arenaOpts...),
		logger:  o.logger,
		busy:    make(chan struct{}, 1),
	}

	mws := []middleware.Middleware{middleware.Logging(o.logger)}
	if o.tracing {
		mws = append(mws, middleware.Tracing(o.tp, o.mp))
	}
	mws = append(mws, o.middlewares...)
	if o.rateLimit > 0 {
		mws = append(mws, middleware.RateLimit(o.rateLimit, o.rateBurst))
	}
	if o.retries > 0 {
		mws = append(mws, middleware.Retry(o.retries, o.retryDelay, o.logger))
	}
	if o.callTimeout > 0 {
		mws = append(mws, middleware.Timeout(o.callTimeout))
	}
	c.invoke = middleware.Chain(mws...)(c.exclusive(b.Invoke))
	return c
}

// exclusive lets one invocation into the binding at a time. A call abandoned
// by the timeout keeps its slot until the binding returns; later calls wait
// for the slot within their own deadline.
func (c *Client) exclusive(next middleware.HandlerFunc) middleware.HandlerFunc {
	return func(ctx context.Context, call *message.Call) (string, error) {
		select {
		case c.busy <- struct{}{}:
		case <-ctx.Done():
			return "", rpcerr.FromContext(call.Operation, ctx.Err())
		}
		defer func() { <-c.busy }()
		return next(ctx, call)
	}
}

// roundTrip runs op and decodes the single response buffer into into. A nil
// into means the operation answers without a buffer.
func (c *Client) roundTrip(ctx context.Context, op string, into protos.Message, args ...message.Arg) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return rpcerr.New(rpcerr.KindBindingUnavailable, op, "client closed")
	}
	if c.violation != nil {
		return c.violation
	}
	if !c.authenticated && op != message.OpAuthenticate {
		return rpcerr.New(rpcerr.KindUnauthenticated, op, "authenticate first")
	}

	seq, alloc, err := c.arena.Begin()
	if err != nil {
		return rpcerr.Wrap(rpcerr.KindBindingUnavailable, op, err)
	}
	succeeded := false
	defer func() {
		if n := c.arena.End(seq); n > 0 && succeeded {
			c.logger.Warn("engine allocated unclaimed buffers", zap.String("op", op), zap.Uint64("seq", seq), zap.Int("count", n))
		}
	}()

	callErr, err := c.invoke(ctx, &message.Call{Seq: seq, Operation: op, Args: args, Alloc: alloc})
	if err != nil {
		err = rpcerr.Wrap(rpcerr.KindBindingUnavailable, op, err)
		if errors.Is(err, rpcerr.ErrProtocolViolation) {
			c.violation = err
		}
		return err
	}
	if callErr != "" {
		return rpcerr.CallFailed(op, callErr)
	}
	succeeded = true
	if into == nil {
		return nil
	}

	h, err := c.arena.Pop(seq)
	if err != nil {
		c.violation = rpcerr.Wrap(rpcerr.KindProtocolViolation, op, err)
		c.logger.Error("engine broke the buffer protocol", zap.String("op", op), zap.Error(err))
		return c.violation
	}
	defer h.Release()
	if err := protos.Unmarshal(h.Bytes(), into); err != nil {
		return rpcerr.Wrap(rpcerr.KindMalformedPayload, op, err)
	}
	return nil
}

func call[T any, PT interface {
	*T
	protos.Message
}](ctx context.Context, c *Client, op string, args ...message.Arg) (PT, error) {
	m := PT(new(T))
	if err := c.roundTrip(ctx, op, m, args...); err != nil {
		return nil, err
	}
	return m, nil
}

// Close drops every unclaimed buffer and closes the binding. Calls made after
// Close fail with BindingUnavailable.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.arena.Close()
	errs := []error{c.binding.Close()}
	for _, cl := range c.closers {
		errs = append(errs, cl.Close())
	}
	return errors.Join(errs...)
}

// Authenticated reports whether Authenticate succeeded.
func (c *Client) Authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticated
}

// Authenticate logs in with the credentials in the configuration file at
// configPath. An empty path lets the engine look in its default places.
// Other operations fail with Unauthenticated until this succeeds.
func (c *Client) Authenticate(ctx context.Context, configPath string) error {
	err := c.roundTrip(ctx, message.OpAuthenticate, nil, message.String(configPath))
	c.mu.Lock()
	c.authenticated = err == nil
	c.mu.Unlock()
	return err
}

// AuthenticateConfig logs in with an already resolved configuration. The
// document is sent inline, so engines on another host never see a local path.
func (c *Client) AuthenticateConfig(ctx context.Context, cfg *config.File) error {
	if cfg == nil {
		return rpcerr.New(rpcerr.KindInvalidArgument, message.OpAuthenticate, "config is required")
	}
	doc, err := cfg.Inline()
	if err != nil {
		return rpcerr.Wrap(rpcerr.KindInvalidArgument, message.OpAuthenticate, err)
	}
	return c.Authenticate(ctx, doc)
}
