package transport

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"pixlise-client/codec"
	"pixlise-client/loadbalance"
	"pixlise-client/registry"
	"pixlise-client/rpcerr"
)

// Options configure Dial and the stream bindings.
type Options struct {
	Codec     codec.CodecType
	Compress  bool          // zstd frame bodies
	PoolSize  int           // >1 uses a PooledBinding instead of one multiplexed conn
	Heartbeat time.Duration // 0 disables heartbeats
	Logger    *zap.Logger

	// Used by etcd:// targets.
	Registry registry.Registry
	Balancer loadbalance.Balancer
	HashKey  string
}

type Option func(*Options)

func WithCodec(t codec.CodecType) Option      { return func(o *Options) { o.Codec = t } }
func WithCompression(on bool) Option          { return func(o *Options) { o.Compress = on } }
func WithPoolSize(n int) Option               { return func(o *Options) { o.PoolSize = n } }
func WithHeartbeat(d time.Duration) Option    { return func(o *Options) { o.Heartbeat = d } }
func WithLogger(l *zap.Logger) Option         { return func(o *Options) { o.Logger = l } }
func WithRegistry(r registry.Registry) Option { return func(o *Options) { o.Registry = r } }

// WithBalancer sets how an etcd:// target picks its instance; key feeds
// consistent hashing.
func WithBalancer(b loadbalance.Balancer, key string) Option {
	return func(o *Options) {
		o.Balancer = b
		o.HashKey = key
	}
}

func newOptions(opts []Option) *Options {
	o := &Options{
		Codec:     codec.CodecTypeBinary,
		Heartbeat: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// DialFunc opens a binding for the part of a target after "scheme://".
type DialFunc func(ctx context.Context, addr string, o *Options) (Binding, error)

var (
	schemesMu sync.RWMutex
	schemes   = map[string]DialFunc{
		"tcp":   dialStream("tcp"),
		"unix":  dialStream("unix"),
		"grpc":  dialGRPC,
		"http":  dialHTTP("http"),
		"https": dialHTTP("https"),
	}
)

// etcd:// resolves to another scheme through dial, so it cannot sit in the
// schemes literal.
func init() {
	RegisterScheme("etcd", dialDiscovered)
}

// RegisterScheme makes Dial understand scheme. Later registrations win.
func RegisterScheme(scheme string, fn DialFunc) {
	schemesMu.Lock()
	defer schemesMu.Unlock()
	schemes[scheme] = fn
}

// Dial opens a binding to target, written as scheme://address:
//
//	tcp://host:port, unix:///path/engine.sock  framed protocol
//	grpc://host:port                           gRPC
//	http://host:port/rpc                       JSON-RPC 2.0
//	plugin:///path/engine.so                   Go plugin, where supported
//	etcd://service                             discovered through Options.Registry
func Dial(ctx context.Context, target string, opts ...Option) (Binding, error) {
	return dial(ctx, target, newOptions(opts))
}

func dial(ctx context.Context, target string, o *Options) (Binding, error) {
	scheme, addr, ok := strings.Cut(target, "://")
	if !ok {
		return nil, rpcerr.New(rpcerr.KindInvalidArgument, "", "target %q has no scheme", target)
	}
	schemesMu.RLock()
	fn, ok := schemes[scheme]
	schemesMu.RUnlock()
	if !ok {
		return nil, rpcerr.New(rpcerr.KindBindingUnavailable, "", "unsupported transport %q", scheme)
	}
	b, err := fn(ctx, addr, o)
	if err != nil {
		return nil, rpcerr.Wrap(rpcerr.KindBindingUnavailable, "", err)
	}
	o.Logger.Debug("engine binding ready", zap.String("target", target))
	return b, nil
}

func dialStream(network string) DialFunc {
	return func(ctx context.Context, addr string, o *Options) (Binding, error) {
		var d net.Dialer
		if o.PoolSize > 1 {
			pool := NewConnPool(o.PoolSize, func(ctx context.Context) (net.Conn, error) {
				return d.DialContext(ctx, network, addr)
			})
			// Dial one connection up front so a bad address fails here.
			pc, err := pool.Get(ctx)
			if err != nil {
				return nil, err
			}
			pool.Put(pc)
			return NewPooledBinding(pool, withOptions(o)), nil
		}
		conn, err := d.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		return NewSocketBinding(conn, withOptions(o)), nil
	}
}

func withOptions(src *Options) Option {
	return func(o *Options) { *o = *src }
}

func dialGRPC(ctx context.Context, addr string, _ *Options) (Binding, error) {
	b, err := NewGRPCBinding(addr)
	if err != nil {
		return nil, err
	}
	if err := b.WaitReady(ctx); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

func dialHTTP(scheme string) DialFunc {
	return func(ctx context.Context, addr string, _ *Options) (Binding, error) {
		b := NewHTTPBinding(scheme+"://"+addr, nil)
		if err := b.Ping(ctx); err != nil {
			b.Close()
			return nil, err
		}
		return b, nil
	}
}

// dialDiscovered resolves a service name through the registry and dials the
// instance the balancer picks.
func dialDiscovered(ctx context.Context, service string, o *Options) (Binding, error) {
	if o.Registry == nil {
		return nil, fmt.Errorf("etcd://%s: no registry configured", service)
	}
	instances, err := o.Registry.Discover(ctx, service)
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", service, err)
	}
	balancer := o.Balancer
	if balancer == nil {
		balancer = &loadbalance.RoundRobinBalancer{}
	}
	inst, err := balancer.Pick(instances, o.HashKey)
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", service, err)
	}
	o.Logger.Info("engine instance selected",
		zap.String("service", service),
		zap.String("addr", inst.Addr),
		zap.String("transport", inst.Transport),
		zap.String("balancer", balancer.Name()))
	if strings.HasPrefix(inst.Target(), "etcd://") {
		return nil, fmt.Errorf("discover %s: instance %s points back at the registry", service, inst.Addr)
	}
	return dial(ctx, inst.Target(), o)
}
