package client

import (
	"context"
	"strings"

	"pixlise-client/codec"
	"pixlise-client/config"
	"pixlise-client/loadbalance"
	"pixlise-client/registry"
	"pixlise-client/rpcerr"
	"pixlise-client/transport"
)

// DialConfig connects to the engine described by cfg.Engine. Options given
// here are applied after the ones derived from cfg.
//
// For etcd:// targets an etcd registry is opened and closed with the client.
func DialConfig(ctx context.Context, cfg *config.File, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, rpcerr.Wrap(rpcerr.KindInvalidArgument, "", err)
	}
	e := cfg.Engine
	if e.Target == "" {
		return nil, rpcerr.New(rpcerr.KindInvalidArgument, "", "engine.target is required")
	}
	codecType, err := codec.ParseCodecType(e.Codec)
	if err != nil {
		return nil, rpcerr.Wrap(rpcerr.KindInvalidArgument, "", err)
	}
	timeout, _ := e.Timeout() // checked by Validate

	derived := []Option{WithDialOptions(
		transport.WithCodec(codecType),
		transport.WithCompression(e.Compress),
		transport.WithPoolSize(e.PoolSize),
	)}
	if timeout > 0 {
		derived = append(derived, WithCallTimeout(timeout))
	}
	if e.RateLimit > 0 {
		derived = append(derived, WithRateLimit(e.RateLimit, e.RateBurst))
	}
	o := newOptions(append(derived, opts...))

	var reg *registry.EtcdRegistry
	if strings.HasPrefix(e.Target, "etcd://") {
		balancer, err := loadbalance.New(e.Balancer)
		if err != nil {
			return nil, rpcerr.Wrap(rpcerr.KindInvalidArgument, "", err)
		}
		reg, err = registry.NewEtcdRegistry(e.EtcdEndpoints, o.logger)
		if err != nil {
			return nil, rpcerr.Wrap(rpcerr.KindBindingUnavailable, "", err)
		}
		o.dialOpts = append(o.dialOpts, transport.WithRegistry(reg), transport.WithBalancer(balancer, e.HashKey))
	}

	b, err := dialBinding(ctx, e.Target, o)
	if err != nil {
		if reg != nil {
			reg.Close()
		}
		return nil, err
	}
	c := newClient(b, o)
	if reg != nil {
		c.closers = append(c.closers, reg)
	}
	return c, nil
}
