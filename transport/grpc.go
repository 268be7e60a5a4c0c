package transport

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"pixlise-client/codec"
	"pixlise-client/message"
	"pixlise-client/rpcerr"
)

// GRPCMethod is the single unary method an engine host serves over gRPC. Its
// request and response are BinaryCodec envelopes passed through as raw bytes.
const GRPCMethod = "/pixlise.Engine/Invoke"

// GRPCBinding calls an engine host over gRPC.
type GRPCBinding struct {
	conn  *grpc.ClientConn
	codec codec.Codec
}

// NewGRPCBinding connects lazily to target. Extra options are appended to the
// defaults (plaintext, raw codec).
func NewGRPCBinding(target string, dialOpts ...grpc.DialOption) (*GRPCBinding, error) {
	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(codec.GRPCCodec{})),
	}, dialOpts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial: %w", err)
	}
	return &GRPCBinding{conn: conn, codec: &codec.BinaryCodec{}}, nil
}

// WaitReady connects and blocks until the connection is ready. A failed
// connection attempt is returned at once instead of being retried.
func (b *GRPCBinding) WaitReady(ctx context.Context) error {
	b.conn.Connect()
	for {
		state := b.conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.TransientFailure, connectivity.Shutdown:
			return fmt.Errorf("grpc %s: connection %s", b.conn.Target(), state)
		}
		if !b.conn.WaitForStateChange(ctx, state) {
			return fmt.Errorf("grpc %s: %w", b.conn.Target(), ctx.Err())
		}
	}
}

func (b *GRPCBinding) Invoke(ctx context.Context, call *message.Call) (string, error) {
	req, err := b.codec.Encode(call.Request())
	if err != nil {
		return "", rpcerr.Wrap(rpcerr.KindInvalidArgument, call.Operation, err)
	}

	var out []byte
	if err := b.conn.Invoke(ctx, GRPCMethod, req, &out); err != nil {
		return "", grpcError(call.Operation, err)
	}

	resp := &message.Response{}
	if err := b.codec.Decode(out, resp); err != nil {
		return "", rpcerr.Wrap(rpcerr.KindMalformedPayload, call.Operation, err)
	}
	return Replay(call, resp)
}

func grpcError(op string, err error) *rpcerr.Error {
	switch status.Code(err) {
	case codes.DeadlineExceeded:
		return &rpcerr.Error{Kind: rpcerr.KindTimeout, Op: op, Err: err}
	case codes.Unauthenticated:
		return &rpcerr.Error{Kind: rpcerr.KindUnauthenticated, Op: op, Err: err}
	}
	return &rpcerr.Error{Kind: rpcerr.KindBindingUnavailable, Op: op, Err: err}
}

func (b *GRPCBinding) Close() error {
	return b.conn.Close()
}
