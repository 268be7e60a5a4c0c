package server

import (
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"pixlise-client/codec"
	"pixlise-client/message"
	"pixlise-client/transport"
)

// GRPCServer returns a gRPC server that answers transport.GRPCMethod. Bodies
// are BinaryCodec envelopes; no generated stubs are involved.
func (s *Server) GRPCServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{
		grpc.ForceServerCodec(codec.GRPCCodec{}),
		grpc.UnknownServiceHandler(s.grpcInvoke),
	}, opts...)
	return grpc.NewServer(opts...)
}

func (s *Server) grpcInvoke(_ any, stream grpc.ServerStream) error {
	method, _ := grpc.MethodFromServerStream(stream)
	if method != transport.GRPCMethod {
		return status.Errorf(codes.Unimplemented, "unknown method %s", method)
	}

	var in []byte
	if err := stream.RecvMsg(&in); err != nil {
		return err
	}
	bc := &codec.BinaryCodec{}
	req := &message.Request{}
	if err := bc.Decode(in, req); err != nil {
		return status.Errorf(codes.InvalidArgument, "malformed request: %v", err)
	}

	resp := s.serve(stream.Context(), 0, req)
	out, err := bc.Encode(resp)
	if err != nil {
		return status.Error(codes.Internal, fmt.Sprintf("encode response: %v", err))
	}
	return stream.SendMsg(out)
}
