// Package server hosts an engine so clients in other processes or on other
// machines can reach it through the stream, gRPC or HTTP bindings.
//
// Request processing pipeline:
//
//	Accept conn → handleConn (single goroutine reads frames)
//	  → for each request: go handleRequest (parallel processing)
//	    → Codec.Decode → Middleware Chain → operation handler → Collector
//	    → Codec.Encode(error | allocations) → write response
//
// The same Server is also a transport.Dispatcher, so tests and sandboxes can
// bind to it in process with transport.NewLocalBinding.
package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"pixlise-client/buffer"
	"pixlise-client/codec"
	"pixlise-client/message"
	"pixlise-client/middleware"
	"pixlise-client/protocol"
	"pixlise-client/registry"
	"pixlise-client/transport"
)

// DefaultServiceName is the name engine hosts register under.
const DefaultServiceName = "pixlise-engine"

// Server routes calls to operation handlers.
type Server struct {
	mu          sync.RWMutex
	handlers    map[string]HandlerFunc  // "listScans" → handler
	middlewares []middleware.Middleware // applied in order
	handler     middleware.HandlerFunc  // middleware(middleware(...(businessHandler)))

	logger      *zap.Logger
	maxAlloc    int
	serviceName string

	listener net.Listener
	wg       sync.WaitGroup // in-flight requests
	shutdown atomic.Bool    // set before the listener closes so Accept errors are expected

	registry   registry.Registry
	advertised []string // addresses registered under serviceName
}

type Option func(*Server)

func WithLogger(l *zap.Logger) Option { return func(s *Server) { s.logger = l } }

// WithMaxAllocation caps a single buffer an operation may allocate.
func WithMaxAllocation(n int) Option { return func(s *Server) { s.maxAlloc = n } }

func WithServiceName(name string) Option { return func(s *Server) { s.serviceName = name } }

// NewServer creates a server with no operations.
func NewServer(opts ...Option) *Server {
	s := &Server{
		handlers:    make(map[string]HandlerFunc),
		logger:      zap.NewNop(),
		maxAlloc:    buffer.DefaultMaxAllocation,
		serviceName: DefaultServiceName,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.handler = s.businessHandler
	return s
}

// Register adds every operation method of rcvr (see scanHandlers). Methods
// replace earlier handlers of the same operation.
func (s *Server) Register(rcvr any) error {
	handlers, err := scanHandlers(rcvr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for op, h := range handlers {
		s.handlers[op] = h
	}
	return nil
}

// Handle registers a single operation.
func (s *Server) Handle(op string, h HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[op] = h
}

// Use appends a middleware. The chain is rebuilt once here, not per request.
func (s *Server) Use(mw middleware.Middleware) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.middlewares = append(s.middlewares, mw)
	s.handler = middleware.Chain(s.middlewares...)(s.businessHandler)
}

// Operations lists the registered operation names.
func (s *Server) Operations() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ops := make([]string, 0, len(s.handlers))
	for op := range s.handlers {
		ops = append(ops, op)
	}
	return ops
}

// Dispatch runs call through the middleware chain. It implements
// transport.Dispatcher.
func (s *Server) Dispatch(ctx context.Context, call *message.Call) (string, error) {
	s.mu.RLock()
	h := s.handler
	s.mu.RUnlock()
	return h(ctx, call)
}

// businessHandler is the innermost handler of the chain.
func (s *Server) businessHandler(ctx context.Context, call *message.Call) (callErr string, err error) {
	s.mu.RLock()
	h, ok := s.handlers[call.Operation]
	s.mu.RUnlock()
	if !ok {
		return "unknown operation: " + call.Operation, nil
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("operation panicked", zap.String("op", call.Operation), zap.Any("panic", r))
			callErr, err = fmt.Sprintf("%s: internal error", call.Operation), nil
		}
	}()
	if err := h(ctx, &Request{Operation: call.Operation, Args: call.Args, alloc: call.Alloc}); err != nil {
		return err.Error(), nil
	}
	return "", nil
}

// serve runs one decoded request against a fresh Collector and builds the
// response. Buffers only travel back when the call succeeded.
func (s *Server) serve(ctx context.Context, seq uint32, req *message.Request) *message.Response {
	collector := buffer.NewCollector(s.maxAlloc)
	call := &message.Call{
		Seq:       uint64(seq),
		Operation: req.Operation,
		Args:      req.Args,
		Alloc:     collector.Alloc,
	}
	callErr, err := s.Dispatch(ctx, call)
	handles := collector.Seal()

	switch {
	case err != nil:
		return &message.Response{Error: err.Error()}
	case callErr != "":
		return &message.Response{Error: callErr}
	}
	return &message.Response{Allocations: transport.Allocations(handles)}
}

// Serve listens on address and accepts connections until Shutdown. When reg
// is non-nil the host registers advertiseAddr, which must be routable from
// clients (":8080" is not).
func (s *Server) Serve(network, address, advertiseAddr string, reg registry.Registry) error {
	listener, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	if reg != nil {
		inst := registry.ServiceInstance{Addr: advertiseAddr, Transport: network, Weight: 1}
		if err := s.Advertise(context.Background(), reg, inst); err != nil {
			listener.Close()
			return err
		}
	}
	return s.ServeListener(listener)
}

// Advertise registers inst with a 10 second lease that is kept alive until
// Shutdown deregisters it.
func (s *Server) Advertise(ctx context.Context, reg registry.Registry, inst registry.ServiceInstance) error {
	if err := reg.Register(ctx, s.serviceName, inst, 10); err != nil {
		return fmt.Errorf("register %s at %s: %w", s.serviceName, inst.Addr, err)
	}
	s.mu.Lock()
	s.registry = reg
	s.advertised = append(s.advertised, inst.Addr)
	s.mu.Unlock()
	s.logger.Info("engine registered", zap.String("service", s.serviceName), zap.String("addr", inst.Addr))
	return nil
}

// ServeListener accepts connections on l until Shutdown.
func (s *Server) ServeListener(l net.Listener) error {
	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()

	for {
		conn, err := l.Accept()
		if err != nil {
			if s.shutdown.Load() {
				return nil
			}
			return err
		}
		go s.handleConn(conn)
	}
}

// handleConn reads frames sequentially; frame boundaries are only preserved
// with a single reader. Each request runs in its own goroutine, and writeMu
// keeps their responses from interleaving.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	writeMu := &sync.Mutex{}
	for {
		header, body, err := protocol.Decode(conn)
		if err != nil {
			s.logger.Debug("connection closed", zap.String("remote", conn.RemoteAddr().String()), zap.Error(err))
			return
		}
		if header.MsgType == protocol.MsgTypeHeartbeat {
			continue
		}
		if header.MsgType != protocol.MsgTypeRequest {
			s.logger.Warn("unexpected frame", zap.Uint8("msgType", uint8(header.MsgType)))
			continue
		}
		s.wg.Add(1)
		go s.handleRequest(header, body, conn, writeMu)
	}
}

func (s *Server) handleRequest(header *protocol.Header, body []byte, conn net.Conn, writeMu *sync.Mutex) {
	defer s.wg.Done()

	c := codec.GetCodec(codec.CodecType(header.CodecType))
	var resp *message.Response
	req := &message.Request{}
	if err := c.Decode(body, req); err != nil {
		resp = &message.Response{Error: fmt.Sprintf("malformed request: %v", err)}
	} else {
		resp = s.serve(context.Background(), header.Seq, req)
	}

	result, err := c.Encode(resp)
	if err != nil {
		s.logger.Error("failed to encode response", zap.String("op", req.Operation), zap.Error(err))
		return
	}

	replyHeader := protocol.Header{
		CodecType: header.CodecType,
		MsgType:   protocol.MsgTypeResponse,
		Flags:     header.Flags & protocol.FlagZstd,
		Seq:       header.Seq, // same seq as the request, this is how multiplexing works
	}
	writeMu.Lock()
	defer writeMu.Unlock()
	if err := protocol.Encode(conn, &replyHeader, result); err != nil {
		s.logger.Warn("failed to write response", zap.String("op", req.Operation), zap.Error(err))
	}
}

// Shutdown performs graceful shutdown:
//  1. Deregister from the registry so clients stop picking this host
//  2. Set the shutdown flag, then close the listener
//  3. Wait for in-flight requests, up to timeout
func (s *Server) Shutdown(timeout time.Duration) error {
	s.mu.Lock()
	reg, addrs := s.registry, s.advertised
	s.advertised = nil
	listener := s.listener
	s.mu.Unlock()

	if reg != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		for _, addr := range addrs {
			if err := reg.Deregister(ctx, s.serviceName, addr); err != nil {
				s.logger.Warn("deregister failed", zap.String("addr", addr), zap.Error(err))
			}
		}
		cancel()
	}

	// The flag goes first; otherwise Serve sees the Accept error as a failure.
	s.shutdown.Store(true)
	if listener != nil {
		listener.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for ongoing requests to finish")
	}
}
