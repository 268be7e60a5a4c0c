package transport

import (
	"context"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"pixlise-client/codec"
	"pixlise-client/message"
	"pixlise-client/protocol"
	"pixlise-client/rpcerr"
)

type result struct {
	resp *message.Response
	err  error
}

// SocketBinding multiplexes calls over a single stream connection.
//
// Each request gets its own frame sequence number, and a background goroutine
// (recvLoop) reads responses and routes them to the waiting caller.
//
//	goroutine-1 ──Invoke(seq=1)──┐
//	goroutine-2 ──Invoke(seq=2)──┼──→ single conn ──→ engine host
//	goroutine-3 ──Invoke(seq=3)──┘
//
//	recvLoop:  ←── response(seq=2) → pending[2] ← response → goroutine-2 wakes up
type SocketBinding struct {
	conn   net.Conn
	codec  codec.Codec
	flags  byte
	logger *zap.Logger

	mu      sync.Mutex
	seq     uint32
	pending map[uint32]chan result // each call waits on its own channel
	closed  bool
	cause   error // why the connection stopped

	// Whole frames must be written under sending, otherwise header and body of
	// concurrent calls interleave on the stream.
	sending sync.Mutex
	done    chan struct{}
}

// NewSocketBinding takes ownership of conn and starts the receive loop and,
// if configured, the heartbeat.
func NewSocketBinding(conn net.Conn, opts ...Option) *SocketBinding {
	o := newOptions(opts)
	b := &SocketBinding{
		conn:    conn,
		codec:   codec.GetCodec(o.Codec),
		logger:  o.Logger.With(zap.String("remote", conn.RemoteAddr().String())),
		pending: make(map[uint32]chan result),
		done:    make(chan struct{}),
	}
	if o.Compress {
		b.flags |= protocol.FlagZstd
	}
	go b.recvLoop()
	if o.Heartbeat > 0 {
		go b.heartbeatLoop(o.Heartbeat)
	}
	return b
}

func (b *SocketBinding) Invoke(ctx context.Context, call *message.Call) (string, error) {
	body, err := b.codec.Encode(call.Request())
	if err != nil {
		return "", rpcerr.Wrap(rpcerr.KindInvalidArgument, call.Operation, err)
	}

	// Register the response channel before sending so recvLoop cannot miss it.
	ch := make(chan result, 1)
	b.mu.Lock()
	if b.closed {
		cause := b.cause
		b.mu.Unlock()
		return "", rpcerr.Wrap(rpcerr.KindBindingUnavailable, call.Operation, cause)
	}
	b.seq++
	seq := b.seq
	b.pending[seq] = ch
	b.mu.Unlock()

	header := protocol.Header{
		CodecType: byte(b.codec.Type()),
		MsgType:   protocol.MsgTypeRequest,
		Flags:     b.flags,
		Seq:       seq,
	}
	b.sending.Lock()
	err = protocol.Encode(b.conn, &header, body)
	b.sending.Unlock()
	if err != nil {
		b.forget(seq)
		b.fail(err)
		return "", rpcerr.Wrap(rpcerr.KindBindingUnavailable, call.Operation, err)
	}

	select {
	case r := <-ch:
		if r.err != nil {
			return "", rpcerr.Wrap(rpcerr.KindBindingUnavailable, call.Operation, r.err)
		}
		return Replay(call, r.resp)
	case <-ctx.Done():
		// A late response for seq is dropped by recvLoop.
		b.forget(seq)
		return "", rpcerr.FromContext(call.Operation, ctx.Err())
	}
}

func (b *SocketBinding) forget(seq uint32) {
	b.mu.Lock()
	delete(b.pending, seq)
	b.mu.Unlock()
}

// recvLoop is the only reader of the connection; frame boundaries are only
// preserved with sequential reads.
func (b *SocketBinding) recvLoop() {
	for {
		header, body, err := protocol.Decode(b.conn)
		if err != nil {
			b.fail(err)
			return
		}
		switch header.MsgType {
		case protocol.MsgTypeHeartbeat:
			continue
		case protocol.MsgTypeResponse:
		default:
			b.logger.Warn("unexpected frame from engine", zap.Uint8("msgType", uint8(header.MsgType)))
			continue
		}

		r := result{resp: &message.Response{}}
		if err := codec.GetCodec(codec.CodecType(header.CodecType)).Decode(body, r.resp); err != nil {
			r = result{err: rpcerr.Wrap(rpcerr.KindMalformedPayload, "", err)}
		}

		b.mu.Lock()
		ch, ok := b.pending[header.Seq]
		delete(b.pending, header.Seq)
		b.mu.Unlock()
		if !ok {
			b.logger.Debug("dropping response of abandoned call", zap.Uint32("seq", header.Seq))
			continue
		}
		ch <- r
	}
}

// fail marks the connection dead and wakes every pending caller.
func (b *SocketBinding) fail(cause error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.cause = cause
	for seq, ch := range b.pending {
		ch <- result{err: cause}
		delete(b.pending, seq)
	}
	close(b.done)
	b.conn.Close()
	if cause != net.ErrClosed {
		b.logger.Warn("engine connection lost", zap.Error(cause))
	}
}

// heartbeatLoop keeps idle connections from being reaped. Heartbeat frames
// carry no body.
func (b *SocketBinding) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
		}
		header := &protocol.Header{MsgType: protocol.MsgTypeHeartbeat}
		b.sending.Lock()
		err := protocol.Encode(b.conn, header, nil)
		b.sending.Unlock()
		if err != nil {
			b.fail(err)
			return
		}
	}
}

// Close shuts the connection; pending calls fail with BindingUnavailable.
func (b *SocketBinding) Close() error {
	b.fail(net.ErrClosed)
	return nil
}
