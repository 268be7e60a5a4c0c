package transport

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"pixlise-client/codec"
	"pixlise-client/message"
	"pixlise-client/protocol"
	"pixlise-client/rpcerr"
)

var ErrPoolClosed = errors.New("connection pool closed")

// ConnPool manages reusable connections to a single engine host.
//
// A buffered channel is the idle list: it is a FIFO, safe for concurrent use,
// and blocking on empty is built in.
type ConnPool struct {
	mu       sync.Mutex
	conns    chan *PoolConn // idle connections
	maxConns int
	curConns int // connections in existence, idle or borrowed
	closed   bool
	factory  func(ctx context.Context) (net.Conn, error)
}

// PoolConn wraps a net.Conn with pool metadata.
type PoolConn struct {
	net.Conn
	unusable bool // set after an I/O error; the conn is dropped on Put
}

// MarkUnusable makes Put close the connection instead of keeping it.
func (c *PoolConn) MarkUnusable() { c.unusable = true }

// NewConnPool creates an empty pool. Connections are dialed on demand.
func NewConnPool(maxConns int, factory func(ctx context.Context) (net.Conn, error)) *ConnPool {
	if maxConns < 1 {
		maxConns = 1
	}
	return &ConnPool{
		conns:    make(chan *PoolConn, maxConns),
		maxConns: maxConns,
		factory:  factory,
	}
}

// Get borrows a connection: an idle one if available, a new one while under
// the limit, otherwise it waits for a Put or for ctx.
func (p *ConnPool) Get(ctx context.Context) (*PoolConn, error) {
	select {
	case c, ok := <-p.conns:
		if !ok {
			return nil, ErrPoolClosed
		}
		return c, nil
	default:
	}

	if c, created, err := p.createNew(ctx); created || err != nil {
		return c, err
	}

	select {
	case c, ok := <-p.conns:
		if !ok {
			return nil, ErrPoolClosed
		}
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// createNew dials a connection if the pool has room. The slot is reserved
// under the lock and the dial happens outside of it.
func (p *ConnPool) createNew(ctx context.Context) (*PoolConn, bool, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, false, ErrPoolClosed
	}
	if p.curConns >= p.maxConns {
		p.mu.Unlock()
		return nil, false, nil
	}
	p.curConns++
	p.mu.Unlock()

	conn, err := p.factory(ctx)
	if err != nil {
		p.mu.Lock()
		p.curConns--
		p.mu.Unlock()
		return nil, false, err
	}
	return &PoolConn{Conn: conn}, true, nil
}

// Put returns a borrowed connection. Unusable connections and connections
// returned after Close are closed.
func (p *ConnPool) Put(c *PoolConn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c.unusable || p.closed {
		c.Close()
		p.curConns--
		return
	}
	// never blocks: at most maxConns connections exist
	p.conns <- c
}

// Close closes idle connections; borrowed ones are closed when returned.
func (p *ConnPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.conns)
	for c := range p.conns {
		c.Close()
		p.curConns--
	}
	return nil
}

// PooledBinding runs each call exclusively on a connection borrowed from a
// ConnPool. Deadlines come from the call's context.
type PooledBinding struct {
	pool   *ConnPool
	codec  codec.Codec
	flags  byte
	logger *zap.Logger
	seq    atomic.Uint32
}

func NewPooledBinding(pool *ConnPool, opts ...Option) *PooledBinding {
	o := newOptions(opts)
	b := &PooledBinding{pool: pool, codec: codec.GetCodec(o.Codec), logger: o.Logger}
	if o.Compress {
		b.flags |= protocol.FlagZstd
	}
	return b
}

func (b *PooledBinding) Invoke(ctx context.Context, call *message.Call) (string, error) {
	body, err := b.codec.Encode(call.Request())
	if err != nil {
		return "", rpcerr.Wrap(rpcerr.KindInvalidArgument, call.Operation, err)
	}

	pc, err := b.pool.Get(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return "", rpcerr.FromContext(call.Operation, ctx.Err())
		}
		return "", rpcerr.Wrap(rpcerr.KindBindingUnavailable, call.Operation, err)
	}
	defer b.pool.Put(pc)

	deadline, _ := ctx.Deadline() // zero clears an earlier deadline
	pc.SetDeadline(deadline)

	resp, err := b.roundTrip(pc, body)
	if err != nil {
		pc.MarkUnusable()
		b.logger.Debug("dropping pooled connection", zap.String("op", call.Operation), zap.Error(err))
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return "", rpcerr.New(rpcerr.KindTimeout, call.Operation, "%v", err)
		}
		return "", rpcerr.Wrap(rpcerr.KindBindingUnavailable, call.Operation, err)
	}
	return Replay(call, resp)
}

func (b *PooledBinding) roundTrip(conn net.Conn, body []byte) (*message.Response, error) {
	seq := b.seq.Add(1)
	header := protocol.Header{
		CodecType: byte(b.codec.Type()),
		MsgType:   protocol.MsgTypeRequest,
		Flags:     b.flags,
		Seq:       seq,
	}
	if err := protocol.Encode(conn, &header, body); err != nil {
		return nil, err
	}

	for {
		h, respBody, err := protocol.Decode(conn)
		if err != nil {
			return nil, err
		}
		if h.MsgType == protocol.MsgTypeHeartbeat {
			continue
		}
		if h.MsgType != protocol.MsgTypeResponse || h.Seq != seq {
			return nil, rpcerr.New(rpcerr.KindProtocolViolation, "", "unexpected frame type %d seq %d, want response %d", h.MsgType, h.Seq, seq)
		}
		resp := &message.Response{}
		if err := codec.GetCodec(codec.CodecType(h.CodecType)).Decode(respBody, resp); err != nil {
			return nil, rpcerr.Wrap(rpcerr.KindMalformedPayload, "", err)
		}
		return resp, nil
	}
}

func (b *PooledBinding) Close() error {
	return b.pool.Close()
}
