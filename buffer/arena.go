package buffer

import (
	"sync"

	"pixlise-client/rpcerr"
)

const (
	DefaultMaxAllocation = 256 << 20 // 256 MiB for a single buffer
	DefaultMaxLiveBytes  = 1 << 30   // 1 GiB held by one arena
)

// Arena owns the buffers allocated on behalf of one client instance.
type Arena struct {
	mu       sync.Mutex
	queue    []*Handle       // FIFO of unclaimed buffers, in allocation order
	open     map[uint64]bool // calls whose allocator still accepts requests
	seq      uint64          // last sequence number handed out by Begin
	live     int             // bytes held by buffers not yet released
	maxAlloc int             // per-buffer cap in bytes, 0 = unlimited
	maxLive  int             // total cap in bytes, 0 = unlimited
	closed   bool
}

type Option func(*Arena)

// WithMaxAllocation caps the size of a single buffer.
func WithMaxAllocation(n int) Option {
	return func(a *Arena) { a.maxAlloc = n }
}

// WithMaxLiveBytes caps the bytes held by unreleased buffers.
func WithMaxLiveBytes(n int) Option {
	return func(a *Arena) { a.maxLive = n }
}

func NewArena(opts ...Option) *Arena {
	a := &Arena{
		open:     make(map[uint64]bool),
		maxAlloc: DefaultMaxAllocation,
		maxLive:  DefaultMaxLiveBytes,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Begin opens a call slot and returns its sequence number and the allocator
// the engine must use for that call.
func (a *Arena) Begin() (uint64, Allocator, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return 0, nil, rpcerr.New(rpcerr.KindBindingUnavailable, "", "buffer arena closed")
	}
	a.seq++
	seq := a.seq
	a.open[seq] = true
	return seq, func(tag TypeTag, count int) (*Handle, error) {
		return a.alloc(seq, tag, count)
	}, nil
}

func (a *Arena) alloc(seq uint64, tag TypeTag, count int) (*Handle, error) {
	n, err := checkRequest(tag, count, a.maxAlloc)
	if err != nil {
		return nil, rpcerr.Wrap(rpcerr.KindProtocolViolation, "", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed || !a.open[seq] {
		return nil, rpcerr.New(rpcerr.KindProtocolViolation, "", "allocation for finished call %d", seq)
	}
	if a.maxLive > 0 && a.live+n > a.maxLive {
		return nil, rpcerr.New(rpcerr.KindProtocolViolation, "", "arena limit of %d bytes exceeded", a.maxLive)
	}

	h := &Handle{
		seq:   seq,
		tag:   tag,
		count: count,
		data:  make([]byte, n),
		owner: a,
	}
	a.queue = append(a.queue, h)
	a.live += n
	return h, nil
}

// Pop removes the front buffer, which must belong to call seq. An empty queue
// or a buffer from another call means the engine broke the exchange contract.
func (a *Arena) Pop(seq uint64) (*Handle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.queue) == 0 {
		return nil, rpcerr.New(rpcerr.KindProtocolViolation, "", "no buffer allocated by successful call %d", seq)
	}
	h := a.queue[0]
	if h.seq != seq {
		return nil, rpcerr.New(rpcerr.KindProtocolViolation, "", "front buffer belongs to call %d, expected %d", h.seq, seq)
	}
	a.queue[0] = nil
	a.queue = a.queue[1:]
	return h, nil
}

// Discard releases every queued buffer of call seq. The call may keep
// allocating.
func (a *Arena) Discard(seq uint64) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.discardLocked(seq)
}

// End closes the allocator of call seq and releases whatever it left queued.
// It returns the number of buffers released.
func (a *Arena) End(seq uint64) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.open, seq)
	return a.discardLocked(seq)
}

func (a *Arena) discardLocked(seq uint64) int {
	kept := a.queue[:0]
	dropped := 0
	for _, h := range a.queue {
		if h.seq == seq {
			a.freeLocked(h)
			dropped++
			continue
		}
		kept = append(kept, h)
	}
	for i := len(kept); i < len(a.queue); i++ {
		a.queue[i] = nil
	}
	a.queue = kept
	return dropped
}

// Len returns the number of unclaimed buffers.
func (a *Arena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.queue)
}

// LiveBytes returns the bytes held by buffers that were not released yet,
// popped or not.
func (a *Arena) LiveBytes() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.live
}

// Close drains the queue and rejects all further allocations.
func (a *Arena) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, h := range a.queue {
		a.freeLocked(h)
	}
	a.queue = nil
	a.open = make(map[uint64]bool)
	a.closed = true
}

func (a *Arena) release(h *Handle) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, q := range a.queue {
		if q == h {
			last := len(a.queue) - 1
			copy(a.queue[i:], a.queue[i+1:])
			a.queue[last] = nil
			a.queue = a.queue[:last]
			break
		}
	}
	a.freeLocked(h)
}

func (a *Arena) freeLocked(h *Handle) {
	if h.released {
		return
	}
	a.live -= len(h.data)
	h.data = nil
	h.released = true
}
