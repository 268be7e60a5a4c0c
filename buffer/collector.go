package buffer

import "sync"

// Collector is an Allocator target for engines running out of process. It
// records every buffer in allocation order so the host can ship them back to
// the caller, where they are replayed into the caller's Arena.
type Collector struct {
	mu       sync.Mutex
	handles  []*Handle
	maxAlloc int
	sealed   bool
}

func NewCollector(maxAlloc int) *Collector {
	return &Collector{maxAlloc: maxAlloc}
}

func (c *Collector) Alloc(tag TypeTag, count int) (*Handle, error) {
	n, err := checkRequest(tag, count, c.maxAlloc)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sealed {
		return nil, errSealed
	}
	h := &Handle{tag: tag, count: count, data: make([]byte, n)}
	c.handles = append(c.handles, h)
	return h, nil
}

// Seal stops further allocations and returns the buffers in allocation order.
func (c *Collector) Seal() []*Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sealed = true
	out := c.handles
	c.handles = nil
	return out
}
