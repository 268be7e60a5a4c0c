package loadbalance

import (
	"fmt"
	"hash/crc32"
	"slices"
	"strings"
	"sync"

	"pixlise-client/registry"
)

// ConsistentHashBalancer maps keys to instances using a hash ring, so the same
// key keeps landing on the same host until the instance set changes.
//
// Each real instance is placed on the ring as many virtual nodes to spread
// load evenly.
//
//	Hash Ring:
//	                  0
//	                ╱   ╲
//	              ╱       ╲
//	         B ●               ● A
//	           │    key ◆──►   │   (clockwise to nearest node → A)
//	         C ●               ● A' (virtual node of A)
//	              ╲       ╱
//	                ╲   ╱
type ConsistentHashBalancer struct {
	replicas int

	mu      sync.Mutex
	members string   // joined addresses the ring was built from
	ring    []uint32 // sorted hash values
	nodes   map[uint32]registry.ServiceInstance
}

// NewConsistentHashBalancer creates a hash ring with 100 virtual nodes per instance.
func NewConsistentHashBalancer() *ConsistentHashBalancer {
	return &ConsistentHashBalancer{
		replicas: 100,
		nodes:    make(map[uint32]registry.ServiceInstance),
	}
}

// Add places an instance onto the ring.
func (b *ConsistentHashBalancer) Add(instance registry.ServiceInstance) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.addLocked(instance)
	slices.Sort(b.ring)
}

func (b *ConsistentHashBalancer) addLocked(instance registry.ServiceInstance) {
	for i := 0; i < b.replicas; i++ {
		hash := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", instance.Addr, i)))
		b.ring = append(b.ring, hash)
		b.nodes[hash] = instance
	}
}

// rebuildLocked resets the ring when instances differs from the set it was
// built from.
func (b *ConsistentHashBalancer) rebuildLocked(instances []registry.ServiceInstance) {
	addrs := make([]string, len(instances))
	for i, inst := range instances {
		addrs[i] = inst.Addr
	}
	slices.Sort(addrs)
	members := strings.Join(addrs, ",")
	if members == b.members {
		return
	}
	b.members = members
	b.ring = b.ring[:0]
	clear(b.nodes)
	for _, inst := range instances {
		b.addLocked(inst)
	}
	slices.Sort(b.ring)
}

// Pick hashes key and walks clockwise to the first virtual node. If instances
// is nil the ring built through Add is used as is.
func (b *ConsistentHashBalancer) Pick(instances []registry.ServiceInstance, key string) (*registry.ServiceInstance, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if instances != nil {
		b.rebuildLocked(instances)
	}
	if len(b.ring) == 0 {
		return nil, ErrNoInstances
	}

	hash := crc32.ChecksumIEEE([]byte(key))
	idx, _ := slices.BinarySearch(b.ring, hash)
	if idx == len(b.ring) {
		idx = 0
	}
	inst := b.nodes[b.ring[idx]]
	return &inst, nil
}

func (b *ConsistentHashBalancer) Name() string {
	return "consistent_hash"
}
