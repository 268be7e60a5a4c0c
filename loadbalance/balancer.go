// Package loadbalance chooses which engine host serves a client.
//
// Three strategies are implemented:
//   - RoundRobin:      equal-capacity hosts
//   - WeightedRandom:  hosts of different sizes, by ServiceInstance.Weight
//   - ConsistentHash:  keeps a key (a user or scan id) on the same host
package loadbalance

import (
	"errors"
	"fmt"

	"pixlise-client/registry"
)

var ErrNoInstances = errors.New("no instances available")

// Balancer selects a target instance when a client dials a discovered service.
// Implementations must be goroutine-safe.
type Balancer interface {
	// Pick selects one instance. key is only used by key-affine strategies
	// and may be empty.
	Pick(instances []registry.ServiceInstance, key string) (*registry.ServiceInstance, error)

	// Name returns the strategy name used in configuration.
	Name() string
}

// New returns the balancer with the given configuration name. An empty name
// selects round robin.
func New(name string) (Balancer, error) {
	switch name {
	case "", "round_robin":
		return &RoundRobinBalancer{}, nil
	case "weighted_random":
		return &WeightedRandomBalancer{}, nil
	case "consistent_hash":
		return NewConsistentHashBalancer(), nil
	}
	return nil, fmt.Errorf("unknown balancer %q", name)
}
