// Package registry tracks where engine hosts can be reached.
//
// An engine host announces itself under a service name with the address and
// transport it listens on; clients dialing an etcd:// target discover the live
// instances and pick one through a load balancer.
package registry

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// ServiceInstance is one reachable engine host.
type ServiceInstance struct {
	Addr      string `json:"addr"`
	Transport string `json:"transport"` // tcp, unix, grpc or http
	Weight    int    `json:"weight"`    // used by weighted balancing
	Version   string `json:"version,omitempty"`
}

// Target renders the instance as a dial target, e.g. "grpc://10.0.0.3:7070".
func (s ServiceInstance) Target() string {
	transport := s.Transport
	if transport == "" {
		transport = "tcp"
	}
	return transport + "://" + s.Addr
}

type Registry interface {
	Register(ctx context.Context, serviceName string, instance ServiceInstance, ttl int64) error
	Deregister(ctx context.Context, serviceName string, addr string) error
	Discover(ctx context.Context, serviceName string) ([]ServiceInstance, error)
	// Watch emits the full instance list after every change until ctx is done.
	Watch(ctx context.Context, serviceName string) <-chan []ServiceInstance
}

// StaticRegistry keeps instances in memory. It backs single-process setups and
// tests; ttl is ignored.
type StaticRegistry struct {
	mu       sync.Mutex
	services map[string][]ServiceInstance
	watchers map[string][]chan []ServiceInstance
}

func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{
		services: make(map[string][]ServiceInstance),
		watchers: make(map[string][]chan []ServiceInstance),
	}
}

func (r *StaticRegistry) Register(ctx context.Context, serviceName string, instance ServiceInstance, ttl int64) error {
	if instance.Addr == "" {
		return fmt.Errorf("register %s: empty address", serviceName)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	list := slices.DeleteFunc(r.services[serviceName], func(s ServiceInstance) bool {
		return s.Addr == instance.Addr
	})
	r.services[serviceName] = append(list, instance)
	r.notifyLocked(serviceName)
	return nil
}

func (r *StaticRegistry) Deregister(ctx context.Context, serviceName string, addr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[serviceName] = slices.DeleteFunc(r.services[serviceName], func(s ServiceInstance) bool {
		return s.Addr == addr
	})
	r.notifyLocked(serviceName)
	return nil
}

func (r *StaticRegistry) Discover(ctx context.Context, serviceName string) ([]ServiceInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.services[serviceName]), nil
}

func (r *StaticRegistry) Watch(ctx context.Context, serviceName string) <-chan []ServiceInstance {
	ch := make(chan []ServiceInstance, 1)
	r.mu.Lock()
	r.watchers[serviceName] = append(r.watchers[serviceName], ch)
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		defer r.mu.Unlock()
		r.watchers[serviceName] = slices.DeleteFunc(r.watchers[serviceName], func(c chan []ServiceInstance) bool {
			return c == ch
		})
		close(ch)
	}()
	return ch
}

// notifyLocked hands every watcher the latest list, replacing one it has not
// read yet.
func (r *StaticRegistry) notifyLocked(serviceName string) {
	for _, ch := range r.watchers[serviceName] {
		list := slices.Clone(r.services[serviceName])
		select {
		case <-ch:
		default:
		}
		ch <- list
	}
}
