package loadbalance

import (
	"errors"
	"fmt"
	"testing"

	"pixlise-client/registry"
)

var testInstances = []registry.ServiceInstance{
	{Addr: ":8001", Weight: 10, Version: "1.0"},
	{Addr: ":8002", Weight: 5, Version: "1.0"},
	{Addr: ":8003", Weight: 10, Version: "1.0"},
}

func TestRoundRobin(t *testing.T) {
	b := &RoundRobinBalancer{}

	results := make([]string, 3)
	for i := 0; i < 3; i++ {
		inst, err := b.Pick(testInstances, "")
		if err != nil {
			t.Fatal(err)
		}
		results[i] = inst.Addr
	}
	if results[0] != ":8001" || results[1] != ":8002" || results[2] != ":8003" {
		t.Fatalf("unexpected order %v", results)
	}

	// Pick again, should wrap around to first
	inst, _ := b.Pick(testInstances, "")
	if inst.Addr != results[0] {
		t.Fatalf("expect wrap around to %s, got %s", results[0], inst.Addr)
	}
}

func TestEmptyInstances(t *testing.T) {
	for _, b := range []Balancer{&RoundRobinBalancer{}, &WeightedRandomBalancer{}, NewConsistentHashBalancer()} {
		if _, err := b.Pick([]registry.ServiceInstance{}, "k"); !errors.Is(err, ErrNoInstances) {
			t.Fatalf("%s: expect ErrNoInstances, got %v", b.Name(), err)
		}
	}
}

func TestWeightedRandom(t *testing.T) {
	b := &WeightedRandomBalancer{}

	counts := map[string]int{}
	n := 10000
	for i := 0; i < n; i++ {
		inst, err := b.Pick(testInstances, "")
		if err != nil {
			t.Fatal(err)
		}
		counts[inst.Addr]++
	}

	// Weight ratio is 10:5:10, so :8001 and :8003 should be ~2x of :8002
	ratio := float64(counts[":8001"]) / float64(counts[":8002"])
	if ratio < 1.5 || ratio > 2.5 {
		t.Fatalf("weight ratio :8001/:8002 = %.2f, expect ~2.0", ratio)
	}
}

func TestWeightedRandomZeroWeights(t *testing.T) {
	b := &WeightedRandomBalancer{}
	instances := []registry.ServiceInstance{{Addr: "a"}, {Addr: "b", Weight: -2}}
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		inst, err := b.Pick(instances, "")
		if err != nil {
			t.Fatal(err)
		}
		seen[inst.Addr] = true
	}
	if len(seen) != 2 {
		t.Fatalf("expect both instances to be picked, got %v", seen)
	}
}

func TestConsistentHash(t *testing.T) {
	b := NewConsistentHashBalancer()
	for _, inst := range testInstances {
		b.Add(inst)
	}

	// Same key should always map to the same instance
	inst1, _ := b.Pick(nil, "user-123")
	inst2, _ := b.Pick(nil, "user-123")
	if inst1.Addr != inst2.Addr {
		t.Fatalf("same key mapped to different instances: %s vs %s", inst1.Addr, inst2.Addr)
	}

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		inst, _ := b.Pick(nil, fmt.Sprintf("key-%d", i))
		seen[inst.Addr] = true
	}
	if len(seen) < 2 {
		t.Fatalf("expect at least 2 different instances, got %d", len(seen))
	}
}

func TestConsistentHashFollowsInstanceSet(t *testing.T) {
	b := NewConsistentHashBalancer()
	first, err := b.Pick(testInstances, "scan-048300551")
	if err != nil {
		t.Fatal(err)
	}

	// Dropping a different host keeps the key where it was.
	var rest []registry.ServiceInstance
	for _, inst := range testInstances {
		if inst.Addr != first.Addr {
			rest = append(rest, inst)
		}
	}
	kept := []registry.ServiceInstance{*first, rest[0]}
	again, _ := b.Pick(kept, "scan-048300551")
	if again.Addr != first.Addr {
		t.Fatalf("key moved from %s to %s", first.Addr, again.Addr)
	}

	// Dropping its own host moves it.
	moved, _ := b.Pick(rest, "scan-048300551")
	if moved.Addr == first.Addr {
		t.Fatalf("key still on removed host %s", first.Addr)
	}
}

func TestNew(t *testing.T) {
	for _, name := range []string{"round_robin", "weighted_random", "consistent_hash"} {
		b, err := New(name)
		if err != nil {
			t.Fatal(err)
		}
		if b.Name() != name {
			t.Fatalf("expect %s, got %s", name, b.Name())
		}
	}
	if b, _ := New(""); b.Name() != "round_robin" {
		t.Fatal("expect round robin by default")
	}
	if _, err := New("random"); err == nil {
		t.Fatal("expect error for unknown balancer")
	}
}
