package registry

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

// newTestEtcd connects to a local etcd, skipping the test when none answers.
func newTestEtcd(t *testing.T) *EtcdRegistry {
	t.Helper()
	reg, err := NewEtcdRegistry([]string{"localhost:2379"}, zaptest.NewLogger(t))
	if err != nil {
		t.Skipf("etcd unavailable: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := reg.client.Get(ctx, "health"); err != nil {
		reg.Close()
		t.Skipf("etcd unavailable: %v", err)
	}
	t.Cleanup(func() { reg.Close() })
	return reg
}

func TestRegisterAndDiscover(t *testing.T) {
	reg := newTestEtcd(t)
	ctx := context.Background()
	service := "engine-test-" + time.Now().Format("150405.000")

	inst1 := ServiceInstance{Addr: "127.0.0.1:8001", Transport: "tcp", Weight: 10, Version: "1.0"}
	inst2 := ServiceInstance{Addr: "127.0.0.1:8002", Transport: "grpc", Weight: 5, Version: "1.0"}

	if err := reg.Register(ctx, service, inst1, 10); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(ctx, service, inst2, 10); err != nil {
		t.Fatal(err)
	}

	instances, err := reg.Discover(ctx, service)
	if err != nil {
		t.Fatal(err)
	}
	if len(instances) != 2 {
		t.Fatalf("expect 2 instances, got %d", len(instances))
	}

	if err := reg.Deregister(ctx, service, inst1.Addr); err != nil {
		t.Fatal(err)
	}

	time.Sleep(100 * time.Millisecond)

	instances, err = reg.Discover(ctx, service)
	if err != nil {
		t.Fatal(err)
	}
	if len(instances) != 1 {
		t.Fatalf("expect 1 instance after deregister, got %d", len(instances))
	}
	if instances[0] != inst2 {
		t.Fatalf("expect %+v, got %+v", inst2, instances[0])
	}

	reg.Deregister(ctx, service, inst2.Addr)
}
