package client

import (
	"context"
	"net"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"pixlise-client/config"
	"pixlise-client/mock"
	"pixlise-client/registry"
	"pixlise-client/server"
)

const etcdEndpoint = "localhost:2379"

// newTestEtcd connects to a local etcd, skipping the test when none answers.
func newTestEtcd(t *testing.T) *registry.EtcdRegistry {
	t.Helper()
	reg, err := registry.NewEtcdRegistry([]string{etcdEndpoint}, zaptest.NewLogger(t))
	if err != nil {
		t.Skipf("etcd unavailable: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := reg.Discover(ctx, "health"); err != nil {
		reg.Close()
		t.Skipf("etcd unavailable: %v", err)
	}
	t.Cleanup(func() { reg.Close() })
	return reg
}

// Two engines register under one service; clients dialing through etcd
// reach both and see the same dataset.
func TestDialThroughEtcd(t *testing.T) {
	reg := newTestEtcd(t)
	service := "engine-it-" + time.Now().Format("150405.000")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		s := mock.NewServer(mock.NewEngine(), server.WithServiceName(service), server.WithLogger(zaptest.NewLogger(t)))
		l, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatal(err)
		}
		inst := registry.ServiceInstance{Addr: l.Addr().String(), Transport: "tcp", Weight: 1}
		if err := s.Advertise(ctx, reg, inst); err != nil {
			l.Close()
			t.Fatal(err)
		}
		go s.ServeListener(l)
		t.Cleanup(func() { s.Shutdown(time.Second) })
	}

	cfg := &config.File{
		Host:     "https://pixlise.example.org",
		User:     "peter",
		Password: "secret",
		Engine: config.Engine{
			Target:        "etcd://" + service,
			EtcdEndpoints: []string{etcdEndpoint},
			Balancer:      "round_robin",
			CallTimeout:   "5s",
		},
	}
	for i := 0; i < 4; i++ {
		c, err := DialConfig(ctx, cfg, WithLogger(zaptest.NewLogger(t)))
		if err != nil {
			t.Fatal(err)
		}
		if err := c.Authenticate(ctx, testConfig); err != nil {
			c.Close()
			t.Fatal(err)
		}
		scans, err := c.ListScans(ctx, "")
		c.Close()
		if err != nil {
			t.Fatalf("dial %d: %v", i, err)
		}
		if len(scans.Scans) != 2 {
			t.Fatalf("dial %d: expect 2 scans, got %d", i, len(scans.Scans))
		}
	}
}
