package client

import (
	"context"
	"testing"

	"pixlise-client/codec"
	"pixlise-client/mock"
	"pixlise-client/transport"
)

func benchCall(b *testing.B, c *Client) {
	ctx := context.Background()
	if err := c.Authenticate(ctx, testConfig); err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := c.GetQuantColumn(ctx, mock.QuantNaltsos, "Na2O_%", "Combined"); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkLocalCall(b *testing.B) {
	c := New(transport.NewLocalBinding(mock.NewServer(mock.NewEngine())))
	defer c.Close()
	benchCall(b, c)
}

func BenchmarkStreamCall(b *testing.B) {
	for _, bc := range []struct {
		name     string
		codec    codec.CodecType
		compress bool
	}{
		{"json", codec.CodecTypeJSON, false},
		{"binary", codec.CodecTypeBinary, false},
		{"binary-zstd", codec.CodecTypeBinary, true},
	} {
		b.Run(bc.name, func(b *testing.B) {
			addr := startEngine(b)
			c, err := Dial(context.Background(), "tcp://"+addr,
				WithDialOptions(transport.WithCodec(bc.codec), transport.WithCompression(bc.compress)))
			if err != nil {
				b.Fatal(err)
			}
			defer c.Close()
			benchCall(b, c)
		})
	}
}

// One client per goroutine; a single Client runs its calls one at a time.
func BenchmarkStreamParallel(b *testing.B) {
	addr := startEngine(b)
	b.RunParallel(func(pb *testing.PB) {
		ctx := context.Background()
		c, err := Dial(ctx, "tcp://"+addr, WithDialOptions(transport.WithPoolSize(1)))
		if err != nil {
			b.Error(err)
			return
		}
		defer c.Close()
		if err := c.Authenticate(ctx, testConfig); err != nil {
			b.Error(err)
			return
		}
		for pb.Next() {
			if _, err := c.ListScans(ctx, mock.ScanNaltsos); err != nil {
				b.Error(err)
				return
			}
		}
	})
}
