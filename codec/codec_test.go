package codec

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"pixlise-client/message"
)

var testRequest = &message.Request{
	Operation: message.OpGetScanImageBeamLocations,
	Args: []message.Arg{
		message.String("image-1.png"),
		message.String("048300551"),
		message.Int32(-1),
		message.Bool(true),
		message.String(""),
	},
}

var testResponse = &message.Response{
	Allocations: []message.Allocation{
		{Type: 'B', Count: 3, Data: []byte{1, 2, 3}},
		{Type: 'd', Count: 1, Data: []byte{0, 0, 0, 0, 0, 0, 0xf0, 0x3f}},
	},
}

func TestCodecsPreserveEnvelopes(t *testing.T) {
	for _, c := range []Codec{&JSONCodec{}, &BinaryCodec{}} {
		t.Run(c.Type().String(), func(t *testing.T) {
			data, err := c.Encode(testRequest)
			if err != nil {
				t.Fatalf("Encode request failed: %v", err)
			}
			var req message.Request
			if err := c.Decode(data, &req); err != nil {
				t.Fatalf("Decode request failed: %v", err)
			}
			if diff := cmp.Diff(testRequest, &req); diff != "" {
				t.Errorf("request mismatch (-want +got):\n%s", diff)
			}

			data, err = c.Encode(testResponse)
			if err != nil {
				t.Fatalf("Encode response failed: %v", err)
			}
			var resp message.Response
			if err := c.Decode(data, &resp); err != nil {
				t.Fatalf("Decode response failed: %v", err)
			}
			if diff := cmp.Diff(testResponse, &resp, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("response mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBinaryCodecScalarLayout(t *testing.T) {
	c := &BinaryCodec{}
	data, err := c.Encode(&message.Request{
		Operation: "op",
		Args:      []message.Arg{message.String("ab"), message.Int32(-2), message.Bool(true)},
	})
	if err != nil {
		t.Fatal(err)
	}

	want := []byte{0, 2, 'o', 'p', 0, 3}
	want = append(want, byte(message.ArgString), 0, 0, 0, 2, 'a', 'b')
	want = append(want, byte(message.ArgInt32))
	want = binary.BigEndian.AppendUint32(want, 0xfffffffe)
	want = append(want, byte(message.ArgBool), 1)

	if !bytes.Equal(data, want) {
		t.Fatalf("unexpected layout:\n got %v\nwant %v", data, want)
	}
}

func TestBinaryCodecStringsWithNUL(t *testing.T) {
	c := &BinaryCodec{}
	req := &message.Request{Operation: "listScans", Args: []message.Arg{message.String("a\x00b")}}
	data, err := c.Encode(req)
	if err != nil {
		t.Fatal(err)
	}
	var got message.Request
	if err := c.Decode(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.Args[0].Str != "a\x00b" {
		t.Fatalf("embedded NUL lost: %q", got.Args[0].Str)
	}
}

func TestBinaryCodecErrorResponse(t *testing.T) {
	c := &BinaryCodec{}
	data, err := c.Encode(&message.Response{Error: "scan not found"})
	if err != nil {
		t.Fatal(err)
	}
	var resp message.Response
	if err := c.Decode(data, &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Error != "scan not found" || len(resp.Allocations) != 0 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestBinaryCodecRejectsTruncated(t *testing.T) {
	c := &BinaryCodec{}
	data, err := c.Encode(testResponse)
	if err != nil {
		t.Fatal(err)
	}
	for _, n := range []int{0, 3, 8, 12, len(data) - 1} {
		var resp message.Response
		if err := c.Decode(data[:n], &resp); err == nil {
			t.Errorf("expect error decoding %d of %d bytes", n, len(data))
		}
	}

	var resp message.Response
	if err := c.Decode(append(data, 0), &resp); err == nil {
		t.Error("expect error for trailing bytes")
	}
}

func TestBinaryCodecRejectsHugeCount(t *testing.T) {
	body := []byte{0, 0, 0, 0, 0xff, 0xff, 0xff, 0xff}
	var resp message.Response
	if err := (&BinaryCodec{}).Decode(body, &resp); err == nil {
		t.Fatal("expect error for allocation count larger than body")
	}
}

func TestGRPCCodec(t *testing.T) {
	var c GRPCCodec
	b, err := c.Marshal([]byte("hello"))
	if err != nil || string(b) != "hello" {
		t.Fatalf("Marshal: %q %v", b, err)
	}
	var out []byte
	if err := c.Unmarshal([]byte("world"), &out); err != nil || string(out) != "world" {
		t.Fatalf("Unmarshal: %q %v", out, err)
	}
	if _, err := c.Marshal(42); err == nil {
		t.Fatal("expect error for unsupported type")
	}
}

func TestParseCodecType(t *testing.T) {
	if ct, err := ParseCodecType("json"); err != nil || ct != CodecTypeJSON {
		t.Fatalf("json: %v %v", ct, err)
	}
	if ct, err := ParseCodecType(""); err != nil || ct != CodecTypeBinary {
		t.Fatalf("default: %v %v", ct, err)
	}
	if _, err := ParseCodecType("xml"); err == nil {
		t.Fatal("expect error for unknown codec")
	}
}
