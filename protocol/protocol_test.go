package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/klauspost/compress/zstd"
)

func TestEncodeDecode(t *testing.T) {
	header := Header{
		CodecType: CodecTypeJSON,
		MsgType:   MsgTypeRequest,
		Seq:       12345,
	}
	body := []byte("hello world")

	var buf bytes.Buffer
	if err := Encode(&buf, &header, body); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if header.BodyLen != 11 {
		t.Fatalf("expect BodyLen to be filled in, got %d", header.BodyLen)
	}

	decodedHeader, decodedBody, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if decodedHeader.CodecType != header.CodecType {
		t.Errorf("CodecType mismatch: got %d, want %d", decodedHeader.CodecType, header.CodecType)
	}
	if decodedHeader.MsgType != header.MsgType {
		t.Errorf("MsgType mismatch: got %d, want %d", decodedHeader.MsgType, header.MsgType)
	}
	if decodedHeader.Seq != header.Seq {
		t.Errorf("Seq mismatch: got %d, want %d", decodedHeader.Seq, header.Seq)
	}
	if decodedHeader.BodyLen != header.BodyLen {
		t.Errorf("BodyLen mismatch: got %d, want %d", decodedHeader.BodyLen, header.BodyLen)
	}
	if !bytes.Equal(decodedBody, body) {
		t.Errorf("Body mismatch: got %s, want %s", string(decodedBody), string(body))
	}
}

func TestDecodeInvalidMagic(t *testing.T) {
	invalidHeader := []byte{0x00, 0x00, 0x00, Version, CodecTypeJSON, byte(MsgTypeRequest), 0, 0x00, 0x00, 0x30, 0x39, 0x00, 0x00, 0x00, 0x0B}
	var buf bytes.Buffer
	buf.Write(invalidHeader)
	buf.Write([]byte("hello world"))

	_, _, err := Decode(&buf)
	if err == nil {
		t.Fatal("Expected error for invalid magic number, but got nil")
	}
	if !strings.Contains(err.Error(), "invalid magic number") {
		t.Errorf("Error message should contain 'invalid magic', instead: %v", err)
	}
}

func TestDecodeEmptyBody(t *testing.T) {
	header := Header{
		CodecType: CodecTypeJSON,
		MsgType:   MsgTypeHeartbeat,
		Seq:       12345,
	}
	var buf bytes.Buffer
	if err := Encode(&buf, &header, nil); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decodedHeader, decodedBody, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decodedHeader.MsgType != MsgTypeHeartbeat {
		t.Errorf("MsgType mismatch: got %d, want %d", decodedHeader.MsgType, MsgTypeHeartbeat)
	}
	if decodedHeader.BodyLen != 0 {
		t.Errorf("BodyLen mismatch: got %d, want 0", decodedHeader.BodyLen)
	}
	if len(decodedBody) != 0 {
		t.Errorf("Expected empty body, got length %d", len(decodedBody))
	}
}

func TestDecodeInvalidVersion(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{
		MagicNumber, MagicByte2, MagicByte3,
		0xFF, // wrong version
		CodecTypeJSON,
		byte(MsgTypeRequest),
		0,          // flags
		0, 0, 0, 1, // seq
		0, 0, 0, 0, // bodyLen
	})

	_, _, err := Decode(&buf)
	if err == nil {
		t.Fatal("expect error for unsupported version")
	}
	if !strings.Contains(err.Error(), "unsupported version") {
		t.Errorf("error should mention 'unsupported version', got: %v", err)
	}
}

func TestDecodeRejectsOversizedBody(t *testing.T) {
	frame := []byte{MagicNumber, MagicByte2, MagicByte3, Version, CodecTypeBinary, byte(MsgTypeResponse), 0, 0, 0, 0, 1}
	frame = binary.BigEndian.AppendUint32(frame, MaxBodySize+1)

	_, _, err := Decode(bytes.NewReader(frame))
	if err == nil || !strings.Contains(err.Error(), "exceeds limit") {
		t.Fatalf("expect size limit error, got %v", err)
	}
}

func TestDecodeRejectsUnknownFlags(t *testing.T) {
	frame := []byte{MagicNumber, MagicByte2, MagicByte3, Version, CodecTypeBinary, byte(MsgTypeResponse), 0x80, 0, 0, 0, 1, 0, 0, 0, 0}
	if _, _, err := Decode(bytes.NewReader(frame)); err == nil {
		t.Fatal("expect error for unknown flag bits")
	}
}

func TestDecodeLargeBody(t *testing.T) {
	var buf bytes.Buffer

	largeBody := make([]byte, 1024*1024)
	for i := range largeBody {
		largeBody[i] = byte(i % 256)
	}

	header := &Header{
		CodecType: CodecTypeBinary,
		MsgType:   MsgTypeRequest,
		Seq:       999,
	}
	if err := Encode(&buf, header, largeBody); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	_, decodedBody, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !bytes.Equal(decodedBody, largeBody) {
		t.Errorf("large body mismatch")
	}
}

func TestCompressedFrame(t *testing.T) {
	body := bytes.Repeat([]byte("Na2O_% Combined "), 4096)

	var buf bytes.Buffer
	header := &Header{CodecType: CodecTypeBinary, MsgType: MsgTypeResponse, Flags: FlagZstd, Seq: 3}
	if err := Encode(&buf, header, body); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if int(header.BodyLen) >= len(body) {
		t.Fatalf("expect compressed body to be smaller: %d >= %d", header.BodyLen, len(body))
	}
	if buf.Len() != HeaderSize+int(header.BodyLen) {
		t.Fatalf("frame length mismatch: %d", buf.Len())
	}

	decodedHeader, decodedBody, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decodedHeader.Flags&FlagZstd == 0 {
		t.Error("expect zstd flag to survive")
	}
	if !bytes.Equal(decodedBody, body) {
		t.Error("decompressed body mismatch")
	}
}

// failZstd makes the next encoder and decoder construction fail, and puts the
// real constructors back when the test ends.
func failZstd(t *testing.T, err error) {
	enc, dec := newEncoder, newDecoder
	reset := func() {
		encoderOnce, decoderOnce = sync.Once{}, sync.Once{}
		encoder, encoderErr, decoder, decoderErr = nil, nil, nil, nil
	}
	reset()
	newEncoder = func() (*zstd.Encoder, error) { return nil, err }
	newDecoder = func() (*zstd.Decoder, error) { return nil, err }
	t.Cleanup(func() {
		newEncoder, newDecoder = enc, dec
		reset()
	})
}

func TestZstdUnavailable(t *testing.T) {
	var compressed bytes.Buffer
	header := &Header{CodecType: CodecTypeBinary, MsgType: MsgTypeRequest, Flags: FlagZstd, Seq: 9}
	if err := Encode(&compressed, header, []byte("listScans")); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("no memory for window")
	failZstd(t, boom)

	var buf bytes.Buffer
	if err := Encode(&buf, &Header{Flags: FlagZstd}, []byte("body")); !errors.Is(err, boom) {
		t.Fatalf("expect encoder error, got %v", err)
	}
	if buf.Len() != 0 {
		t.Fatal("nothing should be written when compression fails")
	}
	if _, _, err := Decode(&compressed); !errors.Is(err, boom) {
		t.Fatalf("expect decoder error, got %v", err)
	}
}
