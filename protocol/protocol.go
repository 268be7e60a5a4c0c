// Package protocol implements the binary frame protocol spoken between the client
// and an out-of-process engine.
//
// It solves TCP's sticky packet problem by using a fixed-size 15-byte header
// followed by a variable-length body. The receiver reads the header first to
// determine the body length, then reads exactly that many bytes.
//
// Frame format:
//
//	0      3  4  5  6  7         11        15
//	┌──────┬──┬──┬──┬──┬─────────┬─────────┬───────────────┐
//	│magic │v │ct│mt│fl│   seq   │ bodyLen │    body ...    │
//	│ pxc  │01│  │  │  │ uint32  │ uint32  │ bodyLen bytes  │
//	└──────┴──┴──┴──┴──┴─────────┴─────────┴───────────────┘
//
// When FlagZstd is set the body on the wire is zstd-compressed; BodyLen is
// always the on-wire length.
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Magic number bytes: "pxc".
// Rejects non-protocol connections (e.g., HTTP clients hitting the wrong port).
const (
	MagicNumber byte = 0x70 // 'p'
	MagicByte2  byte = 0x78 // 'x'
	MagicByte3  byte = 0x63 // 'c'
	Version     byte = 0x01
	HeaderSize  int  = 15 // 3 (magic) + 1 (version) + 1 (codec) + 1 (msgType) + 1 (flags) + 4 (seq) + 4 (bodyLen)

	// MaxBodySize bounds a single frame so a corrupt length cannot exhaust memory.
	MaxBodySize uint32 = 256 << 20
)

// MsgType distinguishes request, response, and heartbeat frames.
type MsgType byte

const (
	MsgTypeRequest   MsgType = 0 // Client → Engine call
	MsgTypeResponse  MsgType = 1 // Engine → Client outcome
	MsgTypeHeartbeat MsgType = 2 // KeepAlive ping (no body)
)

// Flag bits.
const (
	FlagZstd byte = 1 << 0
)

// Codec type constants, mirrored from codec package to avoid circular import.
const (
	CodecTypeJSON   byte = 0
	CodecTypeBinary byte = 1
)

// Header represents the fixed frame header.
type Header struct {
	CodecType byte    // Serialization format: 0=JSON, 1=Binary
	MsgType   MsgType // Request, Response, or Heartbeat
	Flags     byte    // FlagZstd
	Seq       uint32  // Sequence ID, matches a response to its request
	BodyLen   uint32  // Body length in bytes as sent on the wire
}

// Encode writes a complete frame (header + body) to w, compressing body when
// h.Flags has FlagZstd. h.BodyLen is set to the on-wire length.
// The caller must hold a write lock if multiple goroutines share the same writer,
// otherwise frames from different requests will interleave and corrupt the stream.
func Encode(w io.Writer, h *Header, body []byte) error {
	if h.Flags&FlagZstd != 0 && len(body) > 0 {
		var err error
		if body, err = compress(body); err != nil {
			return err
		}
	}
	if uint64(len(body)) > uint64(MaxBodySize) {
		return fmt.Errorf("frame body of %d bytes exceeds limit %d", len(body), MaxBodySize)
	}
	h.BodyLen = uint32(len(body))

	buf := make([]byte, HeaderSize, HeaderSize+len(body))
	copy(buf[0:3], []byte{MagicNumber, MagicByte2, MagicByte3})
	buf[3] = Version
	buf[4] = h.CodecType
	buf[5] = byte(h.MsgType)
	buf[6] = h.Flags
	binary.BigEndian.PutUint32(buf[7:11], h.Seq)
	binary.BigEndian.PutUint32(buf[11:15], h.BodyLen)

	// One write per frame so concurrent writers on a shared conn only need
	// to serialize Encode calls.
	buf = append(buf, body...)
	_, err := w.Write(buf)
	return err
}

// Decode reads a complete frame (header + body) from r and returns the body
// decompressed. It validates the magic number, version, codec type, message
// type and body length.
func Decode(r io.Reader) (*Header, []byte, error) {
	headerBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return nil, nil, err
	}

	if headerBuf[0] != MagicNumber || headerBuf[1] != MagicByte2 || headerBuf[2] != MagicByte3 {
		return nil, nil, fmt.Errorf("invalid magic number: %x", headerBuf[0:3])
	}

	if headerBuf[3] != Version {
		return nil, nil, fmt.Errorf("unsupported version: %d", headerBuf[3])
	}

	if headerBuf[4] != CodecTypeJSON && headerBuf[4] != CodecTypeBinary {
		return nil, nil, fmt.Errorf("unsupported codec type: %d", headerBuf[4])
	}

	msgType := headerBuf[5]
	if msgType != byte(MsgTypeRequest) && msgType != byte(MsgTypeResponse) && msgType != byte(MsgTypeHeartbeat) {
		return nil, nil, fmt.Errorf("unsupported message type: %d", msgType)
	}

	flags := headerBuf[6]
	if flags&^FlagZstd != 0 {
		return nil, nil, fmt.Errorf("unsupported flags: %#x", flags)
	}

	seq := binary.BigEndian.Uint32(headerBuf[7:11])
	bodyLen := binary.BigEndian.Uint32(headerBuf[11:15])
	if bodyLen > MaxBodySize {
		return nil, nil, fmt.Errorf("frame body of %d bytes exceeds limit %d", bodyLen, MaxBodySize)
	}

	// Read exactly bodyLen bytes, this is how frame boundaries are kept
	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, nil, err
	}

	if flags&FlagZstd != 0 && len(body) > 0 {
		plain, err := decompress(body)
		if err != nil {
			return nil, nil, fmt.Errorf("decompress body: %w", err)
		}
		body = plain
	}

	return &Header{
		CodecType: headerBuf[4],
		MsgType:   MsgType(msgType),
		Flags:     flags,
		Seq:       seq,
		BodyLen:   bodyLen,
	}, body, nil
}
