package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"pixlise-client/message"
)

// BinaryCodec is the compact envelope format. All integers are big-endian.
//
// Request:
//
//	op len u16 | op | argc u16 | { kind u8 | value }...
//	  string: len u32 | utf-8 bytes (no terminator)
//	  int32:  4 bytes
//	  bool:   1 byte
//
// Response:
//
//	err len u32 | err | allocc u32 | { type u8 | count u32 | data len u32 | data }...
type BinaryCodec struct{}

var errShortBuffer = errors.New("BinaryCodec: unexpected end of data")

func (c *BinaryCodec) Encode(v any) ([]byte, error) {
	switch msg := v.(type) {
	case *message.Request:
		return encodeRequest(msg)
	case *message.Response:
		return encodeResponse(msg)
	}
	return nil, errors.New("BinaryCodec: v must be *message.Request or *message.Response")
}

func (c *BinaryCodec) Decode(data []byte, v any) error {
	switch msg := v.(type) {
	case *message.Request:
		return decodeRequest(data, msg)
	case *message.Response:
		return decodeResponse(data, msg)
	}
	return errors.New("BinaryCodec: v must be *message.Request or *message.Response")
}

func (c *BinaryCodec) Type() CodecType {
	return CodecTypeBinary
}

func encodeRequest(req *message.Request) ([]byte, error) {
	if len(req.Operation) > math.MaxUint16 {
		return nil, fmt.Errorf("BinaryCodec: operation name too long (%d bytes)", len(req.Operation))
	}
	if len(req.Args) > math.MaxUint16 {
		return nil, fmt.Errorf("BinaryCodec: too many arguments (%d)", len(req.Args))
	}

	// Calculate the length of the message
	total := 2 + len(req.Operation) + 2
	for _, a := range req.Args {
		total++
		switch a.Kind {
		case message.ArgString:
			total += 4 + len(a.Str)
		case message.ArgInt32:
			total += 4
		case message.ArgBool:
			total++
		default:
			return nil, fmt.Errorf("BinaryCodec: unsupported argument kind %v", a.Kind)
		}
	}

	buf := make([]byte, 0, total)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(req.Operation)))
	buf = append(buf, req.Operation...)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(req.Args)))
	for _, a := range req.Args {
		buf = append(buf, byte(a.Kind))
		switch a.Kind {
		case message.ArgString:
			if uint64(len(a.Str)) > math.MaxUint32 {
				return nil, errors.New("BinaryCodec: string argument too long")
			}
			buf = binary.BigEndian.AppendUint32(buf, uint32(len(a.Str)))
			buf = append(buf, a.Str...)
		case message.ArgInt32:
			buf = binary.BigEndian.AppendUint32(buf, uint32(a.Int))
		case message.ArgBool:
			if a.Bool {
				buf = append(buf, 1)
			} else {
				buf = append(buf, 0)
			}
		}
	}
	return buf, nil
}

func decodeRequest(data []byte, req *message.Request) error {
	r := reader{data: data}

	opLen, err := r.u16()
	if err != nil {
		return err
	}
	op, err := r.next(int(opLen))
	if err != nil {
		return err
	}
	req.Operation = string(op)

	argc, err := r.u16()
	if err != nil {
		return err
	}
	req.Args = make([]message.Arg, 0, argc)
	for i := 0; i < int(argc); i++ {
		kind, err := r.u8()
		if err != nil {
			return err
		}
		switch message.ArgKind(kind) {
		case message.ArgString:
			n, err := r.u32()
			if err != nil {
				return err
			}
			s, err := r.next(int(n))
			if err != nil {
				return err
			}
			req.Args = append(req.Args, message.String(string(s)))
		case message.ArgInt32:
			v, err := r.u32()
			if err != nil {
				return err
			}
			req.Args = append(req.Args, message.Int32(int32(v)))
		case message.ArgBool:
			b, err := r.u8()
			if err != nil {
				return err
			}
			req.Args = append(req.Args, message.Bool(b != 0))
		default:
			return fmt.Errorf("BinaryCodec: unsupported argument kind %d", kind)
		}
	}
	return r.done()
}

func encodeResponse(resp *message.Response) ([]byte, error) {
	total := 4 + len(resp.Error) + 4
	for _, a := range resp.Allocations {
		total += 1 + 4 + 4 + len(a.Data)
	}

	buf := make([]byte, 0, total)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(resp.Error)))
	buf = append(buf, resp.Error...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(resp.Allocations)))
	for _, a := range resp.Allocations {
		if a.Count < 0 || int64(a.Count) > math.MaxUint32 {
			return nil, fmt.Errorf("BinaryCodec: invalid element count %d", a.Count)
		}
		buf = append(buf, a.Type)
		buf = binary.BigEndian.AppendUint32(buf, uint32(a.Count))
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(a.Data)))
		buf = append(buf, a.Data...)
	}
	return buf, nil
}

func decodeResponse(data []byte, resp *message.Response) error {
	r := reader{data: data}

	errLen, err := r.u32()
	if err != nil {
		return err
	}
	msg, err := r.next(int(errLen))
	if err != nil {
		return err
	}
	resp.Error = string(msg)

	n, err := r.u32()
	if err != nil {
		return err
	}
	// every allocation takes at least 9 bytes, reject counts the body cannot hold
	if int(n) > r.remaining()/9 {
		return errShortBuffer
	}
	resp.Allocations = make([]message.Allocation, 0, n)
	for i := 0; i < int(n); i++ {
		typ, err := r.u8()
		if err != nil {
			return err
		}
		count, err := r.u32()
		if err != nil {
			return err
		}
		size, err := r.u32()
		if err != nil {
			return err
		}
		raw, err := r.next(int(size))
		if err != nil {
			return err
		}
		data := make([]byte, len(raw))
		copy(data, raw)
		resp.Allocations = append(resp.Allocations, message.Allocation{Type: typ, Count: int(count), Data: data})
	}
	return r.done()
}

// reader walks a body with bounds checks on every read.
type reader struct {
	data []byte
	off  int
}

func (r *reader) remaining() int { return len(r.data) - r.off }

func (r *reader) next(n int) ([]byte, error) {
	if n < 0 || n > r.remaining() {
		return nil, errShortBuffer
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) u8() (byte, error) {
	b, err := r.next(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) u16() (uint16, error) {
	b, err := r.next(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *reader) u32() (uint32, error) {
	b, err := r.next(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *reader) done() error {
	if r.remaining() != 0 {
		return fmt.Errorf("BinaryCodec: %d trailing bytes", r.remaining())
	}
	return nil
}
