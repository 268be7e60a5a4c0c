package protos

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"google.golang.org/protobuf/encoding/protowire"
)

// field is one decoded (tag, value) pair. Only the member matching typ is set.
// bytes aliases the input and must be copied before it escapes.
type field struct {
	num   protowire.Number
	typ   protowire.Type
	u64   uint64
	bytes []byte
}

// walk decodes every field of a message in wire order. Unknown fields are
// handed to visit like any other and ignored there.
func walk(b []byte, visit func(f field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.u64, n = protowire.ConsumeVarint(b)
		case protowire.Fixed32Type:
			var v uint32
			v, n = protowire.ConsumeFixed32(b)
			f.u64 = uint64(v)
		case protowire.Fixed64Type:
			f.u64, n = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return fmt.Errorf("field %d: %w", num, protowire.ParseError(n))
		}
		b = b[n:]

		if err := visit(f); err != nil {
			return err
		}
	}
	return nil
}

var errWireType = errors.New("unexpected wire type")

func (f field) want(typ protowire.Type) error {
	if f.typ != typ {
		return fmt.Errorf("field %d: %w %d, want %d", f.num, errWireType, f.typ, typ)
	}
	return nil
}

func (f field) str() (string, error) {
	if err := f.want(protowire.BytesType); err != nil {
		return "", err
	}
	return string(f.bytes), nil
}

func (f field) int32() (int32, error) {
	if err := f.want(protowire.VarintType); err != nil {
		return 0, err
	}
	return int32(f.u64), nil
}

func (f field) uint32() (uint32, error) {
	if err := f.want(protowire.VarintType); err != nil {
		return 0, err
	}
	return uint32(f.u64), nil
}

func (f field) int64() (int64, error) {
	if err := f.want(protowire.VarintType); err != nil {
		return 0, err
	}
	return int64(f.u64), nil
}

func (f field) bool() (bool, error) {
	if err := f.want(protowire.VarintType); err != nil {
		return false, err
	}
	return f.u64 != 0, nil
}

func (f field) float32() (float32, error) {
	if err := f.want(protowire.Fixed32Type); err != nil {
		return 0, err
	}
	return math.Float32frombits(uint32(f.u64)), nil
}

func (f field) float64() (float64, error) {
	if err := f.want(protowire.Fixed64Type); err != nil {
		return 0, err
	}
	return math.Float64frombits(f.u64), nil
}

// sub decodes an embedded message.
func (f field) sub(m message) error {
	if err := f.want(protowire.BytesType); err != nil {
		return err
	}
	return m.unmarshal(f.bytes)
}

// Repeated scalars are accepted both packed and unpacked, as proto3 parsers must.

func (f field) appendVarints(dst []uint64) ([]uint64, error) {
	switch f.typ {
	case protowire.VarintType:
		return append(dst, f.u64), nil
	case protowire.BytesType:
		b := f.bytes
		for len(b) > 0 {
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("field %d: %w", f.num, protowire.ParseError(n))
			}
			dst = append(dst, v)
			b = b[n:]
		}
		return dst, nil
	}
	return nil, fmt.Errorf("field %d: %w %d", f.num, errWireType, f.typ)
}

func (f field) appendInt32s(dst []int32) ([]int32, error) {
	vs, err := f.appendVarints(nil)
	if err != nil {
		return nil, err
	}
	for _, v := range vs {
		dst = append(dst, int32(v))
	}
	return dst, nil
}

func (f field) appendUint32s(dst []uint32) ([]uint32, error) {
	vs, err := f.appendVarints(nil)
	if err != nil {
		return nil, err
	}
	for _, v := range vs {
		dst = append(dst, uint32(v))
	}
	return dst, nil
}

func (f field) appendInt64s(dst []int64) ([]int64, error) {
	vs, err := f.appendVarints(nil)
	if err != nil {
		return nil, err
	}
	for _, v := range vs {
		dst = append(dst, int64(v))
	}
	return dst, nil
}

func (f field) appendFloat64s(dst []float64) ([]float64, error) {
	switch f.typ {
	case protowire.Fixed64Type:
		return append(dst, math.Float64frombits(f.u64)), nil
	case protowire.BytesType:
		b := f.bytes
		for len(b) > 0 {
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return nil, fmt.Errorf("field %d: %w", f.num, protowire.ParseError(n))
			}
			dst = append(dst, math.Float64frombits(v))
			b = b[n:]
		}
		return dst, nil
	}
	return nil, fmt.Errorf("field %d: %w %d", f.num, errWireType, f.typ)
}

// Encoding helpers follow proto3 rules: zero scalars are omitted, repeated
// scalars are packed.

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendStrings(b []byte, num protowire.Number, ss []string) []byte {
	for _, s := range ss {
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendString(b, s)
	}
	return b
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendInt32(b []byte, num protowire.Number, v int32) []byte {
	// negative int32 values are sign-extended to 64 bits on the wire
	return appendVarint(b, num, uint64(int64(v)))
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	return appendVarint(b, num, 1)
}

func appendFloat32(b []byte, num protowire.Number, v float32) []byte {
	if v == 0 && !math.Signbit(float64(v)) {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed32Type)
	return protowire.AppendFixed32(b, math.Float32bits(v))
}

func appendPackedVarints(b []byte, num protowire.Number, n int, at func(i int) uint64) []byte {
	if n == 0 {
		return b
	}
	var packed []byte
	for i := 0; i < n; i++ {
		packed = protowire.AppendVarint(packed, at(i))
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, packed)
}

func appendInt32s(b []byte, num protowire.Number, vs []int32) []byte {
	return appendPackedVarints(b, num, len(vs), func(i int) uint64 { return uint64(int64(vs[i])) })
}

func appendUint32s(b []byte, num protowire.Number, vs []uint32) []byte {
	return appendPackedVarints(b, num, len(vs), func(i int) uint64 { return uint64(vs[i]) })
}

func appendInt64s(b []byte, num protowire.Number, vs []int64) []byte {
	return appendPackedVarints(b, num, len(vs), func(i int) uint64 { return uint64(vs[i]) })
}

func appendFloat64s(b []byte, num protowire.Number, vs []float64) []byte {
	if len(vs) == 0 {
		return b
	}
	packed := make([]byte, 0, 8*len(vs))
	for _, v := range vs {
		packed = protowire.AppendFixed64(packed, math.Float64bits(v))
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, packed)
}

// appendEntry writes one map entry as the message {key = 1, value = 2}.
func appendEntry(b []byte, num protowire.Number, entry []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, entry)
}

// Map fields are written in key order so encoding is deterministic.

func sortedKeys[K string | int32, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
