package codec

import "fmt"

// GRPCCodec passes frame bodies through gRPC untouched. Both the request and the
// response travel as []byte already encoded with BinaryCodec.
type GRPCCodec struct{}

func (GRPCCodec) Marshal(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case *[]byte:
		return *b, nil
	}
	return nil, fmt.Errorf("grpc codec: unsupported type %T", v)
}

func (GRPCCodec) Unmarshal(data []byte, v any) error {
	p, ok := v.(*[]byte)
	if !ok {
		return fmt.Errorf("grpc codec: unsupported type %T", v)
	}
	*p = append((*p)[:0], data...)
	return nil
}

func (GRPCCodec) Name() string {
	return "pixlise-raw"
}
