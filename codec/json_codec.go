package codec

import (
	json "github.com/goccy/go-json"
)

// JSONCodec serializes envelopes as JSON.
// Pros: human-readable, easy to debug with a packet capture.
// Cons: buffer contents are base64 encoded, so payloads grow by a third.
type JSONCodec struct{}

func (c *JSONCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (c *JSONCodec) Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (c *JSONCodec) Type() CodecType {
	return CodecTypeJSON
}
