package protocol

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

var (
	newEncoder = func() (*zstd.Encoder, error) {
		return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	}
	newDecoder = func() (*zstd.Decoder, error) {
		return zstd.NewReader(nil,
			zstd.WithDecoderConcurrency(0),
			zstd.WithDecoderMaxMemory(uint64(MaxBodySize)),
		)
	}

	encoderOnce sync.Once
	encoder     *zstd.Encoder
	encoderErr  error
	decoderOnce sync.Once
	decoder     *zstd.Decoder
	decoderErr  error
)

// EncodeAll and DecodeAll are safe for concurrent use, so one encoder and one
// decoder serve every connection.
func compress(body []byte) ([]byte, error) {
	encoderOnce.Do(func() {
		encoder, encoderErr = newEncoder()
	})
	if encoderErr != nil {
		return nil, fmt.Errorf("zstd encoder: %w", encoderErr)
	}
	return encoder.EncodeAll(body, make([]byte, 0, len(body)/2)), nil
}

func decompress(body []byte) ([]byte, error) {
	decoderOnce.Do(func() {
		decoder, decoderErr = newDecoder()
	})
	if decoderErr != nil {
		return nil, fmt.Errorf("zstd decoder: %w", decoderErr)
	}
	return decoder.DecodeAll(body, nil)
}
