package compression

import (
	"fmt"

	"github.com/golang/snappy"
)

// SnappyCompressor compresses forwarded reading payloads with the Snappy block format.
// Frame tags its output with Snappy so an ingesting side picks the decoder from the
// payload itself. It holds no state and is safe for concurrent use.
type SnappyCompressor struct{}

// NewSnappyCompressor returns a Snappy compressor. GetCompressor(Snappy) returns a
// shared one.
func NewSnappyCompressor() *SnappyCompressor {
	return &SnappyCompressor{}
}

// Compress encodes one payload body. An empty body stays empty so a framed empty
// payload is just the algorithm byte.
func (s *SnappyCompressor) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	return snappy.Encode(nil, data), nil
}

// Decompress decodes the body that follows the algorithm byte of a framed payload.
func (s *SnappyCompressor) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	body, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("snappy payload: %w", err)
	}
	return body, nil
}

func (s *SnappyCompressor) Algorithm() Algorithm {
	return Snappy
}
