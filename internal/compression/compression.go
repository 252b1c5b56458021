// Package compression provides the payload codecs used on the forward path.
package compression

import (
	"fmt"
	"strings"
	"sync"
)

// Algorithm identifies a compression codec. Its value is written as the first byte of
// a framed payload.
type Algorithm uint8

const (
	None   Algorithm = 0
	Snappy Algorithm = 1
	Flate  Algorithm = 2
	Zstd   Algorithm = 3
)

func (a Algorithm) String() string {
	switch a {
	case None:
		return "none"
	case Snappy:
		return "snappy"
	case Flate:
		return "flate"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("Algorithm(%d)", uint8(a))
	}
}

// ParseAlgorithm maps a configuration name to an Algorithm. The empty string is None.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return None, nil
	case "snappy":
		return Snappy, nil
	case "flate", "deflate":
		return Flate, nil
	case "zstd":
		return Zstd, nil
	default:
		return None, fmt.Errorf("unsupported compression: %q (supported: none, snappy, flate, zstd)", name)
	}
}

// Compressor interface for compression algorithms
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
	Algorithm() Algorithm
}

var (
	noneCompressor   = &NoneCompressor{}
	snappyCompressor = NewSnappyCompressor()
	flateCompressor  = NewFlateCompressor()
	zstdCompressor   = sync.OnceValues(NewZstdCompressor)
)

// GetCompressor returns the shared compressor for algo. Shared compressors are safe for
// concurrent use and live for the whole process; do not Close them.
func GetCompressor(algo Algorithm) (Compressor, error) {
	switch algo {
	case None:
		return noneCompressor, nil
	case Snappy:
		return snappyCompressor, nil
	case Flate:
		return flateCompressor, nil
	case Zstd:
		z, err := zstdCompressor()
		if err != nil {
			return nil, err
		}
		return z, nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %d", algo)
	}
}

// Frame compresses data with c and prefixes the algorithm byte.
func Frame(c Compressor, data []byte) ([]byte, error) {
	body, err := c.Compress(data)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(body)+1)
	out = append(out, byte(c.Algorithm()))
	return append(out, body...), nil
}

// Unframe reads the algorithm byte written by Frame and decompresses the rest.
func Unframe(payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("empty payload")
	}
	c, err := GetCompressor(Algorithm(payload[0]))
	if err != nil {
		return nil, err
	}
	return c.Decompress(payload[1:])
}

// NoneCompressor is a no-op compressor
type NoneCompressor struct{}

func (n *NoneCompressor) Compress(data []byte) ([]byte, error) {
	return data, nil
}

func (n *NoneCompressor) Decompress(data []byte) ([]byte, error) {
	return data, nil
}

func (n *NoneCompressor) Algorithm() Algorithm {
	return None
}
