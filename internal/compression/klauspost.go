package compression

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
)

// FlateCompressor implements Compressor with raw DEFLATE, the codec zip archives use.
type FlateCompressor struct {
	level int
}

func NewFlateCompressor() *FlateCompressor {
	return &FlateCompressor{level: flate.DefaultCompression}
}

func (f *FlateCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, f.level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("flate compress failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("flate compress failed: %w", err)
	}
	return buf.Bytes(), nil
}

func (f *FlateCompressor) Decompress(data []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer func() { _ = r.Close() }()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("flate decompress failed: %w", err)
	}
	return out, nil
}

func (f *FlateCompressor) Algorithm() Algorithm {
	return Flate
}

// ZstdCompressor implements Compressor with stateless zstd block calls. The encoder and
// decoder are safe for concurrent EncodeAll/DecodeAll.
type ZstdCompressor struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewZstdCompressor creates a standalone zstd compressor. Most callers want the shared
// one from GetCompressor.
func NewZstdCompressor() (*ZstdCompressor, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &ZstdCompressor{enc: enc, dec: dec}, nil
}

func (z *ZstdCompressor) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	return z.enc.EncodeAll(data, nil), nil
}

func (z *ZstdCompressor) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	out, err := z.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress failed: %w", err)
	}
	return out, nil
}

func (z *ZstdCompressor) Algorithm() Algorithm {
	return Zstd
}

// Close releases the encoder and decoder of a compressor created with
// NewZstdCompressor.
func (z *ZstdCompressor) Close() error {
	z.dec.Close()
	return z.enc.Close()
}
