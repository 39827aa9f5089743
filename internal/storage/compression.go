package storage

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// Compression type constants.
const (
	CompressionNone   = "none"
	CompressionGzip   = "gzip"
	CompressionZstd   = "zstd"
	CompressionZlib   = "zlib"
	CompressionSnappy = "snappy"
)

// Frame header bytes. The header records how the payload was written so
// a payload stays readable after the configured algorithm changes.
const (
	frameNone byte = iota
	frameGzip
	frameZlib
	frameZstd
	frameSnappy
)

// ErrBadFrame is returned when a stored payload has an unknown header or
// cannot be decompressed.
var ErrBadFrame = errors.New("malformed compression frame")

// Compressor frames and compresses payloads with a configured algorithm
// and unframes payloads written with any supported algorithm.
type Compressor struct {
	algorithm string
	header    byte
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
}

// NewCompressor creates a new Compressor for the specified algorithm.
func NewCompressor(algorithm string) (*Compressor, error) {
	c := &Compressor{algorithm: algorithm}

	switch algorithm {
	case CompressionNone, "":
		c.header = frameNone
	case CompressionGzip:
		c.header = frameGzip
	case CompressionZlib:
		c.header = frameZlib
	case CompressionZstd:
		c.header = frameZstd
	case CompressionSnappy:
		c.header = frameSnappy
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", algorithm)
	}

	// Pre-create zstd encoder since it's expensive to create.
	if c.header == frameZstd {
		encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("creating zstd encoder: %w", err)
		}

		c.encoder = encoder
	}

	// Any stored frame may be zstd, so the decoder always exists.
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}

	c.decoder = decoder

	return c, nil
}

// Algorithm returns the configured algorithm name.
func (c *Compressor) Algorithm() string {
	if c.algorithm == "" {
		return CompressionNone
	}

	return c.algorithm
}

// Compress compresses data and prepends the frame header.
func (c *Compressor) Compress(data []byte) ([]byte, error) {
	var (
		body []byte
		err  error
	)

	switch c.header {
	case frameNone:
		body = data
	case frameGzip:
		body, err = compressGzip(data)
	case frameZlib:
		body, err = compressZlib(data)
	case frameZstd:
		body = c.encoder.EncodeAll(data, make([]byte, 0, len(data)))
	case frameSnappy:
		body = snappy.Encode(nil, data)
	}

	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(body)+1)
	out = append(out, c.header)

	return append(out, body...), nil
}

// Decompress reads the frame header and decompresses the remainder.
func (c *Compressor) Decompress(frame []byte) ([]byte, error) {
	if len(frame) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrBadFrame)
	}

	body := frame[1:]

	var (
		out []byte
		err error
	)

	switch frame[0] {
	case frameNone:
		out = body
	case frameGzip:
		out, err = decompressGzip(body)
	case frameZlib:
		out, err = decompressZlib(body)
	case frameZstd:
		out, err = c.decoder.DecodeAll(body, nil)
	case frameSnappy:
		out, err = snappy.Decode(nil, body)
	default:
		return nil, fmt.Errorf("%w: unknown header 0x%02x", ErrBadFrame, frame[0])
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadFrame, err)
	}

	return out, nil
}

// Close closes the compressor and releases resources.
func (c *Compressor) Close() error {
	if c.decoder != nil {
		c.decoder.Close()
	}

	if c.encoder != nil {
		return c.encoder.Close()
	}

	return nil
}

func compressGzip(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	w := gzip.NewWriter(&buf)

	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("gzip write: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("gzip close: %w", err)
	}

	return buf.Bytes(), nil
}

func compressZlib(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	w := zlib.NewWriter(&buf)

	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("zlib write: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("zlib close: %w", err)
	}

	return buf.Bytes(), nil
}

func decompressGzip(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return io.ReadAll(r)
}

func decompressZlib(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return io.ReadAll(r)
}
