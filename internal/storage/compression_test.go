package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var compressible = []byte("call_audio_route_stats earpiece->bluetooth_le, " +
	"call_audio_route_stats earpiece->bluetooth_le, " +
	"call_audio_route_stats earpiece->bluetooth_le")

func TestCompressor_RoundTrip(t *testing.T) {
	algorithms := []string{
		CompressionNone,
		CompressionGzip,
		CompressionZlib,
		CompressionZstd,
		CompressionSnappy,
	}

	for _, alg := range algorithms {
		t.Run(alg, func(t *testing.T) {
			c, err := NewCompressor(alg)
			require.NoError(t, err)
			defer c.Close()

			frame, err := c.Compress(compressible)
			require.NoError(t, err)
			require.NotEmpty(t, frame)

			out, err := c.Decompress(frame)
			require.NoError(t, err)
			assert.Equal(t, compressible, out)
			assert.Equal(t, alg, c.Algorithm())
		})
	}
}

func TestCompressor_ShrinksRepetitiveData(t *testing.T) {
	c, err := NewCompressor(CompressionGzip)
	require.NoError(t, err)
	defer c.Close()

	frame, err := c.Compress(compressible)
	require.NoError(t, err)

	assert.Less(t, len(frame), len(compressible))
}

func TestCompressor_ReadsFramesFromOtherAlgorithms(t *testing.T) {
	writer, err := NewCompressor(CompressionZstd)
	require.NoError(t, err)
	defer writer.Close()

	frame, err := writer.Compress(compressible)
	require.NoError(t, err)

	// A reader configured for snappy still understands a zstd frame.
	reader, err := NewCompressor(CompressionSnappy)
	require.NoError(t, err)
	defer reader.Close()

	out, err := reader.Decompress(frame)
	require.NoError(t, err)
	assert.Equal(t, compressible, out)
}

func TestCompressor_EmptyAlgorithmIsNone(t *testing.T) {
	c, err := NewCompressor("")
	require.NoError(t, err)
	defer c.Close()

	frame, err := c.Compress([]byte("abc"))
	require.NoError(t, err)

	assert.Equal(t, []byte{frameNone, 'a', 'b', 'c'}, frame)
	assert.Equal(t, CompressionNone, c.Algorithm())
}

func TestCompressor_Unsupported(t *testing.T) {
	_, err := NewCompressor("brotli")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported compression algorithm")
}

func TestCompressor_BadFrames(t *testing.T) {
	c, err := NewCompressor(CompressionNone)
	require.NoError(t, err)
	defer c.Close()

	tests := []struct {
		name  string
		frame []byte
	}{
		{name: "empty", frame: nil},
		{name: "unknown header", frame: []byte{0x7f, 1, 2, 3}},
		{name: "truncated gzip", frame: []byte{frameGzip, 0x1f}},
		{name: "garbage snappy", frame: []byte{frameSnappy, 0xff, 0xff, 0xff}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Decompress(tt.frame)
			require.ErrorIs(t, err, ErrBadFrame)
		})
	}
}
