package compress

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elidickinson/shot-power-scraper/internal/common/configtypes"
)

func harLike(n int) []byte {
	return bytes.Repeat([]byte(`{"request":{"method":"GET","url":"https://example.com/"}},`), n)
}

func TestCompress(t *testing.T) {
	data := harLike(200)

	for _, algo := range []string{configtypes.CompressionSnappy, configtypes.CompressionLZ4} {
		t.Run(algo, func(t *testing.T) {
			packed, err := Compress(data, algo)
			require.NoError(t, err)
			assert.Less(t, len(packed), len(data))
			assert.Equal(t, algo, Algorithm(packed))

			unpacked, err := Decompress(packed)
			require.NoError(t, err)
			assert.Equal(t, data, unpacked)
		})
	}
}

func TestCompress_StoredPlain(t *testing.T) {
	t.Run("small payload", func(t *testing.T) {
		packed, err := Compress([]byte("tiny"), configtypes.CompressionLZ4)
		require.NoError(t, err)
		assert.Equal(t, configtypes.CompressionNone, Algorithm(packed))
		assert.Equal(t, append([]byte{tagNone}, "tiny"...), packed)
	})

	t.Run("unknown algorithm", func(t *testing.T) {
		data := harLike(50)
		packed, err := Compress(data, "zstd")
		require.NoError(t, err)
		assert.Equal(t, configtypes.CompressionNone, Algorithm(packed))

		unpacked, err := Decompress(packed)
		require.NoError(t, err)
		assert.Equal(t, data, unpacked)
	})
}

func TestDecompress_Errors(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"empty", nil},
		{"unknown tag", []byte{9, 1, 2}},
		{"corrupt snappy", []byte{tagSnappy, 0xff, 0xff, 0xff}},
		{"corrupt lz4", []byte{tagLZ4, 0x04, 0x22, 0x4d, 0x18, 0xff}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decompress(tt.payload)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrDecompression)
		})
	}
}
