// Package compress packs stored artifacts. Every payload starts with a
// one byte tag naming the algorithm, so readers need no side channel.
package compress

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/snappy"
	"github.com/pierrec/lz4/v4"

	"github.com/elidickinson/shot-power-scraper/internal/common/configtypes"
)

// MinSize is the smallest payload worth compressing
const MinSize = 1024

const (
	tagNone   byte = 0
	tagSnappy byte = 1
	tagLZ4    byte = 2
)

// ErrDecompression wraps every failure to unpack a payload
var ErrDecompression = errors.New("decompression failed")

// Compress packs data with algorithm (none, snappy or lz4). Small
// payloads and unknown algorithms are stored uncompressed.
func Compress(data []byte, algorithm string) ([]byte, error) {
	if len(data) < MinSize {
		algorithm = configtypes.CompressionNone
	}

	switch algorithm {
	case configtypes.CompressionSnappy:
		out := make([]byte, 1, 1+snappy.MaxEncodedLen(len(data)))
		out[0] = tagSnappy
		return append(out, snappy.Encode(nil, data)...), nil

	case configtypes.CompressionLZ4:
		var buf bytes.Buffer
		buf.WriteByte(tagLZ4)
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("lz4 compression failed: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("lz4 compression close failed: %w", err)
		}
		return buf.Bytes(), nil

	default:
		out := make([]byte, 0, len(data)+1)
		out = append(out, tagNone)
		return append(out, data...), nil
	}
}

// Decompress unpacks a payload produced by Compress
func Decompress(payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrDecompression)
	}
	body := payload[1:]

	switch payload[0] {
	case tagNone:
		return body, nil
	case tagSnappy:
		out, err := snappy.Decode(nil, body)
		if err != nil {
			return nil, fmt.Errorf("%w: snappy: %v", ErrDecompression, err)
		}
		return out, nil
	case tagLZ4:
		out, err := io.ReadAll(lz4.NewReader(bytes.NewReader(body)))
		if err != nil {
			return nil, fmt.Errorf("%w: lz4: %v", ErrDecompression, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unknown tag %d", ErrDecompression, payload[0])
	}
}

// Algorithm returns the algorithm a payload was packed with
func Algorithm(payload []byte) string {
	if len(payload) == 0 {
		return ""
	}
	switch payload[0] {
	case tagSnappy:
		return configtypes.CompressionSnappy
	case tagLZ4:
		return configtypes.CompressionLZ4
	case tagNone:
		return configtypes.CompressionNone
	}
	return ""
}
