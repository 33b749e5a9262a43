// Compression for large record values.
//
// A value at or above Config.CompressThreshold is zstd-compressed, then
// ascii85-encoded so the result stays newline-free and embeds directly
// in the line-delimited log format — the same reasoning the reference
// engine documents for its own inline snapshot field. ascii85 adds 25%
// to the compressed size where base64 adds 33%; its text can contain
// '"' and '\' characters, which the JSON record encoding escapes.
package filestore

import (
	"bytes"
	"encoding/ascii85"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// Allocated once: construction (internal state tables) is expensive
// enough that creating an encoder/decoder per call would dominate the
// cost of compressing small values. SpeedFastest is deliberate — commits
// compress on every write while decompression only happens on read, so
// encode latency matters far more than ratio; do not change this to
// SpeedDefault without benchmarking commit throughput.
var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	zstdDecoder, _ = zstd.NewReader(nil)
)

func compress(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	compressed := zstdEncoder.EncodeAll(data, nil)
	var encoded bytes.Buffer
	enc := ascii85.NewEncoder(&encoded)
	_, _ = enc.Write(compressed)
	_ = enc.Close()
	return encoded.String()
}

func decompress(encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, nil
	}
	dec := ascii85.NewDecoder(bytes.NewReader([]byte(encoded)))
	compressed, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: ascii85: %w", ErrCorruptRecord, err)
	}
	out, err := zstdDecoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: zstd: %w", ErrCorruptRecord, err)
	}
	return out, nil
}
