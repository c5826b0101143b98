// Package pcm implements the canonical 32-bit float little-endian PCM
// codec and its two wire encodings: base64 (for JSON events) and a
// length-prefixed binary envelope (for the TCP transports).
package pcm

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ProtocolVersion is the wire protocol version carried on every frame.
const ProtocolVersion = 1

// Encoding is the string tag used in base64 JSON frame containers.
const Encoding = "f32le_base64"

// MaxPayloadBytes bounds a single length-prefixed binary payload (4 MiB).
const MaxPayloadBytes = 4 << 20

var (
	// ErrOddSampleCount is returned when a byte slice length is not a
	// multiple of 4 (one float32 = 4 bytes).
	ErrOddSampleCount = errors.New("pcm: byte length not a multiple of 4")
)

// EncodeF32LEBase64 encodes interleaved float32 samples to base64 using the
// canonical little-endian layout.
func EncodeF32LEBase64(samples []float32) string {
	return base64.StdEncoding.EncodeToString(EncodeF32LE(samples))
}

// EncodeF32LE encodes interleaved float32 samples to raw little-endian bytes.
func EncodeF32LE(samples []float32) []byte {
	buf := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(s))
	}
	return buf
}

// DecodeF32LEBase64 decodes a base64 string to interleaved float32 samples.
func DecodeF32LEBase64(encoded string) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("pcm: decode base64: %w", err)
	}
	return DecodeF32LE(raw)
}

// DecodeF32LE decodes raw little-endian bytes to interleaved float32 samples.
func DecodeF32LE(raw []byte) ([]float32, error) {
	if len(raw)%4 != 0 {
		return nil, ErrOddSampleCount
	}
	n := len(raw) / 4
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(raw[i*4:])
		samples[i] = math.Float32frombits(bits)
	}
	return samples, nil
}
