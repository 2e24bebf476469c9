package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrMalformedFrame is returned when a wire frame cannot be turned into whole
// 16-bit samples.
var ErrMalformedFrame = errors.New("malformed audio frame")

// ErrOddByteLength is the malformed frame case of a payload that decodes to
// half a sample.
var ErrOddByteLength = errors.New("odd byte length")

// Encode turns samples in [-1, 1] into a base64 PCM16 little-endian frame.
// Out of range samples are clamped.
func Encode(samples []float32) string {
	if len(samples) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(SamplesToPCM16(samples))
}

// Decode is the inverse of [Encode].
func Decode(frame string) ([]float32, error) {
	if frame == "" {
		return []float32{}, nil
	}

	pcm, err := base64.StdEncoding.DecodeString(frame)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("%w: %w %d", ErrMalformedFrame, ErrOddByteLength, len(pcm))
	}

	return PCM16ToSamples(pcm), nil
}

// SamplesToPCM16 serializes float samples as signed 16-bit little-endian PCM.
func SamplesToPCM16(samples []float32) []byte {
	pcm := make([]byte, len(samples)*2)
	for i, sample := range samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(SampleToInt16(sample)))
	}
	return pcm
}

// PCM16ToSamples reads signed 16-bit little-endian PCM as floats. A trailing
// odd byte is ignored.
func PCM16ToSamples(pcm []byte) []float32 {
	samples := make([]float32, len(pcm)/2)
	for i := range samples {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768.0
	}
	return samples
}

// SampleToInt16 clamps sample to [-1, 1] and scales it to a PCM16 value.
// NaN maps to silence.
func SampleToInt16(sample float32) int16 {
	if math.IsNaN(float64(sample)) {
		return 0
	}
	s := max(-1, min(1, sample))
	if s < 0 {
		return int16(s * 0x8000)
	}
	return int16(s * 0x7fff)
}
