package audio

import (
	"math"
	"time"
)

const (
	// DefaultSampleRate is the sample rate used on the wire in both directions.
	DefaultSampleRate = 24000
	DefaultFormat     = "linear16"
	DefaultChannels   = 1
)

func GetDefaultEncodingInfo() EncodingInfo {
	return EncodingInfo{SampleRate: DefaultSampleRate, Format: encodingFormat(DefaultFormat)}
}

type EncodingInfo struct {
	SampleRate int
	Format     encodingFormat
}

func (e EncodingInfo) IsZero() bool {
	return e.SampleRate == 0 || e.Format.Name() == ""
}

// BytesPerSecond reports the byte rate of a mono stream in this encoding.
func (e EncodingInfo) BytesPerSecond() int {
	return e.SampleRate * e.Format.ByteSize() * DefaultChannels
}

type encodingFormat string

func (e encodingFormat) Name() string {
	return string(e)
}

// WireName is the identifier the realtime protocol uses for the format.
func (e encodingFormat) WireName() string {
	switch e {
	case EncodingLinear16:
		return "pcm16"
	case EncodingMulaw:
		return "g711_ulaw"
	case EncodingALaw:
		return "g711_alaw"
	}
	return ""
}

func (e encodingFormat) ByteSize() int {
	switch e {
	case encodingFormat("mulaw"), encodingFormat("alaw"):
		return 1
	case encodingFormat("linear16"):
		return 2
	}
	return -1
}

const (
	EncodingMulaw    encodingFormat = "mulaw"
	EncodingALaw     encodingFormat = "alaw"
	EncodingLinear16 encodingFormat = "linear16"
)

// Duration converts a sample count into playback time at sampleRate.
func Duration(samples int, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(samples) / float64(sampleRate) * float64(time.Second))
}

// Samples converts a duration into a sample count at sampleRate, rounding to
// the nearest sample so that Samples(Duration(n)) == n.
func Samples(duration time.Duration, sampleRate int) int {
	if duration <= 0 || sampleRate <= 0 {
		return 0
	}
	return int(math.Round(float64(duration) / float64(time.Second) * float64(sampleRate)))
}
