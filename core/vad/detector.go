// Package vad turns a live microphone stream into discrete utterances.
package vad

import (
	"context"
	"errors"
	"math"
)

// ErrCaptureUnavailable is returned when the detector or the microphone cannot
// be brought up.
var ErrCaptureUnavailable = errors.New("capture unavailable")

// Detector scores one frame of mono samples with the probability that it
// contains speech.
type Detector interface {
	SpeechProbability(frame []float32) (float64, error)
}

// Microphone delivers PCM16 little-endian mono audio at the wire sample rate.
type Microphone interface {
	StartCapture(ctx context.Context, onAudio func(audio []byte)) error
	StopCapture() error
	Close() error
}

// EnergyDetector maps frame RMS energy onto a speech probability with a
// linear ramp between SilenceRMS (0) and SpeechRMS (1).
type EnergyDetector struct {
	SilenceRMS float64
	SpeechRMS  float64
}

func NewEnergyDetector() *EnergyDetector {
	return &EnergyDetector{
		SilenceRMS: 0.008,
		SpeechRMS:  0.03,
	}
}

func (d *EnergyDetector) SpeechProbability(frame []float32) (float64, error) {
	if len(frame) == 0 {
		return 0, nil
	}
	if d.SpeechRMS <= d.SilenceRMS {
		return 0, errors.New("speech level must be above silence level")
	}

	level := rms(frame)
	switch {
	case level <= d.SilenceRMS:
		return 0, nil
	case level >= d.SpeechRMS:
		return 1, nil
	}
	return (level - d.SilenceRMS) / (d.SpeechRMS - d.SilenceRMS), nil
}

func rms(frame []float32) float64 {
	var sum float64
	for _, sample := range frame {
		sum += float64(sample) * float64(sample)
	}
	return math.Sqrt(sum / float64(len(frame)))
}
