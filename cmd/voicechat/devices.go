package main

import (
	"context"
	"fmt"

	voicechat "github.com/koscakluka/ema-realtime/core"
	"github.com/koscakluka/ema-realtime/core/audio"
	"github.com/koscakluka/ema-realtime/core/audio/miniaudio"
	"github.com/koscakluka/ema-realtime/core/audio/portaudio"
	"github.com/koscakluka/ema-realtime/core/vad"
)

// devices opens output and capture devices on one shared audio context.
type devices struct {
	audioContext *miniaudio.Context
	capture      string
	frameSamples int
}

func newDevices(capture string) (*devices, error) {
	audioContext, err := miniaudio.NewContext()
	if err != nil {
		return nil, fmt.Errorf("failed to open audio context: %w", err)
	}
	return &devices{
		audioContext: audioContext,
		capture:      capture,
		frameSamples: vad.DefaultGateConfig().FrameSamples,
	}, nil
}

func (d *devices) openOutput(context.Context) (voicechat.AudioOutput, error) {
	output, err := d.audioContext.NewPlayback()
	if err != nil {
		return nil, err
	}
	return output, nil
}

func (d *devices) openMicrophone(context.Context) (vad.Microphone, error) {
	if d.capture == capturePortaudio {
		client, err := portaudio.NewClient(d.frameSamples)
		if err != nil {
			return nil, err
		}
		return client, nil
	}

	capture, err := d.audioContext.NewCapture()
	if err != nil {
		return nil, err
	}
	if info := capture.EncodingInfo(); info.SampleRate != audio.DefaultSampleRate {
		_ = capture.Close()
		return nil, fmt.Errorf("capture device runs at %d Hz, want %d Hz", info.SampleRate, audio.DefaultSampleRate)
	}
	return capture, nil
}

func (d *devices) Close() {
	d.audioContext.Close()
}
