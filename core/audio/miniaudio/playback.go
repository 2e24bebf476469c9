package miniaudio

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-realtime/core/audio"
	"github.com/koscakluka/ema-realtime/core/playback"
)

// Playback renders scheduled segments onto the default output device. Its
// clock counts frames handed to the device, so start times are sample
// accurate regardless of callback jitter.
type Playback struct {
	device *malgo.Device
	config malgo.DeviceConfig

	sampleRate int

	mu             sync.Mutex
	framesRendered uint64
	scheduled      []scheduledSegment
}

type scheduledSegment struct {
	samples    []float32
	startFrame uint64
	played     int
	onEnded    func()
}

var _ playback.Output = (*Playback)(nil)

func (p *Playback) init(audioContext *malgo.AllocatedContext) error {
	sampleRate := uint32(audio.DefaultSampleRate)
	channels := audio.DefaultChannels
	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

	p.sampleRate = int(sampleRate)
	p.config = malgo.DefaultDeviceConfig(malgo.Playback)
	p.config.SampleRate = sampleRate
	p.config.Playback.Format = format
	p.config.Playback.Channels = uint32(channels)
	p.config.Alsa.NoMMap = 1
	p.config.PeriodSizeInFrames = sampleRate / 100 // ~10ms of audio
	p.config.Periods = 4

	var err error
	if p.device, err = malgo.InitDevice(
		audioContext.Context,
		p.config,
		malgo.DeviceCallbacks{Data: p.processAudio(bytesPerFrame)},
	); err != nil {
		return err
	}

	return nil
}

func (p *Playback) start() error {
	if p.device == nil {
		return fmt.Errorf("device not initialized")
	}

	if err := p.device.Start(); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}

	return nil
}

func (p *Playback) Now() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frameTime(p.framesRendered)
}

func (p *Playback) Play(seg playback.Segment, at time.Duration, onEnded func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	startFrame := uint64(audio.Samples(at, p.sampleRate))
	if startFrame < p.framesRendered {
		startFrame = p.framesRendered
	}
	p.scheduled = append(p.scheduled, scheduledSegment{
		samples:    seg.Samples,
		startFrame: startFrame,
		onEnded:    onEnded,
	})
}

func (p *Playback) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scheduled = nil
}

func (p *Playback) Close() error {
	if p.device == nil {
		return fmt.Errorf("device not initialized")
	}

	p.device.Uninit()
	p.device = nil
	p.Clear()
	return nil
}

func (p *Playback) frameTime(frame uint64) time.Duration {
	return audio.Duration(int(frame), p.sampleRate)
}

// maxRefills bounds how many times one window is re-rendered after completion
// callbacks scheduled more audio into it.
const maxRefills = 16

func (p *Playback) processAudio(bytesPerFrame int) malgo.DataProc {
	return func(pOutput, _ []byte, frameCount uint32) {
		need := int(frameCount) * bytesPerFrame
		if len(pOutput) < need {
			return
		}
		clear(pOutput[:need])
		p.render(pOutput, bytesPerFrame, frameCount)
	}
}

// render mixes every segment that overlaps the current window into out and
// then advances the clock. Completion callbacks run synchronously between
// passes, so a segment scheduled back to back with one that ended inside the
// window is rendered in the same window with no gap.
func (p *Playback) render(out []byte, bytesPerFrame int, frameCount uint32) {
	for range maxRefills {
		finished := p.renderPass(out, bytesPerFrame, frameCount)
		if len(finished) == 0 {
			break
		}
		for _, onEnded := range finished {
			if onEnded != nil {
				onEnded()
			}
		}
	}

	p.mu.Lock()
	p.framesRendered += uint64(frameCount)
	p.mu.Unlock()
}

func (p *Playback) renderPass(out []byte, bytesPerFrame int, frameCount uint32) []func() {
	p.mu.Lock()
	defer p.mu.Unlock()

	windowStart := p.framesRendered
	windowEnd := windowStart + uint64(frameCount)

	var finished []func()
	remaining := p.scheduled[:0]
	for _, seg := range p.scheduled {
		position := max(seg.startFrame+uint64(seg.played), windowStart)
		if position >= windowEnd {
			remaining = append(remaining, seg)
			continue
		}

		for frame := int(position - windowStart); frame < int(frameCount) && seg.played < len(seg.samples); frame++ {
			mixSample(out[frame*bytesPerFrame:], seg.samples[seg.played])
			seg.played++
		}

		if seg.played >= len(seg.samples) {
			finished = append(finished, seg.onEnded)
			continue
		}
		remaining = append(remaining, seg)
	}
	p.scheduled = remaining
	return finished
}

func mixSample(out []byte, sample float32) {
	existing := float32(int16(binary.LittleEndian.Uint16(out))) / 32768.0
	binary.LittleEndian.PutUint16(out, uint16(audio.SampleToInt16(existing+sample)))
}
