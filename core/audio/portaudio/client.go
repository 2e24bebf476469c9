package portaudio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/koscakluka/ema-realtime/core/audio"
)

// Client is a blocking-read microphone built on PortAudio. It produces PCM16
// little-endian mono frames at the wire sample rate.
type Client struct {
	bufferSize int
	stream     *portaudio.Stream

	in []int16

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

func NewClient(bufferSize int) (*Client, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	in := make([]int16, bufferSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(audio.DefaultSampleRate), bufferSize, in)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open PortAudio stream: %w", err)
	}

	return &Client{
		bufferSize: bufferSize,
		stream:     stream,
		in:         in,
	}, nil
}

func (c *Client) StartCapture(ctx context.Context, onAudio func(audio []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return nil
	}

	if err := c.stream.Start(); err != nil {
		return fmt.Errorf("failed to start PortAudio stream: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.stopped = make(chan struct{})
	go c.read(ctx, onAudio, c.stopped)
	return nil
}

func (c *Client) read(ctx context.Context, onAudio func(audio []byte), stopped chan struct{}) {
	defer close(stopped)

	err := captureLoop(ctx, defaultReadBackoff, c.stream.Read, func() {
		audioBuffer := bytes.Buffer{}
		_ = binary.Write(&audioBuffer, binary.LittleEndian, c.in)
		onAudio(audioBuffer.Bytes())
	})
	if err != nil {
		logger.Error("PortAudio capture stopped", "error", err)
	}
}

type readBackoff struct {
	initial     time.Duration
	max         time.Duration
	maxFailures int
}

var defaultReadBackoff = readBackoff{
	initial:     10 * time.Millisecond,
	max:         time.Second,
	maxFailures: 10,
}

// captureLoop calls read and then deliver until ctx is done. Consecutive read
// failures back off exponentially; after backoff.maxFailures of them the loop
// gives up and returns the last error.
func captureLoop(ctx context.Context, backoff readBackoff, read func() error, deliver func()) error {
	failures := 0
	delay := backoff.initial
	for ctx.Err() == nil {
		if err := read(); err != nil {
			failures++
			if failures >= backoff.maxFailures {
				return fmt.Errorf("giving up after %d consecutive read failures: %w", failures, err)
			}
			logger.Warn("failed to read from PortAudio stream", "error", err, "failures", failures, "retry_in", delay)

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
			delay = min(delay*2, backoff.max)
			continue
		}

		failures = 0
		delay = backoff.initial
		deliver()
	}
	return nil
}

func (c *Client) StopCapture() error {
	c.mu.Lock()
	cancel, stopped := c.cancel, c.stopped
	c.cancel, c.stopped = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-stopped
	if err := c.stream.Stop(); err != nil {
		return fmt.Errorf("failed to stop PortAudio stream: %w", err)
	}
	return nil
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{
		SampleRate: audio.DefaultSampleRate,
		Format:     audio.EncodingLinear16,
	}
}

func (c *Client) Close() error {
	stopErr := c.StopCapture()
	closeErr := c.stream.Close()
	portaudio.Terminate()
	if stopErr != nil {
		return stopErr
	}
	return closeErr
}
