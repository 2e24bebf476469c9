package miniaudio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

// Context owns the malgo backend context shared by playback and capture
// devices. Devices opened from it must be closed before the context.
type Context struct {
	// audioContext is only saved to be able to uninitialize it, it is an
	// ownership thing
	audioContext *malgo.AllocatedContext

	mu     sync.Mutex
	closed bool
}

func NewContext() (*Context, error) {
	audioCtx, err := malgo.InitContext(
		nil,
		malgo.ContextConfig{},
		func(message string) { logger.Debug("malgo", "message", message) },
	)
	if err != nil {
		return nil, fmt.Errorf("malgo InitContext failed: %w", err)
	}

	return &Context{audioContext: audioCtx}, nil
}

// NewPlayback initializes and starts a playback device on the context.
func (c *Context) NewPlayback() (*Playback, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, fmt.Errorf("audio context closed")
	}

	p := &Playback{}
	if err := p.init(c.audioContext); err != nil {
		return nil, fmt.Errorf("failed to initialize playback device: %w", err)
	}
	if err := p.start(); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("failed to start playback device: %w", err)
	}
	return p, nil
}

// NewCapture initializes a capture device on the context. Capture does not
// begin until StartCapture.
func (c *Context) NewCapture() (*Capture, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, fmt.Errorf("audio context closed")
	}

	capture := &Capture{}
	if err := capture.init(c.audioContext); err != nil {
		return nil, fmt.Errorf("failed to initialize capture device: %w", err)
	}
	return capture, nil
}

func (c *Context) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	_ = c.audioContext.Uninit()
	c.audioContext.Free()
}
