package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-realtime/core/events"
)

const (
	// DefaultURL is the realtime endpoint including the model selection.
	DefaultURL = "wss://api.x.ai/v1/realtime?model=grok-beta-realtime"

	subprotocol      = "realtime"
	apiKeyProtocol   = "openai-insecure-api-key."
	handshakeTimeout = 10 * time.Second
	closeGracePeriod = 2 * time.Second
)

type DialConfig struct {
	URL   string
	Token string
	// Dialer overrides the websocket dialer. Its Subprotocols are replaced.
	Dialer *websocket.Dialer
}

// Handler receives classified inbound messages in wire order, synchronously
// from the read loop.
type Handler interface {
	OnEvent(event events.Event)
	OnDecodeError(err error)
}

// Channel is an open realtime connection. Sends are safe for concurrent use;
// Run must be called at most once.
type Channel struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu     sync.Mutex
	closed bool
}

// Dial opens the realtime channel, authenticating through the websocket
// subprotocol list the same way browsers do.
func Dial(ctx context.Context, config DialConfig) (*Channel, error) {
	ctx, span := tracer.Start(ctx, "dial realtime channel")
	defer span.End()

	url := config.URL
	if url == "" {
		url = DefaultURL
	}

	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
	}
	if config.Dialer != nil {
		copied := *config.Dialer
		dialer = &copied
	}
	dialer.Subprotocols = []string{subprotocol, apiKeyProtocol + config.Token}

	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w: handshake failed with status %s: %v", ErrChannelFailure, resp.Status, err)
		} else {
			err = fmt.Errorf("%w: %v", ErrChannelFailure, err)
		}
		span.RecordError(err)
		return nil, err
	}

	return &Channel{conn: conn}, nil
}

// Send marshals and writes msgs in order. The whole batch is written under one
// lock so it is never interleaved with another Send.
func (c *Channel) Send(msgs ...any) error {
	payloads := make([][]byte, 0, len(msgs))
	for _, msg := range msgs {
		payload, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("failed to marshal outbound message: %w", err)
		}
		payloads = append(payloads, payload)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.isClosed() {
		return ErrChannelClosed
	}
	for _, payload := range payloads {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return fmt.Errorf("%w: write failed: %v", ErrChannelFailure, err)
		}
	}
	return nil
}

// Run reads until the channel closes. It returns nil when the channel was
// closed locally and an ErrChannelFailure otherwise; a close initiated by the
// remote also matches ErrChannelClosed.
func (c *Channel) Run(handler Handler) error {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.isClosed() {
				return nil
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return fmt.Errorf("%w: %w: code %d", ErrChannelFailure, ErrChannelClosed, closeErr.Code)
			}
			return fmt.Errorf("%w: %v", ErrChannelFailure, err)
		}

		if msgType != websocket.TextMessage {
			logger.Debug("ignoring non-text realtime frame", "type", msgType, "size", len(data))
			continue
		}

		event, err := Classify(data)
		if err != nil {
			handler.OnDecodeError(err)
			continue
		}
		handler.OnEvent(event)
	}
}

// Close sends a normal close frame and releases the connection. It is safe
// to call more than once.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	// A failed close frame is not worth reporting, the socket goes anyway.
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeGracePeriod))

	if err := c.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("failed to close realtime channel: %w", err)
	}
	return nil
}

func (c *Channel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
