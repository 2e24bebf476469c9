package realtime

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/koscakluka/ema-realtime/core/events"
)

type inboundMessage struct {
	Type       string `json:"type"`
	Delta      string `json:"delta"`
	Transcript string `json:"transcript"`
	Error      *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Classify turns one inbound wire message into an event. Provider variants of
// the same message (for example response.audio.delta and
// response.output_audio.delta) are matched on their suffix.
func Classify(data []byte) (events.Event, error) {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: failed to decode message: %v", ErrProtocol, err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("%w: message has no type", ErrProtocol)
	}

	switch {
	case strings.HasSuffix(msg.Type, "audio.delta"):
		return events.NewAudioDelta(msg.Delta), nil
	case strings.HasSuffix(msg.Type, "transcript.delta"),
		strings.HasSuffix(msg.Type, "text.delta"):
		return events.NewTextDelta(msg.Delta), nil
	case msg.Type == "response.created":
		return events.NewTurnStarted(), nil
	case msg.Type == "response.done":
		return events.NewTurnDone(), nil
	case strings.HasSuffix(msg.Type, "input_audio_transcription.completed"):
		return events.NewTranscriptionCompleted(msg.Transcript), nil
	case msg.Type == "session.updated", msg.Type == "session.created":
		return events.NewSessionUpdated(), nil
	case msg.Type == "error":
		message := "unknown error"
		if msg.Error != nil && msg.Error.Message != "" {
			message = msg.Error.Message
		}
		return events.NewError(message), nil
	}
	return events.NewUnknown(msg.Type), nil
}
