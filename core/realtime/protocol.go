package realtime

import "github.com/koscakluka/ema-realtime/core/audio"

const (
	TypeSessionUpdate          = "session.update"
	TypeConversationItemCreate = "conversation.item.create"
	TypeResponseCreate         = "response.create"
	TypeAudioAppend            = "input_audio_buffer.append"
	TypeAudioCommit            = "input_audio_buffer.commit"
)

const DefaultTranscriptionModel = "whisper-1"

// SessionConfig holds the parameters negotiated right after the channel
// opens.
type SessionConfig struct {
	Instructions       string
	Voice              string
	TranscriptionModel string
	EncodingInfo       audio.EncodingInfo
}

type SessionUpdate struct {
	Type    string        `json:"type" jsonschema:"enum=session.update"`
	Session SessionParams `json:"session"`
}

type SessionParams struct {
	Modalities              []string       `json:"modalities"`
	Instructions            string         `json:"instructions"`
	Voice                   string         `json:"voice"`
	InputAudioFormat        string         `json:"input_audio_format"`
	OutputAudioFormat       string         `json:"output_audio_format"`
	TurnDetection           *TurnDetection `json:"turn_detection"`
	InputAudioTranscription *Transcription `json:"input_audio_transcription,omitempty"`
}

// TurnDetection is always sent as null; the client segments speech itself.
type TurnDetection struct {
	Type string `json:"type"`
}

type Transcription struct {
	Model string `json:"model"`
}

func NewSessionUpdate(config SessionConfig) SessionUpdate {
	encodingInfo := config.EncodingInfo
	if encodingInfo.IsZero() {
		encodingInfo = audio.GetDefaultEncodingInfo()
	}
	format := encodingInfo.Format.WireName()

	model := config.TranscriptionModel
	if model == "" {
		model = DefaultTranscriptionModel
	}

	return SessionUpdate{
		Type: TypeSessionUpdate,
		Session: SessionParams{
			Modalities:              []string{"text", "audio"},
			Instructions:            config.Instructions,
			Voice:                   config.Voice,
			InputAudioFormat:        format,
			OutputAudioFormat:       format,
			InputAudioTranscription: &Transcription{Model: model},
		},
	}
}

type ConversationItemCreate struct {
	Type string           `json:"type" jsonschema:"enum=conversation.item.create"`
	Item ConversationItem `json:"item"`
}

type ConversationItem struct {
	Type    string        `json:"type"`
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func NewUserTextItem(text string) ConversationItemCreate {
	return ConversationItemCreate{
		Type: TypeConversationItemCreate,
		Item: ConversationItem{
			Type:    "message",
			Role:    "user",
			Content: []ContentPart{{Type: "input_text", Text: text}},
		},
	}
}

type ResponseCreate struct {
	Type string `json:"type" jsonschema:"enum=response.create"`
}

func NewResponseCreate() ResponseCreate {
	return ResponseCreate{Type: TypeResponseCreate}
}

type AudioAppend struct {
	Type  string `json:"type" jsonschema:"enum=input_audio_buffer.append"`
	Audio string `json:"audio" jsonschema:"description=base64 encoded PCM16 little-endian audio"`
}

// NewAudioAppend wraps an already encoded audio frame.
func NewAudioAppend(frame string) AudioAppend {
	return AudioAppend{Type: TypeAudioAppend, Audio: frame}
}

type AudioCommit struct {
	Type string `json:"type" jsonschema:"enum=input_audio_buffer.commit"`
}

func NewAudioCommit() AudioCommit {
	return AudioCommit{Type: TypeAudioCommit}
}
