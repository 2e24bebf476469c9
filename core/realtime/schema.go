package realtime

import (
	"fmt"
	"slices"

	"github.com/invopop/jsonschema"
)

var outboundMessages = map[string]any{
	TypeSessionUpdate:          SessionUpdate{},
	TypeConversationItemCreate: ConversationItemCreate{},
	TypeResponseCreate:         ResponseCreate{},
	TypeAudioAppend:            AudioAppend{},
	TypeAudioCommit:            AudioCommit{},
}

// OutboundTypes lists the wire types the client sends, sorted.
func OutboundTypes() []string {
	types := make([]string, 0, len(outboundMessages))
	for messageType := range outboundMessages {
		types = append(types, messageType)
	}
	slices.Sort(types)
	return types
}

// Schema reflects the JSON schema of an outbound message type.
func Schema(messageType string) (*jsonschema.Schema, error) {
	msg, ok := outboundMessages[messageType]
	if !ok {
		return nil, fmt.Errorf("unknown outbound message type %q", messageType)
	}
	reflector := jsonschema.Reflector{DoNotReference: true}
	return reflector.Reflect(msg), nil
}
