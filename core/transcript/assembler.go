// Package transcript reassembles streamed text fragments into one message
// per conversational turn.
package transcript

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	ID        string
	Role      Role
	Text      string
	Finalized bool
	Timestamp time.Time
}

// Assembler keeps the ordered transcript. At most one assistant message is
// open at a time and it is always the last message.
type Assembler struct {
	mu       sync.Mutex
	messages []Message
	now      func() time.Time
}

type AssemblerOption func(*Assembler)

// WithClock replaces the time source used for message timestamps.
func WithClock(now func() time.Time) AssemblerOption {
	return func(a *Assembler) { a.now = now }
}

func NewAssembler(opts ...AssemblerOption) *Assembler {
	a := &Assembler{now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AppendFragment appends text to the open assistant message when role is
// assistant and streaming is set; otherwise it creates a new message that is
// finalized unless streaming.
func (a *Assembler) AppendFragment(role Role, text string, streaming bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if role == RoleAssistant && streaming {
		if open := a.openLocked(); open != nil {
			open.Text += text
			open.Timestamp = a.now()
			return
		}
	}
	a.appendLocked(role, text, !streaming)
}

// StartAssistantMessage opens a new, empty streaming assistant message,
// finalizing whatever was left open by an unfinished turn.
func (a *Assembler) StartAssistantMessage() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if open := a.openLocked(); open != nil {
		open.Finalized = true
	}
	a.appendLocked(RoleAssistant, "", false)
}

// FinalizeOpenAssistantMessage freezes the open assistant message. It
// reports whether there was one.
func (a *Assembler) FinalizeOpenAssistantMessage() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	open := a.openLocked()
	if open == nil {
		return false
	}
	open.Finalized = true
	return true
}

// RecordUserTranscript records a remote transcription of captured audio.
func (a *Assembler) RecordUserTranscript(text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.appendLocked(RoleUser, text, true)
}

// Messages returns a copy of the transcript in arrival order.
func (a *Assembler) Messages() []Message {
	a.mu.Lock()
	defer a.mu.Unlock()

	messages := make([]Message, 0, len(a.messages))
	if err := copier.Copy(&messages, a.messages); err != nil {
		logger.Warn("failed to copy transcript", "error", err)
		return append(messages[:0], a.messages...)
	}
	return messages
}

func (a *Assembler) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.messages)
}

// Open returns the open assistant message, if any.
func (a *Assembler) Open() (Message, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if open := a.openLocked(); open != nil {
		return *open, true
	}
	return Message{}, false
}

func (a *Assembler) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = nil
}

func (a *Assembler) openLocked() *Message {
	if len(a.messages) == 0 {
		return nil
	}
	last := &a.messages[len(a.messages)-1]
	if last.Role != RoleAssistant || last.Finalized {
		return nil
	}
	return last
}

func (a *Assembler) appendLocked(role Role, text string, finalized bool) {
	a.messages = append(a.messages, Message{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		Finalized: finalized,
		Timestamp: a.now(),
	})
}
