// Package debuglog keeps a bounded, newest-first trace of what the session
// is doing, for display next to the conversation.
package debuglog

import (
	"fmt"
	"sync"
	"time"
)

const DefaultCapacity = 200

type Category string

const (
	CategorySystem     Category = "SYS"
	CategoryChannel    Category = "WS"
	CategoryAudioIn    Category = "RX_AUDIO"
	CategoryAudio      Category = "AUDIO"
	CategoryAudioError Category = "AUDIO_ERR"
	CategoryError      Category = "ERR"
	CategorySend       Category = "TX"
	CategorySpeech     Category = "VAD"
)

type Entry struct {
	Timestamp time.Time
	Category  Category
	Text      string
}

func (e Entry) String() string {
	return fmt.Sprintf("[%s] [%s] %s", e.Timestamp.Format(time.TimeOnly), e.Category, e.Text)
}

// Sink is a fixed-capacity ring of entries. When full, the oldest entry is
// overwritten.
type Sink struct {
	mu      sync.Mutex
	enabled bool
	entries []Entry
	head    int // index of the next write
	size    int
	now     func() time.Time
}

type SinkOption func(*Sink)

func WithCapacity(capacity int) SinkOption {
	return func(s *Sink) {
		if capacity > 0 {
			s.entries = make([]Entry, capacity)
		}
	}
}

func WithClock(now func() time.Time) SinkOption {
	return func(s *Sink) { s.now = now }
}

func WithEnabled(enabled bool) SinkOption {
	return func(s *Sink) { s.enabled = enabled }
}

func NewSink(opts ...SinkOption) *Sink {
	s := &Sink{
		entries: make([]Entry, DefaultCapacity),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record stores an entry when the sink is enabled.
func (s *Sink) Record(category Category, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled {
		return
	}

	s.entries[s.head] = Entry{Timestamp: s.now(), Category: category, Text: text}
	s.head = (s.head + 1) % len(s.entries)
	if s.size < len(s.entries) {
		s.size++
	}
}

func (s *Sink) Recordf(category Category, format string, args ...any) {
	if !s.Enabled() {
		return
	}
	s.Record(category, fmt.Sprintf(format, args...))
}

// SetEnabled toggles recording. Buffered entries are kept either way.
func (s *Sink) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
}

func (s *Sink) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

func (s *Sink) Capacity() int {
	return len(s.entries)
}

// Entries returns the buffered entries, newest first.
func (s *Sink) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]Entry, 0, s.size)
	for i := 1; i <= s.size; i++ {
		idx := (s.head - i + len(s.entries)) % len(s.entries)
		entries = append(entries, s.entries[idx])
	}
	return entries
}

// Lines returns the formatted entries, newest first.
func (s *Sink) Lines() []string {
	entries := s.Entries()
	lines := make([]string, len(entries))
	for i, entry := range entries {
		lines[i] = entry.String()
	}
	return lines
}

func (s *Sink) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.entries)
	s.head = 0
	s.size = 0
}
