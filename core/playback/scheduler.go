// Package playback schedules decoded reply audio onto an output device so
// that segments play back to back with no gaps and no overlaps.
package playback

import (
	"sync"
	"time"

	"github.com/koscakluka/ema-realtime/core/audio"
)

// Segment is a decoded, time-ordered chunk of mono audio.
type Segment struct {
	Samples    []float32
	SampleRate int
}

func NewSegment(samples []float32) Segment {
	return Segment{Samples: samples, SampleRate: audio.DefaultSampleRate}
}

func (s Segment) Duration() time.Duration {
	return audio.Duration(len(s.Samples), s.SampleRate)
}

// Output is the device side of the scheduler.
//
// Play must begin rendering seg exactly at the clock time at (or immediately
// when at is already in the past) and must invoke onEnded asynchronously,
// never from inside Play. onEnded may run on the device render thread and
// call Play again; a segment played at the previous end time must follow it
// without a gap. Clear drops everything scheduled so far.
type Output interface {
	Now() time.Duration
	Play(seg Segment, at time.Duration, onEnded func())
	Clear()
}

type state interface{ isState() }

type idle struct{}

type playing struct {
	segment      Segment
	scheduledEnd time.Duration
}

func (idle) isState()    {}
func (playing) isState() {}

// Scheduler owns the queue of segments waiting for playback. At most one
// segment is handed to the output at a time; start times are precomputed from
// segment lengths so completion-callback latency never shifts the timeline.
type Scheduler struct {
	mu sync.Mutex

	output        Output
	queue         []Segment
	state         state
	nextStartTime time.Duration

	// generation invalidates completion callbacks issued before a Reset.
	generation uint64

	onScheduled func(seg Segment, start time.Duration)
}

type SchedulerOption func(*Scheduler)

// WithScheduledCallback observes every segment handed to the output with its
// computed start time.
func WithScheduledCallback(callback func(seg Segment, start time.Duration)) SchedulerOption {
	return func(s *Scheduler) { s.onScheduled = callback }
}

func NewScheduler(output Output, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{output: output, state: idle{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enqueue appends seg and starts playback if nothing is playing.
func (s *Scheduler) Enqueue(seg Segment) {
	if len(seg.Samples) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.queue = append(s.queue, seg)
	if _, ok := s.state.(idle); ok {
		s.scheduleNextLocked()
	}
}

// Reset discards queued and in-flight audio immediately.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queue = nil
	s.state = idle{}
	s.nextStartTime = 0
	s.generation++
	if s.output != nil {
		s.output.Clear()
	}
}

func (s *Scheduler) NextStartTime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextStartTime
}

// Pending reports the number of segments waiting behind the playing one.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Playing reports whether a segment is in flight and when it is due to end.
func (s *Scheduler) Playing() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.state.(playing); ok {
		return p.scheduledEnd, true
	}
	return 0, false
}

func (s *Scheduler) scheduleNextLocked() {
	if len(s.queue) == 0 || s.output == nil {
		s.state = idle{}
		return
	}

	seg := s.queue[0]
	s.queue = s.queue[1:]

	if now := s.output.Now(); s.nextStartTime < now {
		s.nextStartTime = now
	}
	start := s.nextStartTime
	s.nextStartTime += seg.Duration()
	s.state = playing{segment: seg, scheduledEnd: s.nextStartTime}

	generation := s.generation
	s.output.Play(seg, start, func() { s.segmentEnded(generation) })
	if s.onScheduled != nil {
		s.onScheduled(seg, start)
	}
}

func (s *Scheduler) segmentEnded(generation uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if generation != s.generation {
		return
	}
	if _, ok := s.state.(playing); !ok {
		return
	}
	s.state = idle{}
	s.scheduleNextLocked()
}
