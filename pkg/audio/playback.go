package audio

import (
	"fmt"
	"sync"
	"time"
)

// DefaultIdleSlack is how far past the end of the last scheduled buffer the
// scheduler still reports playback as active. It absorbs clock-read jitter
// between frames of a continuous stream.
const DefaultIdleSlack = 100 * time.Millisecond

// SchedulerOption configures a [Scheduler].
type SchedulerOption func(*Scheduler)

// WithIdleSlack overrides [DefaultIdleSlack].
func WithIdleSlack(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.slack = d
	}
}

// Scheduler places decoded model audio on the output clock so consecutive
// frames play back to back with no gaps.
//
// The invariant is that each frame starts exactly where the previous one ends
// while playback is considered active, and at the current clock position when
// it is not. The active check errs toward "playing": reporting playback after
// it has drained only delays the next frame's start by the slack window,
// whereas reporting idle too early would overlap frames.
type Scheduler struct {
	out   OutputContext
	slack time.Duration

	mu        sync.Mutex
	nextStart time.Duration
	scheduled bool
}

// NewScheduler returns a scheduler driving out.
func NewScheduler(out OutputContext, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		out:   out,
		slack: DefaultIdleSlack,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enqueue decodes frame and schedules it for gapless playback. A frame that
// fails to decode or schedule is skipped without disturbing the timeline.
func (s *Scheduler) Enqueue(frame EncodedFrame) error {
	samples, err := DecodeFrame(frame)
	if err != nil {
		return fmt.Errorf("audio: enqueue: %w", err)
	}
	if len(samples) == 0 {
		return nil
	}
	chunk := AudioChunk{Samples: samples, SampleRate: frame.SampleRate}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.out.Now()
	start := now
	if s.playingLocked(now) {
		start = s.nextStart
	}
	if err := s.out.ScheduleAt(samples, frame.SampleRate, start); err != nil {
		return fmt.Errorf("audio: enqueue: %w", err)
	}
	s.nextStart = start + chunk.Duration()
	s.scheduled = true
	return nil
}

// Playing reports whether scheduled audio is still within the playback window.
func (s *Scheduler) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playingLocked(s.out.Now())
}

func (s *Scheduler) playingLocked(now time.Duration) bool {
	return s.scheduled && now < s.nextStart+s.slack
}

// Reset abandons the current timeline. The next frame starts at the clock
// position current when it arrives.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled = false
	s.nextStart = 0
}
