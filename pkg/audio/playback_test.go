package audio_test

import (
	"testing"
	"time"

	"github.com/linguaflow/voicebridge/pkg/audio"
	"github.com/linguaflow/voicebridge/pkg/audio/mock"
)

// frameOf builds an encoded frame holding n samples at the playback rate.
func frameOf(t *testing.T, n int) audio.EncodedFrame {
	t.Helper()
	return audio.EncodeFrame(audio.AudioChunk{
		Samples:    make([]float32, n),
		SampleRate: audio.PlaybackRate,
	}, audio.PlaybackRate)
}

func TestSchedulerContiguousStartTimes(t *testing.T) {
	out := &mock.OutputContext{}
	s := audio.NewScheduler(out)

	// Three frames of 100ms each (2400 samples at 24 kHz), enqueued before
	// the clock moves. They must be laid out back to back.
	for i := 0; i < 3; i++ {
		if err := s.Enqueue(frameOf(t, 2400)); err != nil {
			t.Fatalf("Enqueue #%d: %v", i, err)
		}
	}

	want := []time.Duration{0, 100 * time.Millisecond, 200 * time.Millisecond}
	if len(out.ScheduleCalls) != len(want) {
		t.Fatalf("ScheduleCalls = %d, want %d", len(out.ScheduleCalls), len(want))
	}
	for i, call := range out.ScheduleCalls {
		if call.Start != want[i] {
			t.Errorf("frame %d start = %v, want %v", i, call.Start, want[i])
		}
		if call.SampleRate != audio.PlaybackRate {
			t.Errorf("frame %d rate = %d, want %d", i, call.SampleRate, audio.PlaybackRate)
		}
	}
}

func TestSchedulerRestartsAfterIdle(t *testing.T) {
	out := &mock.OutputContext{}
	s := audio.NewScheduler(out)

	if err := s.Enqueue(frameOf(t, 2400)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	// Clock moves well past the frame end plus slack; the next frame must
	// start at the current clock position, not at the stale tail.
	out.Advance(time.Second)
	if err := s.Enqueue(frameOf(t, 2400)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if len(out.ScheduleCalls) != 2 {
		t.Fatalf("ScheduleCalls = %d, want 2", len(out.ScheduleCalls))
	}
	if got := out.ScheduleCalls[1].Start; got != time.Second {
		t.Errorf("second frame start = %v, want %v", got, time.Second)
	}
}

func TestSchedulerPlayingWindow(t *testing.T) {
	out := &mock.OutputContext{}
	s := audio.NewScheduler(out)

	if s.Playing() {
		t.Error("Playing() = true before any frame")
	}
	if err := s.Enqueue(frameOf(t, 2400)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if !s.Playing() {
		t.Error("Playing() = false immediately after Enqueue")
	}

	// Still within the idle slack after the frame ends.
	out.Advance(100*time.Millisecond + 50*time.Millisecond)
	if !s.Playing() {
		t.Error("Playing() = false inside slack window")
	}

	out.Advance(60 * time.Millisecond)
	if s.Playing() {
		t.Error("Playing() = true after slack window elapsed")
	}
}

func TestSchedulerCustomSlack(t *testing.T) {
	out := &mock.OutputContext{}
	s := audio.NewScheduler(out, audio.WithIdleSlack(10*time.Millisecond))

	if err := s.Enqueue(frameOf(t, 2400)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	out.Advance(100*time.Millisecond + 20*time.Millisecond)
	if s.Playing() {
		t.Error("Playing() = true past a 10ms slack window")
	}
}

func TestSchedulerSkipsBadFrame(t *testing.T) {
	out := &mock.OutputContext{}
	s := audio.NewScheduler(out)

	if err := s.Enqueue(frameOf(t, 2400)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := s.Enqueue(audio.EncodedFrame{Data: "@@@", SampleRate: audio.PlaybackRate}); err == nil {
		t.Fatal("expected error for undecodable frame")
	}

	// The bad frame must not have shifted the timeline.
	if err := s.Enqueue(frameOf(t, 2400)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if len(out.ScheduleCalls) != 2 {
		t.Fatalf("ScheduleCalls = %d, want 2", len(out.ScheduleCalls))
	}
	if got := out.ScheduleCalls[1].Start; got != 100*time.Millisecond {
		t.Errorf("frame after skip starts at %v, want %v", got, 100*time.Millisecond)
	}
}

func TestSchedulerReset(t *testing.T) {
	out := &mock.OutputContext{}
	s := audio.NewScheduler(out)

	if err := s.Enqueue(frameOf(t, 2400)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	s.Reset()
	if s.Playing() {
		t.Error("Playing() = true after Reset")
	}

	out.Advance(30 * time.Millisecond)
	if err := s.Enqueue(frameOf(t, 2400)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if got := out.ScheduleCalls[1].Start; got != 30*time.Millisecond {
		t.Errorf("frame after Reset starts at %v, want %v", got, 30*time.Millisecond)
	}
}
