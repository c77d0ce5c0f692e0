// Package audio implements the client-side voice pipeline for Voicebridge.
//
// The three processing stages are:
//
//   - capture conversion — microphone blocks at the device's native rate are
//     decimated to the model's 16 kHz PCM16 wire format and base64-encoded
//     ([Resample], [EncodeFrame]).
//   - playback scheduling — inbound 24 kHz model audio is decoded and placed
//     on a contiguous audio-clock timeline ([Scheduler]).
//   - turn accumulation — outbound audio is kept per conversational turn so
//     it can be replayed or exported for review ([TurnBuffer]).
//
// The [Bridge] façade owns one instance of each stage and is the only type
// the rest of the application talks to.
//
// Capture and playback primitives are provided by an [Engine] implementation.
// The interfaces are intentionally narrow so the pipeline stays decoupled from
// the platform audio runtime; the audio/mock package provides an in-memory
// engine with a manual clock for tests.
package audio

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors surfaced by [Engine] implementations and the [Bridge].
// Capture failures are split into permission and device errors so callers can
// message users differently.
var (
	// ErrPermissionDenied is returned when the user refuses microphone access.
	ErrPermissionDenied = errors.New("audio: capture permission denied")

	// ErrNoDevice is returned when no capture device exists.
	ErrNoDevice = errors.New("audio: no capture device available")

	// ErrNotInitialized is returned by Bridge operations that require a prior
	// successful Initialize call.
	ErrNotInitialized = errors.New("audio: bridge not initialized")

	// ErrDestroyed is returned by every Bridge operation after Destroy.
	ErrDestroyed = errors.New("audio: bridge destroyed")
)

// CaptureConfig describes the constraints requested when opening a capture
// stream.
type CaptureConfig struct {
	// BlockSize is the number of samples delivered per capture callback.
	BlockSize int

	// EchoCancellation requests acoustic echo cancellation on the device.
	EchoCancellation bool

	// NoiseSuppression requests noise suppression on the device.
	NoiseSuppression bool

	// AutoGainControl requests automatic gain control on the device.
	AutoGainControl bool
}

// CaptureStream is an open microphone stream delivering fixed-size blocks of
// float samples at the device's native rate.
//
// The block callback runs on the engine's real-time audio thread: work done
// inside it must be bounded and non-blocking, or the device will produce
// audible dropouts.
type CaptureStream interface {
	// SampleRate returns the device's native sample rate in Hz.
	SampleRate() int

	// OnBlock registers fn as the consumer of captured blocks. Only one
	// consumer may be registered; subsequent calls replace the previous one.
	OnBlock(fn func(samples []float32))

	// Close releases the capture device. Blocks already in flight are
	// discarded. Safe to call more than once.
	Close() error
}

// OutputContext is a platform audio output with its own monotonic clock.
//
// Scheduling is driven by this clock rather than wall time so queued buffers
// play at their exact start times regardless of caller scheduling jitter.
type OutputContext interface {
	// Now returns the current position of the audio clock.
	Now() time.Duration

	// ScheduleAt queues samples (mono, at sampleRate) to start playing at the
	// given audio-clock time. A start time in the past is clamped to now.
	ScheduleAt(samples []float32, sampleRate int, start time.Duration) error

	// Close releases the output device and discards queued buffers.
	Close() error
}

// Engine provides the platform capture/playback primitives the [Bridge]
// wraps. Implementations must be safe for concurrent use.
type Engine interface {
	// NewOutputContext acquires the platform audio output. On browsers this
	// must happen synchronously within a user-gesture handler chain or the
	// platform's autoplay policy will refuse output; callers should treat it
	// the same way everywhere.
	NewOutputContext(ctx context.Context) (OutputContext, error)

	// OpenCapture requests microphone access with the given constraints.
	// Returns [ErrPermissionDenied] (wrapped) if the user denies access and
	// [ErrNoDevice] (wrapped) if no capture device exists.
	OpenCapture(ctx context.Context, cfg CaptureConfig) (CaptureStream, error)
}
