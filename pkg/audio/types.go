package audio

import "time"

// Sample rates are fixed by the upstream speech model's wire contract.
const (
	// CaptureRate is the sample rate of outbound microphone audio in Hz.
	CaptureRate = 16000

	// PlaybackRate is the sample rate of inbound model audio in Hz.
	PlaybackRate = 24000

	// DefaultBlockSize is the number of samples requested per capture
	// callback.
	DefaultBlockSize = 4096
)

// AudioChunk is one block of mono float samples at a known rate. Chunks are
// ephemeral: produced once per capture callback or decoded network frame and
// owned by the producing stage until handed to the next one.
type AudioChunk struct {
	// Samples holds the float audio data, nominally in [-1, 1].
	Samples []float32

	// SampleRate in Hz.
	SampleRate int
}

// Duration returns the playback duration of the chunk.
func (c AudioChunk) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(c.SampleRate)
}

// EncodedFrame is a base64 string wrapping signed 16-bit little-endian PCM at
// a fixed rate. Immutable once created; travels as the payload of a wire
// message.
type EncodedFrame struct {
	// Data is the base64-encoded PCM16 payload.
	Data string

	// SampleRate in Hz: [CaptureRate] outbound, [PlaybackRate] inbound.
	SampleRate int
}
