package audio

import (
	"sync"
	"time"
)

// TurnBuffer accumulates the outbound PCM16 audio of the current
// conversational turn so it can be exported or replayed. The buffer only ever
// holds one turn; ClearTurn discards it when the turn completes.
type TurnBuffer struct {
	mu         sync.Mutex
	pcm        []byte
	sampleRate int
}

// NewTurnBuffer returns an empty buffer expecting PCM16 at sampleRate.
func NewTurnBuffer(sampleRate int) *TurnBuffer {
	return &TurnBuffer{sampleRate: sampleRate}
}

// Append adds one frame's PCM16 bytes to the current turn.
func (b *TurnBuffer) Append(pcm []byte) {
	if len(pcm) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pcm = append(b.pcm, pcm...)
}

// Len returns the number of buffered PCM bytes.
func (b *TurnBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pcm)
}

// Duration returns the playback duration of the buffered audio.
func (b *TurnBuffer) Duration() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	samples := len(b.pcm) / 2
	return time.Duration(samples) * time.Second / time.Duration(b.sampleRate)
}

// PCM returns a copy of the buffered PCM16 bytes.
func (b *TurnBuffer) PCM() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, len(b.pcm))
	copy(out, b.pcm)
	return out
}

// RecentPCM returns a copy of at most the trailing d of buffered audio. The
// cut is sample aligned.
func (b *TurnBuffer) RecentPCM(d time.Duration) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	maxSamples := int(d * time.Duration(b.sampleRate) / time.Second)
	maxBytes := maxSamples * 2
	start := 0
	if len(b.pcm) > maxBytes {
		start = len(b.pcm) - maxBytes
	}
	out := make([]byte, len(b.pcm)-start)
	copy(out, b.pcm[start:])
	return out
}

// WAV exports the buffered turn as a playable RIFF/WAVE file. Returns an
// error when the buffer is empty.
func (b *TurnBuffer) WAV() ([]byte, error) {
	return EncodeWAV(b.PCM(), b.sampleRate)
}

// RecentWAV exports at most the trailing d of buffered audio as a playable
// RIFF/WAVE file. Returns an error when the buffer is empty.
func (b *TurnBuffer) RecentWAV(d time.Duration) ([]byte, error) {
	return EncodeWAV(b.RecentPCM(d), b.sampleRate)
}

// Clear discards the buffered turn.
func (b *TurnBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pcm = nil
}
