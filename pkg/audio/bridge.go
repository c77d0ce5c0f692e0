package audio

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"
)

// FrameHandler consumes outbound encoded capture frames. Handlers run on the
// capture callback path and must not block.
type FrameHandler func(frame EncodedFrame)

// Unsubscribe removes a frame handler registered with [Bridge.OnFrame].
// Calling it more than once is a no-op.
type Unsubscribe func()

type frameSub struct {
	id int
	fn FrameHandler
}

// Bridge is the façade over the client audio pipeline: capture conversion,
// playback scheduling, and turn accumulation behind one lifecycle.
//
// Lifecycle: NewBridge → Initialize → (StartCapture | PlayChunk | ...) →
// Destroy. Initialize must be driven by a user action so the platform grants
// audio output. After Destroy every operation returns [ErrDestroyed].
type Bridge struct {
	engine Engine

	mu          sync.Mutex
	out         OutputContext
	scheduler   *Scheduler
	capture     CaptureStream
	turn        *TurnBuffer
	subs        []frameSub
	nextSubID   int
	initialized bool
	destroyed   bool
}

// NewBridge returns an uninitialized bridge backed by engine.
func NewBridge(engine Engine) *Bridge {
	return &Bridge{
		engine: engine,
		turn:   NewTurnBuffer(CaptureRate),
	}
}

// OnFrame registers handler for outbound capture frames and returns its
// [Unsubscribe]. Multiple handlers receive every frame in registration order,
// and consumers may subscribe or unsubscribe at any time, including while
// capture is running.
func (b *Bridge) OnFrame(handler FrameHandler) Unsubscribe {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextSubID++
	id := b.nextSubID
	b.subs = append(b.subs, frameSub{id: id, fn: handler})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// frameHandlers copies the live subscriber list so the capture callback never
// iterates under the lock.
func (b *Bridge) frameHandlers() []FrameHandler {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]FrameHandler, len(b.subs))
	for i, s := range b.subs {
		out[i] = s.fn
	}
	return out
}

// Initialize acquires the audio output and prepares the playback scheduler.
// Idempotent: a second call on a live bridge is a no-op.
func (b *Bridge) Initialize(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return ErrDestroyed
	}
	if b.initialized {
		return nil
	}

	out, err := b.engine.NewOutputContext(ctx)
	if err != nil {
		return fmt.Errorf("audio: initialize: %w", err)
	}
	b.out = out
	b.scheduler = NewScheduler(out)
	b.initialized = true
	return nil
}

// StartCapture opens the microphone and begins streaming encoded frames to
// the registered handlers. Each captured block is decimated to [CaptureRate],
// quantized, base64-encoded, and appended to the turn buffer.
func (b *Bridge) StartCapture(ctx context.Context, cfg CaptureConfig) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return ErrDestroyed
	}
	if !b.initialized {
		return ErrNotInitialized
	}
	if b.capture != nil {
		return nil
	}
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = DefaultBlockSize
	}

	stream, err := b.engine.OpenCapture(ctx, cfg)
	if err != nil {
		return fmt.Errorf("audio: start capture: %w", err)
	}

	srcRate := stream.SampleRate()
	turn := b.turn

	stream.OnBlock(func(samples []float32) {
		// One conversion per block; the turn buffer and the wire frame
		// share the same PCM bytes.
		pcm := FloatToPCM16(Resample(samples, srcRate, CaptureRate))
		turn.Append(pcm)
		frame := EncodedFrame{
			Data:       base64.StdEncoding.EncodeToString(pcm),
			SampleRate: CaptureRate,
		}
		for _, h := range b.frameHandlers() {
			h(frame)
		}
	})
	b.capture = stream
	return nil
}

// StopCapture closes the microphone. Frame handlers stay subscribed for the
// next capture, and the turn buffer is left intact so the finished turn can
// still be extracted. Safe to call when capture is not running.
func (b *Bridge) StopCapture() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return ErrDestroyed
	}
	if b.capture == nil {
		return nil
	}
	err := b.capture.Close()
	b.capture = nil
	if err != nil {
		return fmt.Errorf("audio: stop capture: %w", err)
	}
	return nil
}

// Capturing reports whether the microphone stream is open.
func (b *Bridge) Capturing() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.capture != nil
}

// PlayChunk schedules one inbound model frame for gapless playback.
func (b *Bridge) PlayChunk(frame EncodedFrame) error {
	b.mu.Lock()
	scheduler := b.scheduler
	destroyed := b.destroyed
	b.mu.Unlock()

	if destroyed {
		return ErrDestroyed
	}
	if scheduler == nil {
		return ErrNotInitialized
	}
	return scheduler.Enqueue(frame)
}

// Playing reports whether scheduled model audio is still audible.
func (b *Bridge) Playing() bool {
	b.mu.Lock()
	scheduler := b.scheduler
	b.mu.Unlock()
	return scheduler != nil && scheduler.Playing()
}

// ExtractTurnPCM returns a copy of the current turn's PCM16 audio.
func (b *Bridge) ExtractTurnPCM() ([]byte, error) {
	if err := b.checkLive(); err != nil {
		return nil, err
	}
	return b.turn.PCM(), nil
}

// ExtractTurnWAV returns the current turn as a playable WAV file.
func (b *Bridge) ExtractTurnWAV() ([]byte, error) {
	if err := b.checkLive(); err != nil {
		return nil, err
	}
	return b.turn.WAV()
}

// ExtractRecentWAV returns at most the trailing d of the current turn as a
// playable WAV file.
func (b *Bridge) ExtractRecentWAV(d time.Duration) ([]byte, error) {
	if err := b.checkLive(); err != nil {
		return nil, err
	}
	return b.turn.RecentWAV(d)
}

// TurnDuration returns the buffered length of the current turn.
func (b *Bridge) TurnDuration() (time.Duration, error) {
	if err := b.checkLive(); err != nil {
		return 0, err
	}
	return b.turn.Duration(), nil
}

// ClearTurn discards the buffered turn, typically when the model signals turn
// completion.
func (b *Bridge) ClearTurn() error {
	if err := b.checkLive(); err != nil {
		return err
	}
	b.turn.Clear()
	return nil
}

// Destroy tears the pipeline down: capture stream, output context, and turn
// buffer. Like every other operation, calling Destroy on an already-destroyed
// bridge returns [ErrDestroyed].
func (b *Bridge) Destroy() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return ErrDestroyed
	}
	b.destroyed = true

	var firstErr error
	if b.capture != nil {
		if err := b.capture.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		b.capture = nil
	}
	if b.out != nil {
		if err := b.out.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		b.out = nil
	}
	b.scheduler = nil
	b.subs = nil
	b.turn.Clear()
	if firstErr != nil {
		return fmt.Errorf("audio: destroy: %w", firstErr)
	}
	return nil
}

func (b *Bridge) checkLive() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return ErrDestroyed
	}
	if !b.initialized {
		return ErrNotInitialized
	}
	return nil
}
