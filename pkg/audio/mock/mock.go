// Package mock provides in-memory mock implementations of the [audio.Engine],
// [audio.CaptureStream], and [audio.OutputContext] interfaces for use in unit
// tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported
// fields that the test can set to control return values. The output context
// runs on a manual clock advanced with [OutputContext.Advance], so playback
// timing tests are deterministic.
//
// Typical usage:
//
//	stream := &mock.CaptureStream{SampleRateResult: 48000}
//	engine := &mock.Engine{
//	    OutputContextResult: &mock.OutputContext{},
//	    CaptureResult:       stream,
//	}
//	bridge := audio.NewBridge(engine)
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/linguaflow/voicebridge/pkg/audio"
)

// ─── CaptureStream ────────────────────────────────────────────────────────────

// CaptureStream is a mock implementation of [audio.CaptureStream].
// Set the exported Result fields before use; inspect the Call* fields after.
type CaptureStream struct {
	mu sync.Mutex

	// SampleRateResult is returned by [CaptureStream.SampleRate].
	// Defaults to 48000 if left zero.
	SampleRateResult int

	// CloseError is returned by [CaptureStream.Close].
	CloseError error

	// CallCountClose records how many times Close was called.
	CallCountClose int

	// RecordedCallbacks holds the block callbacks registered via OnBlock,
	// in order of registration.
	RecordedCallbacks []func([]float32)
}

// SampleRate implements [audio.CaptureStream]. Returns SampleRateResult, or
// 48000 if it is zero.
func (s *CaptureStream) SampleRate() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SampleRateResult == 0 {
		return 48000
	}
	return s.SampleRateResult
}

// OnBlock implements [audio.CaptureStream]. The callback is appended to
// RecordedCallbacks. To simulate microphone input in tests, call
// [CaptureStream.Push].
func (s *CaptureStream) OnBlock(fn func([]float32)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RecordedCallbacks = append(s.RecordedCallbacks, fn)
}

// Close implements [audio.CaptureStream]. Returns CloseError.
func (s *CaptureStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	return s.CloseError
}

// Push delivers one block of samples to the most recently registered
// callback. Use this in tests to simulate the microphone producing audio.
func (s *CaptureStream) Push(samples []float32) {
	s.mu.Lock()
	var fn func([]float32)
	if n := len(s.RecordedCallbacks); n > 0 {
		fn = s.RecordedCallbacks[n-1]
	}
	s.mu.Unlock()
	if fn != nil {
		fn(samples)
	}
}

// ─── OutputContext ────────────────────────────────────────────────────────────

// ScheduleCall records the arguments of a single [OutputContext.ScheduleAt]
// invocation.
type ScheduleCall struct {
	// Samples is the sample slice passed to ScheduleAt.
	Samples []float32
	// SampleRate is the sampleRate argument passed to ScheduleAt.
	SampleRate int
	// Start is the requested audio-clock start time.
	Start time.Duration
}

// OutputContext is a mock implementation of [audio.OutputContext] driven by a
// manual clock. The clock starts at zero and only moves when the test calls
// [OutputContext.Advance].
type OutputContext struct {
	mu sync.Mutex

	// ScheduleError is returned by [OutputContext.ScheduleAt].
	ScheduleError error

	// CloseError is returned by [OutputContext.Close].
	CloseError error

	// ScheduleCalls records all ScheduleAt invocations.
	ScheduleCalls []ScheduleCall

	// CallCountClose records how many times Close was called.
	CallCountClose int

	now time.Duration
}

// Now implements [audio.OutputContext]. Returns the manual clock position.
func (o *OutputContext) Now() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.now
}

// ScheduleAt implements [audio.OutputContext]. Records the call and returns
// ScheduleError.
func (o *OutputContext) ScheduleAt(samples []float32, sampleRate int, start time.Duration) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ScheduleError != nil {
		return o.ScheduleError
	}
	o.ScheduleCalls = append(o.ScheduleCalls, ScheduleCall{
		Samples:    samples,
		SampleRate: sampleRate,
		Start:      start,
	})
	return nil
}

// Close implements [audio.OutputContext]. Returns CloseError.
func (o *OutputContext) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.CallCountClose++
	return o.CloseError
}

// Advance moves the manual clock forward by d.
func (o *OutputContext) Advance(d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.now += d
}

// ─── Engine ───────────────────────────────────────────────────────────────────

// OpenCaptureCall records the arguments of a single [Engine.OpenCapture]
// invocation.
type OpenCaptureCall struct {
	// Config is the capture configuration passed to OpenCapture.
	Config audio.CaptureConfig
}

// Engine is a mock implementation of [audio.Engine].
type Engine struct {
	mu sync.Mutex

	// OutputContextResult is returned by NewOutputContext.
	OutputContextResult audio.OutputContext

	// OutputContextError is the error returned by NewOutputContext.
	OutputContextError error

	// CaptureResult is returned by OpenCapture.
	CaptureResult audio.CaptureStream

	// CaptureError is the error returned by OpenCapture.
	CaptureError error

	// CallCountNewOutputContext records how many times NewOutputContext was called.
	CallCountNewOutputContext int

	// OpenCaptureCalls records all OpenCapture invocations.
	OpenCaptureCalls []OpenCaptureCall
}

// NewOutputContext implements [audio.Engine]. Records the call and returns
// OutputContextResult / OutputContextError.
func (e *Engine) NewOutputContext(_ context.Context) (audio.OutputContext, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.CallCountNewOutputContext++
	return e.OutputContextResult, e.OutputContextError
}

// OpenCapture implements [audio.Engine]. Records the call and returns
// CaptureResult / CaptureError.
func (e *Engine) OpenCapture(_ context.Context, cfg audio.CaptureConfig) (audio.CaptureStream, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.OpenCaptureCalls = append(e.OpenCaptureCalls, OpenCaptureCall{Config: cfg})
	return e.CaptureResult, e.CaptureError
}

// Interface assertions.
var (
	_ audio.Engine        = (*Engine)(nil)
	_ audio.CaptureStream = (*CaptureStream)(nil)
	_ audio.OutputContext = (*OutputContext)(nil)
)
