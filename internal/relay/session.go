// Package relay implements the browser-facing half of Voicebridge: one relay
// session per downstream websocket connection, bridging the browser's JSON
// protocol to a live upstream speech-model session.
//
// A session owns exactly two sockets. The downstream socket lives as long as
// the browser stays connected; the upstream socket is replaced atomically
// whenever the client sends a config message. Media never flows upstream
// before the model acknowledges the setup handshake.
package relay

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/linguaflow/voicebridge/internal/observe"
	"github.com/linguaflow/voicebridge/pkg/gemini"
)

// writeTimeout bounds a single downstream frame write.
const writeTimeout = 10 * time.Second

// State is the lifecycle phase of a relay session.
type State int

const (
	// StateConnecting means no upstream session is live; one is being (or
	// waiting to be) established.
	StateConnecting State = iota

	// StateAwaitingSetup means the upstream socket is open and the setup
	// message was sent, but the model has not acknowledged it yet. Inbound
	// media is dropped, not buffered.
	StateAwaitingSetup

	// StateActive means the setup handshake completed and media flows both
	// ways.
	StateActive

	// StateClosed is terminal: the downstream connection ended.
	StateClosed
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAwaitingSetup:
		return "awaiting_setup"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Upstream is the model-side half of a session. *gemini.Session satisfies it.
type Upstream interface {
	// SendAudio forwards one base64 PCM16 chunk at 16 kHz.
	SendAudio(data string) error

	// SendText submits text as a complete user turn.
	SendText(text string) error

	// CompleteTurn marks the user's turn complete without new content.
	CompleteTurn() error

	// Events returns the ordered upstream event stream, ending with
	// [gemini.Closed].
	Events() <-chan gemini.ServerEvent

	// Close tears the upstream session down. Idempotent.
	Close() error
}

// UpstreamDialer opens upstream sessions. The relay dials once per downstream
// connection and again on every config change.
type UpstreamDialer interface {
	DialUpstream(ctx context.Context, systemInstruction string) (Upstream, error)
}

// DialerFunc adapts a function to the [UpstreamDialer] interface.
type DialerFunc func(ctx context.Context, systemInstruction string) (Upstream, error)

// DialUpstream implements [UpstreamDialer].
func (f DialerFunc) DialUpstream(ctx context.Context, systemInstruction string) (Upstream, error) {
	return f(ctx, systemInstruction)
}

// SessionParams holds the dependencies of a [Session].
type SessionParams struct {
	// ID uniquely identifies the session in logs and the registry.
	ID string

	// Conn is the accepted downstream websocket.
	Conn *websocket.Conn

	// Dialer opens upstream sessions.
	Dialer UpstreamDialer

	// SystemInstruction is the initial system instruction; config messages
	// replace it.
	SystemInstruction string

	// Logger receives session-scoped log records.
	Logger *slog.Logger

	// Metrics receives session counters and timings.
	Metrics *observe.Metrics
}

// Session relays between one downstream browser connection and one upstream
// model session, enforcing the setup handshake gate.
type Session struct {
	id      string
	conn    *websocket.Conn
	dialer  UpstreamDialer
	log     *slog.Logger
	metrics *observe.Metrics

	mu        sync.Mutex
	state     State
	upstream  Upstream
	dialedAt  time.Time
	sysPrompt string

	writeMu sync.Mutex
}

// NewSession creates a session over an accepted downstream connection. Call
// [Session.Run] to start relaying.
func NewSession(p SessionParams) *Session {
	return &Session{
		id:        p.ID,
		conn:      p.Conn,
		dialer:    p.Dialer,
		log:       p.Logger.With(slog.String("session_id", p.ID)),
		metrics:   p.Metrics,
		state:     StateConnecting,
		sysPrompt: p.SystemInstruction,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Run connects upstream and relays messages until the downstream connection
// ends or ctx is cancelled. It always leaves the session in [StateClosed]
// with the upstream socket released.
func (s *Session) Run(ctx context.Context) error {
	defer s.shutdown()

	// An upstream dial failure is not fatal for the session: the client is
	// told and may retry with a config message.
	if err := s.connectUpstream(ctx, s.systemInstruction()); err != nil {
		s.log.Warn("initial upstream connect failed", "err", err)
	}

	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil || websocket.CloseStatus(err) != -1 {
				s.log.Info("downstream disconnected")
				return nil
			}
			s.log.Warn("downstream read failed", "err", err)
			return err
		}

		msg, err := ParseClientMessage(data)
		if err != nil {
			// One bad frame never ends the session.
			s.log.Warn("discarding malformed client message", "err", err)
			s.metrics.MalformedMessages.Add(ctx, 1)
			continue
		}
		s.handleClient(ctx, msg)
	}
}

func (s *Session) systemInstruction() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sysPrompt
}

// connectUpstream dials a new upstream session and starts its event pump.
// The caller must have released any previous upstream first.
func (s *Session) connectUpstream(ctx context.Context, instruction string) error {
	s.mu.Lock()
	s.state = StateConnecting
	s.sysPrompt = instruction
	s.mu.Unlock()

	up, err := s.dialer.DialUpstream(ctx, instruction)
	if err != nil {
		s.metrics.UpstreamErrors.Add(ctx, 1)
		s.send(ctx, ErrorOutput{Message: "upstream connection failed"})
		s.send(ctx, ControlOutput{Signal: SignalDisconnected})
		return err
	}

	s.mu.Lock()
	s.upstream = up
	s.state = StateAwaitingSetup
	s.dialedAt = time.Now()
	s.mu.Unlock()

	s.log.Info("upstream connected, awaiting setup")
	go s.pump(ctx, up)
	return nil
}

// activeUpstream returns the upstream if the session is in [StateActive].
func (s *Session) activeUpstream() (Upstream, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive || s.upstream == nil {
		return nil, false
	}
	return s.upstream, true
}

// isCurrent reports whether up is still the session's live upstream. Events
// from a replaced upstream are ignored.
func (s *Session) isCurrent(up Upstream) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upstream == up
}

// handleClient applies one downstream message. Runs on the read loop, so
// translations are applied strictly in arrival order.
func (s *Session) handleClient(ctx context.Context, msg ClientMessage) {
	switch m := msg.(type) {
	case AudioInput:
		up, ok := s.activeUpstream()
		if !ok {
			s.dropPreSetup(ctx, "audio")
			return
		}
		if err := up.SendAudio(m.Data); err != nil {
			s.upstreamSendFailed(ctx, "audio", err)
			return
		}
		s.metrics.MediaForwarded.Add(ctx, 1, observe.WithKind("audio"))

	case TextInput:
		up, ok := s.activeUpstream()
		if !ok {
			s.dropPreSetup(ctx, "text")
			return
		}
		if err := up.SendText(m.Text); err != nil {
			s.upstreamSendFailed(ctx, "text", err)
			return
		}
		s.metrics.MediaForwarded.Add(ctx, 1, observe.WithKind("text"))

	case ControlInput:
		switch m.Action {
		case ControlEndOfSpeech:
			up, ok := s.activeUpstream()
			if !ok {
				s.dropPreSetup(ctx, "end_of_speech")
				return
			}
			if err := up.CompleteTurn(); err != nil {
				s.upstreamSendFailed(ctx, "end_of_speech", err)
			}
		case ControlInterrupt:
			// Reserved verb: acknowledged in logs only.
			s.log.Debug("interrupt requested")
		}

	case ConfigChange:
		s.log.Info("config change, replacing upstream")
		s.replaceUpstream(ctx, m.SystemInstruction)
	}
}

// replaceUpstream atomically swaps the upstream session: the old socket is
// detached and closed before the new dial starts, so two upstream sockets
// never coexist for one session.
func (s *Session) replaceUpstream(ctx context.Context, instruction string) {
	s.mu.Lock()
	old := s.upstream
	s.upstream = nil
	s.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			s.log.Warn("closing replaced upstream", "err", err)
		}
	}
	if err := s.connectUpstream(ctx, instruction); err != nil {
		s.log.Warn("reconnect after config change failed", "err", err)
	}
}

func (s *Session) dropPreSetup(ctx context.Context, kind string) {
	s.log.Debug("dropping pre-setup message", "kind", kind, "state", s.State().String())
	s.metrics.PreSetupDropped.Add(ctx, 1, observe.WithKind(kind))
}

func (s *Session) upstreamSendFailed(ctx context.Context, kind string, err error) {
	s.log.Warn("upstream send failed", "kind", kind, "err", err)
	s.metrics.UpstreamErrors.Add(ctx, 1)
}

// pump translates upstream events to downstream messages until the upstream
// session ends or is replaced.
func (s *Session) pump(ctx context.Context, up Upstream) {
	for ev := range up.Events() {
		if !s.isCurrent(up) {
			// Replaced or shut down; drain silently.
			if _, done := ev.(gemini.Closed); done {
				return
			}
			continue
		}

		switch ev := ev.(type) {
		case gemini.SetupComplete:
			s.completeSetup(ctx)

		case gemini.AudioChunk:
			s.send(ctx, AudioOutput{
				Data:      ev.Data,
				MIMEType:  "audio/pcm;rate=24000",
				Timestamp: time.Now(),
			})

		case gemini.TextChunk:
			s.send(ctx, TextOutput{Text: ev.Text, Timestamp: time.Now()})

		case gemini.TurnComplete:
			s.send(ctx, ControlOutput{Signal: SignalTurnComplete})

		case gemini.Interrupted:
			s.log.Debug("model turn interrupted")

		case gemini.ToolCall:
			// Opaque passthrough; the relay does not interpret tool calls.
			s.send(ctx, ToolCallOutput{Data: ev.Raw})

		case gemini.SessionError:
			s.log.Warn("upstream reported error", "err", ev.Error())
			s.metrics.UpstreamErrors.Add(ctx, 1)
			s.send(ctx, ErrorOutput{Message: ev.Error()})

		case gemini.Closed:
			s.upstreamClosed(ctx, up, ev.Err)
			return
		}
	}
}

func (s *Session) completeSetup(ctx context.Context) {
	s.mu.Lock()
	if s.state != StateAwaitingSetup {
		s.mu.Unlock()
		return
	}
	s.state = StateActive
	elapsed := time.Since(s.dialedAt)
	s.mu.Unlock()

	s.log.Info("upstream setup complete", "elapsed", elapsed)
	s.metrics.SetupDuration.Record(ctx, elapsed.Seconds())
	s.send(ctx, ControlOutput{Signal: SignalConnected})
}

// upstreamClosed handles the end of the live upstream session. The session
// does not reconnect on its own; the downstream stays open so the client can
// send a config message to retry.
func (s *Session) upstreamClosed(ctx context.Context, up Upstream, err error) {
	s.mu.Lock()
	if s.upstream != up {
		s.mu.Unlock()
		return
	}
	s.upstream = nil
	if s.state != StateClosed {
		s.state = StateConnecting
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Warn("upstream session failed", "err", err)
		s.metrics.UpstreamErrors.Add(ctx, 1)
		s.send(ctx, ErrorOutput{Message: "upstream session failed"})
	} else {
		s.log.Info("upstream session ended")
	}
	s.send(ctx, ControlOutput{Signal: SignalDisconnected})
}

// send writes one frame downstream. Writes are serialised; failures are
// logged and otherwise ignored because the read loop will observe the broken
// socket and end the session.
func (s *Session) send(ctx context.Context, msg ServerMessage) {
	data, err := EncodeServerMessage(msg)
	if err != nil {
		s.log.Error("encode server message", "err", err)
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		if !errors.Is(err, context.Canceled) {
			s.log.Debug("downstream write failed", "err", err)
		}
	}
}

// shutdown releases the upstream socket and marks the session closed.
func (s *Session) shutdown() {
	s.mu.Lock()
	old := s.upstream
	s.upstream = nil
	s.state = StateClosed
	s.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	s.log.Info("session closed")
}
