// Package gemini is a client for Google's Gemini Live API.
//
// It speaks the BidiGenerateContent protocol over a bidirectional WebSocket:
// a setup message configures the session, microphone audio flows upstream as
// base64 PCM chunks, and the model's events arrive on a single ordered channel
// ([Session.Events]).
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const (
	// DefaultModel is the native-audio live model used when a session does
	// not name one.
	DefaultModel = "gemini-2.5-flash-native-audio-preview-12-2025"

	defaultBaseURL = "wss://generativelanguage.googleapis.com/ws"

	// inputMIMEType is the only audio format the live endpoint accepts.
	inputMIMEType = "audio/pcm;rate=16000"

	keepaliveInterval = 20 * time.Second
	keepaliveTimeout  = 5 * time.Second
)

// ── Options ───────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithModel sets the default model used for sessions.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithBaseURL overrides the base WebSocket URL. Primarily used in tests to
// point at a local mock server.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// ── Client ────────────────────────────────────────────────────────────────────

// Client dials live sessions against the Gemini API.
type Client struct {
	apiKey  string
	model   string
	baseURL string
}

// New creates a Client with the given API key and options.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
		model:   DefaultModel,
		baseURL: defaultBaseURL,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SessionConfig describes one live session. Zero values fall back to the
// client defaults; an empty Voice lets the model pick.
type SessionConfig struct {
	// Model overrides the client's default model.
	Model string

	// Voice is the prebuilt voice name, e.g. "Puck".
	Voice string

	// Instructions is the system instruction for the session.
	Instructions string
}

// Dial opens a websocket to the live endpoint and sends the setup message.
// The returned session delivers events as soon as the model responds; wait
// for [SetupComplete] before streaming audio.
func (c *Client) Dial(ctx context.Context, cfg SessionConfig) (*Session, error) {
	wsURL := fmt.Sprintf(
		"%s/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent?key=%s",
		c.baseURL, c.apiKey,
	)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Content-Type": []string{"application/json"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: dial: %w", err)
	}

	sessCtx, sessCancel := context.WithCancel(context.Background())
	sess := &Session{
		conn:   conn,
		events: make(chan ServerEvent, 64),
		done:   make(chan struct{}),
		ctx:    sessCtx,
		cancel: sessCancel,
	}

	model := cfg.Model
	if model == "" {
		model = c.model
	}
	if err := sess.sendSetup(model, cfg); err != nil {
		sessCancel()
		conn.Close(websocket.StatusInternalError, "setup failed")
		return nil, fmt.Errorf("gemini: setup: %w", err)
	}

	go sess.receiveLoop()
	go sess.keepaliveLoop()

	return sess, nil
}

// ── Session ───────────────────────────────────────────────────────────────────

// Session is one live model conversation. Events arrive in receive order on
// [Session.Events]; the channel is closed after the final [Closed] event.
// All methods are safe for concurrent use.
type Session struct {
	conn   *websocket.Conn
	events chan ServerEvent

	mu     sync.Mutex
	closed bool

	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

// sendSetup sends the initial BidiGenerateContent setup message.
func (s *Session) sendSetup(model string, cfg SessionConfig) error {
	msg := setupMessage{
		Setup: setupConfig{
			Model: fmt.Sprintf("models/%s", model),
			GenerationConfig: generationConfig{
				ResponseModalities: []string{"audio"},
			},
		},
	}

	if cfg.Instructions != "" {
		msg.Setup.SystemInstruction = &systemInstruction{
			Parts: []part{{Text: cfg.Instructions}},
		}
	}

	if cfg.Voice != "" {
		msg.Setup.GenerationConfig.SpeechConfig = &speechConfig{
			VoiceConfig: voiceConfig{
				PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		}
	}

	return s.writeJSON(msg)
}

// writeJSON marshals v and writes it as a text WebSocket message.
func (s *Session) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("gemini: marshal: %w", err)
	}
	return s.conn.Write(s.ctx, websocket.MessageText, data)
}

// SendAudio forwards one base64-encoded chunk of 16 kHz PCM16 audio. The
// payload is passed through untouched.
func (s *Session) SendAudio(data string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	msg := realtimeInputMessage{
		RealtimeInput: realtimeInput{
			MediaChunks: []mediaChunk{
				{MIMEType: inputMIMEType, Data: data},
			},
		},
	}
	return s.writeJSON(msg)
}

// SendText submits text as a complete user turn, prompting a model response.
func (s *Session) SendText(text string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	msg := clientContentMessage{
		ClientContent: clientContent{
			Turns: []contentTurn{
				{Role: "user", Parts: []part{{Text: text}}},
			},
			TurnComplete: true,
		},
	}
	return s.writeJSON(msg)
}

// CompleteTurn marks the current user turn complete without adding content,
// prompting the model to respond to the audio streamed so far.
func (s *Session) CompleteTurn() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	msg := clientContentMessage{
		ClientContent: clientContent{TurnComplete: true},
	}
	return s.writeJSON(msg)
}

// Events returns the ordered event stream. Every session ends with a [Closed]
// event followed by channel close; consumers must drain the channel until it
// is closed.
func (s *Session) Events() <-chan ServerEvent { return s.events }

// Close terminates the session and releases all resources. Idempotent. The
// event stream ends with Closed{Err: nil}.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()    // unblocks receiveLoop and keepaliveLoop
	close(s.done) // signals keepaliveLoop via done channel
	s.conn.Close(websocket.StatusNormalClosure, "session closed")
	return nil
}

func (s *Session) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("gemini: session closed")
	}
	return nil
}

// receiveLoop reads messages from the WebSocket and dispatches them. It owns
// the events channel: it emits the final Closed event and closes the channel
// when it exits.
func (s *Session) receiveLoop() {
	var loopErr error
	defer func() {
		// Closed must be delivered even when the buffer is full, or the
		// consumer's range ends without ever learning why. Consumers drain
		// until channel close, so this send cannot stick.
		s.events <- Closed{Err: loopErr}
		close(s.events)
	}()

	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			// A cancelled session context means a deliberate local close.
			if s.ctx.Err() == nil {
				loopErr = err
			}
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue // skip malformed frames
		}
		s.dispatch(&msg)
	}
}

func (s *Session) dispatch(msg *serverMessage) {
	if msg.Error != nil {
		s.emit(SessionError{
			Code:    msg.Error.Code,
			Status:  msg.Error.Status,
			Message: msg.Error.Message,
		})
	}
	if msg.SetupComplete != nil {
		s.emit(SetupComplete{})
	}
	if msg.ServerContent != nil {
		sc := msg.ServerContent
		if sc.ModelTurn != nil {
			for _, p := range sc.ModelTurn.Parts {
				if p.InlineData != nil && p.InlineData.Data != "" {
					s.emit(AudioChunk{Data: p.InlineData.Data})
				}
				if p.Text != "" {
					s.emit(TextChunk{Text: p.Text})
				}
			}
		}
		if sc.Interrupted {
			s.emit(Interrupted{})
		}
		if sc.TurnComplete {
			s.emit(TurnComplete{})
		}
	}
	if msg.ToolCall != nil {
		s.emit(ToolCall{Raw: *msg.ToolCall})
	}
}

func (s *Session) emit(ev ServerEvent) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}

// keepaliveLoop sends WebSocket pings so idle sessions are not dropped by
// intermediaries.
func (s *Session) keepaliveLoop() {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(s.ctx, keepaliveTimeout)
			_ = s.conn.Ping(pingCtx)
			cancel()
		}
	}
}
