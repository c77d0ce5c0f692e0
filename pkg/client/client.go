// Package client implements the application-facing consumer of a Voicebridge
// relay. It connects the local audio pipeline from [audio.Bridge] to a relay
// session over the relay's JSON websocket protocol: captured microphone
// frames flow up, model speech is scheduled for gapless playback, and
// conversation notifications are surfaced through callbacks.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/linguaflow/voicebridge/internal/relay"
	"github.com/linguaflow/voicebridge/pkg/audio"
)

// writeTimeout bounds a single outbound frame write.
const writeTimeout = 10 * time.Second

// Callbacks notify the application of conversation events. All fields are
// optional; callbacks run on the receive loop and must not block.
type Callbacks struct {
	// OnReady fires when the relay reports the model session is live.
	OnReady func()

	// OnUpstreamDown fires when the relay reports the model session ended.
	// The connection to the relay itself stays open.
	OnUpstreamDown func()

	// OnText receives each text part of a model turn.
	OnText func(text string, at time.Time)

	// OnTurnComplete fires when the model finishes a response turn.
	OnTurnComplete func()

	// OnToolCall receives opaque tool-call payloads from the model.
	OnToolCall func(data json.RawMessage)

	// OnError receives relay and upstream error messages.
	OnError func(msg string)
}

// Option configures a [Client].
type Option func(*Client)

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithCallbacks sets the conversation callbacks.
func WithCallbacks(cb Callbacks) Option {
	return func(c *Client) { c.cb = cb }
}

// WithCaptureConfig sets the microphone capture configuration used by
// [Client.StartCapture].
func WithCaptureConfig(cfg audio.CaptureConfig) Option {
	return func(c *Client) { c.captureCfg = cfg }
}

// Client is one live connection to a Voicebridge relay, owning the local
// audio pipeline for its lifetime.
type Client struct {
	conn       *websocket.Conn
	bridge     *audio.Bridge
	log        *slog.Logger
	cb         Callbacks
	captureCfg audio.CaptureConfig

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu         sync.Mutex
	closed     bool
	unsubFrame audio.Unsubscribe

	writeMu sync.Mutex
}

// Dial connects to the relay at url and initializes the audio pipeline on
// engine. The returned client is receiving relay messages immediately; call
// [Client.StartCapture] to begin streaming the microphone.
//
// Dial must be driven by a user action so the platform grants audio output.
func Dial(ctx context.Context, url string, engine audio.Engine, opts ...Option) (*Client, error) {
	c := &Client{
		log:  slog.Default(),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("client: dial relay: %w", err)
	}

	bridge := audio.NewBridge(engine)
	if err := bridge.Initialize(ctx); err != nil {
		conn.Close(websocket.StatusNormalClosure, "init failed")
		return nil, err
	}

	c.conn = conn
	c.bridge = bridge
	c.ctx, c.cancel = context.WithCancel(context.WithoutCancel(ctx))

	go c.receiveLoop()
	return c, nil
}

// Bridge exposes the underlying audio pipeline for turn extraction and
// playback state queries.
func (c *Client) Bridge() *audio.Bridge {
	return c.bridge
}

// StartCapture opens the microphone and streams encoded frames to the relay
// until [Client.EndTurn] or [Client.Close].
func (c *Client) StartCapture(ctx context.Context) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	c.mu.Lock()
	if c.unsubFrame == nil {
		c.unsubFrame = c.bridge.OnFrame(func(frame audio.EncodedFrame) {
			if err := c.send(relay.AudioInput{Data: frame.Data}); err != nil {
				c.log.Debug("dropping capture frame", "err", err)
			}
		})
	}
	c.mu.Unlock()
	return c.bridge.StartCapture(ctx, c.captureCfg)
}

// EndTurn closes the microphone and tells the relay the user's turn is over.
func (c *Client) EndTurn() error {
	c.dropFrameSub()
	if err := c.bridge.StopCapture(); err != nil {
		return err
	}
	return c.send(relay.ControlInput{Action: relay.ControlEndOfSpeech})
}

// dropFrameSub detaches the client's frame handler from the bridge.
func (c *Client) dropFrameSub() {
	c.mu.Lock()
	unsub := c.unsubFrame
	c.unsubFrame = nil
	c.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// SendText submits typed text as a complete user turn.
func (c *Client) SendText(text string) error {
	return c.send(relay.TextInput{Text: text})
}

// Configure asks the relay to restart the model session with a new system
// instruction. [Callbacks.OnReady] fires again once the new session is live.
func (c *Client) Configure(systemInstruction string) error {
	return c.send(relay.ConfigChange{SystemInstruction: systemInstruction})
}

// Close tears down the relay connection and the audio pipeline. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.dropFrameSub()
	c.cancel()
	c.conn.Close(websocket.StatusNormalClosure, "client closed")
	err := c.bridge.Destroy()
	<-c.done
	return err
}

func (c *Client) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("client: connection closed")
	}
	return nil
}

func (c *Client) send(msg relay.ClientMessage) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	data, err := relay.EncodeClientMessage(msg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
	defer cancel()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("client: write: %w", err)
	}
	return nil
}

// receiveLoop translates relay messages into audio playback and callbacks
// until the connection ends.
func (c *Client) receiveLoop() {
	defer close(c.done)

	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			if c.ctx.Err() == nil {
				c.log.Warn("relay connection lost", "err", err)
				if c.cb.OnError != nil {
					c.cb.OnError("relay connection lost")
				}
			}
			return
		}

		msg, err := relay.ParseServerMessage(data)
		if err != nil {
			c.log.Warn("discarding malformed relay message", "err", err)
			continue
		}
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg relay.ServerMessage) {
	switch m := msg.(type) {
	case relay.ControlOutput:
		switch m.Signal {
		case relay.SignalConnected:
			if c.cb.OnReady != nil {
				c.cb.OnReady()
			}
		case relay.SignalDisconnected:
			if c.cb.OnUpstreamDown != nil {
				c.cb.OnUpstreamDown()
			}
		case relay.SignalTurnComplete:
			if err := c.bridge.ClearTurn(); err != nil {
				c.log.Debug("clearing turn buffer", "err", err)
			}
			if c.cb.OnTurnComplete != nil {
				c.cb.OnTurnComplete()
			}
		default:
			c.log.Debug("ignoring unknown control signal", "signal", string(m.Signal))
		}

	case relay.AudioOutput:
		frame := audio.EncodedFrame{Data: m.Data, SampleRate: audio.PlaybackRate}
		if err := c.bridge.PlayChunk(frame); err != nil {
			c.log.Warn("dropping playback frame", "err", err)
		}

	case relay.TextOutput:
		if c.cb.OnText != nil {
			c.cb.OnText(m.Text, m.Timestamp)
		}

	case relay.ToolCallOutput:
		if c.cb.OnToolCall != nil {
			c.cb.OnToolCall(m.Data)
		}

	case relay.ErrorOutput:
		c.log.Warn("relay reported error", "msg", m.Message)
		if c.cb.OnError != nil {
			c.cb.OnError(m.Message)
		}
	}
}
