package relay

import (
	"encoding/json"
	"fmt"
	"time"
)

// Downstream wire protocol: JSON text frames exchanged with the browser
// client. Every frame is an envelope with a "type" discriminator; the decoded
// forms are closed unions so a new message kind fails to compile at the
// dispatch site instead of falling through a default branch.

// ControlAction is a client-issued control verb.
type ControlAction string

const (
	// ControlEndOfSpeech marks the user's turn complete.
	ControlEndOfSpeech ControlAction = "end_of_speech"

	// ControlInterrupt requests that the model stop talking. Reserved; the
	// relay logs it and takes no upstream action.
	ControlInterrupt ControlAction = "interrupt"
)

// ControlSignal is a relay-issued control notification.
type ControlSignal string

const (
	// SignalConnected reports that the upstream session finished its setup
	// handshake and media is flowing.
	SignalConnected ControlSignal = "connected"

	// SignalDisconnected reports that the upstream session ended.
	SignalDisconnected ControlSignal = "disconnected"

	// SignalTurnComplete reports that the model finished its response turn.
	SignalTurnComplete ControlSignal = "turn_complete"
)

// ClientMessage is one decoded message from the browser. The concrete types
// are [AudioInput], [TextInput], [ControlInput], and [ConfigChange].
type ClientMessage interface {
	clientMessage()
}

// AudioInput carries one base64-encoded chunk of 16 kHz PCM16 microphone
// audio.
type AudioInput struct {
	Data string
}

// TextInput carries a typed user message, submitted as a complete turn.
type TextInput struct {
	Text string
}

// ControlInput carries a control verb.
type ControlInput struct {
	Action ControlAction
}

// ConfigChange carries a new system instruction and triggers an upstream
// reconnect.
type ConfigChange struct {
	SystemInstruction string
}

func (AudioInput) clientMessage()   {}
func (TextInput) clientMessage()    {}
func (ControlInput) clientMessage() {}
func (ConfigChange) clientMessage() {}

// ServerMessage is one message from the relay to the browser. The concrete
// types are [ControlOutput], [TextOutput], [AudioOutput], [ToolCallOutput],
// and [ErrorOutput].
type ServerMessage interface {
	serverMessage()
}

// ControlOutput carries a control signal.
type ControlOutput struct {
	Signal ControlSignal
}

// TextOutput carries one text part of a model turn.
type TextOutput struct {
	Text      string
	Timestamp time.Time
}

// AudioOutput carries one base64-encoded chunk of 24 kHz PCM16 model audio.
type AudioOutput struct {
	Data      string
	MIMEType  string
	Timestamp time.Time
}

// ToolCallOutput passes an upstream tool-call payload through opaquely.
type ToolCallOutput struct {
	Data json.RawMessage
}

// ErrorOutput reports a relay or upstream error to the client.
type ErrorOutput struct {
	Message string
}

func (ControlOutput) serverMessage()  {}
func (TextOutput) serverMessage()     {}
func (AudioOutput) serverMessage()    {}
func (ToolCallOutput) serverMessage() {}
func (ErrorOutput) serverMessage()    {}

// envelope is the raw wire shape shared by both directions. Data is kept raw
// because its type depends on the discriminator: a base64 string for audio, a
// verb for control, arbitrary JSON for tool calls.
type envelope struct {
	Type              string          `json:"type"`
	Data              json.RawMessage `json:"data,omitempty"`
	Text              string          `json:"text,omitempty"`
	SystemInstruction string          `json:"systemInstruction,omitempty"`
	MIMEType          string          `json:"mimeType,omitempty"`
	Timestamp         int64           `json:"timestamp,omitempty"`
	Error             string          `json:"error,omitempty"`
}

func (e *envelope) dataString() (string, error) {
	var s string
	if err := json.Unmarshal(e.Data, &s); err != nil {
		return "", fmt.Errorf("relay: %q message data must be a string: %w", e.Type, err)
	}
	return s, nil
}

// ParseClientMessage decodes one inbound frame. Unknown or malformed frames
// return an error; the caller logs and discards them without ending the
// session.
func ParseClientMessage(data []byte) (ClientMessage, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("relay: malformed client message: %w", err)
	}
	switch env.Type {
	case "audio":
		payload, err := env.dataString()
		if err != nil {
			return nil, err
		}
		if payload == "" {
			return nil, fmt.Errorf("relay: audio message without data")
		}
		return AudioInput{Data: payload}, nil
	case "text":
		return TextInput{Text: env.Text}, nil
	case "control":
		verb, err := env.dataString()
		if err != nil {
			return nil, err
		}
		switch action := ControlAction(verb); action {
		case ControlEndOfSpeech, ControlInterrupt:
			return ControlInput{Action: action}, nil
		default:
			return nil, fmt.Errorf("relay: unknown control action %q", verb)
		}
	case "config":
		return ConfigChange{SystemInstruction: env.SystemInstruction}, nil
	default:
		return nil, fmt.Errorf("relay: unknown client message type %q", env.Type)
	}
}

// EncodeServerMessage encodes one outbound frame.
func EncodeServerMessage(msg ServerMessage) ([]byte, error) {
	var env envelope
	switch m := msg.(type) {
	case ControlOutput:
		env.Type = "control"
		env.Data = mustQuote(string(m.Signal))
	case TextOutput:
		env.Type = "text"
		env.Text = m.Text
		env.Timestamp = m.Timestamp.UnixMilli()
	case AudioOutput:
		env.Type = "audio"
		env.Data = mustQuote(m.Data)
		env.MIMEType = m.MIMEType
		env.Timestamp = m.Timestamp.UnixMilli()
	case ToolCallOutput:
		env.Type = "tool_call"
		env.Data = m.Data
	case ErrorOutput:
		env.Type = "error"
		env.Error = m.Message
	default:
		return nil, fmt.Errorf("relay: unknown server message type %T", msg)
	}
	return json.Marshal(env)
}

// ParseServerMessage decodes one relay-to-client frame. Used by the client
// library and in tests.
func ParseServerMessage(data []byte) (ServerMessage, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("relay: malformed server message: %w", err)
	}
	switch env.Type {
	case "control":
		verb, err := env.dataString()
		if err != nil {
			return nil, err
		}
		return ControlOutput{Signal: ControlSignal(verb)}, nil
	case "text":
		return TextOutput{Text: env.Text, Timestamp: time.UnixMilli(env.Timestamp)}, nil
	case "audio":
		payload, err := env.dataString()
		if err != nil {
			return nil, err
		}
		return AudioOutput{
			Data:      payload,
			MIMEType:  env.MIMEType,
			Timestamp: time.UnixMilli(env.Timestamp),
		}, nil
	case "tool_call":
		return ToolCallOutput{Data: env.Data}, nil
	case "error":
		return ErrorOutput{Message: env.Error}, nil
	default:
		return nil, fmt.Errorf("relay: unknown server message type %q", env.Type)
	}
}

// EncodeClientMessage encodes one client-to-relay frame. Used by the client
// library and in tests.
func EncodeClientMessage(msg ClientMessage) ([]byte, error) {
	var env envelope
	switch m := msg.(type) {
	case AudioInput:
		env.Type = "audio"
		env.Data = mustQuote(m.Data)
	case TextInput:
		env.Type = "text"
		env.Text = m.Text
	case ControlInput:
		env.Type = "control"
		env.Data = mustQuote(string(m.Action))
	case ConfigChange:
		env.Type = "config"
		env.SystemInstruction = m.SystemInstruction
	default:
		return nil, fmt.Errorf("relay: unknown client message type %T", msg)
	}
	return json.Marshal(env)
}

func mustQuote(s string) json.RawMessage {
	data, err := json.Marshal(s)
	if err != nil {
		panic("relay: marshal string: " + err.Error())
	}
	return data
}
