package gemini

import (
	"encoding/json"
	"fmt"
)

// ServerEvent is one decoded message from the live session, delivered in
// receive order on [Session.Events]. The concrete types below are the only
// implementations.
type ServerEvent interface {
	serverEvent()
}

// SetupComplete signals that the model accepted the setup message. It is
// always the first event of a healthy session; audio sent before it arrives
// is not guaranteed to be processed.
type SetupComplete struct{}

// AudioChunk carries one chunk of synthesized model speech as base64 PCM16 at
// 24 kHz. The payload stays encoded so relays can forward it without a
// decode/re-encode round trip.
type AudioChunk struct {
	Data string
}

// TextChunk carries one text part of a model turn.
type TextChunk struct {
	Text string
}

// TurnComplete signals that the model finished its current response turn.
type TurnComplete struct{}

// Interrupted signals that the model abandoned its current turn, typically
// because new user speech arrived.
type Interrupted struct{}

// ToolCall carries a function-call request from the model. The payload is
// kept raw; callers that handle tools decode it themselves.
type ToolCall struct {
	Raw json.RawMessage
}

// SessionError carries a protocol-level error reported by the model service.
// The session stays open; fatal transport failures surface as [Closed].
type SessionError struct {
	Code    int
	Status  string
	Message string
}

// Error implements the error interface.
func (e SessionError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("gemini: %s (%d): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("gemini: error %d: %s", e.Code, e.Message)
}

// Closed is the final event of every session. Err is nil for a deliberate
// local close and non-nil when the transport failed. The event channel is
// closed immediately after it is delivered.
type Closed struct {
	Err error
}

func (SetupComplete) serverEvent() {}
func (AudioChunk) serverEvent()    {}
func (TextChunk) serverEvent()     {}
func (TurnComplete) serverEvent()  {}
func (Interrupted) serverEvent()   {}
func (ToolCall) serverEvent()      {}
func (SessionError) serverEvent()  {}
func (Closed) serverEvent()        {}
