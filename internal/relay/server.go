package relay

import (
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/linguaflow/voicebridge/internal/observe"
)

// ServerParams holds the dependencies of a [Server].
type ServerParams struct {
	// Dialer opens upstream model sessions.
	Dialer UpstreamDialer

	// AllowedOrigins restricts browser origins for the websocket handshake,
	// e.g. "localhost:5173". Empty means same-origin only.
	AllowedOrigins []string

	// SystemInstruction is the default system instruction for new sessions.
	SystemInstruction string

	// Logger receives server and session log records.
	Logger *slog.Logger

	// Metrics receives server counters.
	Metrics *observe.Metrics
}

// Server accepts downstream websocket connections and runs one [Session] per
// connection. It implements [http.Handler] for the websocket endpoint.
type Server struct {
	dialer      UpstreamDialer
	origins     []string
	instruction string
	log         *slog.Logger
	metrics     *observe.Metrics
	registry    *Registry
}

// NewServer creates a relay server.
func NewServer(p ServerParams) *Server {
	return &Server{
		dialer:      p.Dialer,
		origins:     p.AllowedOrigins,
		instruction: p.SystemInstruction,
		log:         p.Logger,
		metrics:     p.Metrics,
		registry:    NewRegistry(),
	}
}

// Registry returns the live session registry.
func (s *Server) Registry() *Registry {
	return s.registry
}

// ServeHTTP upgrades the request to a websocket and relays until the client
// disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.origins,
	})
	if err != nil {
		s.log.Warn("websocket accept failed", "err", err, "remote", r.RemoteAddr)
		return
	}

	id := uuid.NewString()
	sess := NewSession(SessionParams{
		ID:                id,
		Conn:              conn,
		Dialer:            s.dialer,
		SystemInstruction: s.instruction,
		Logger:            s.log,
		Metrics:           s.metrics,
	})

	s.registry.Add(sess)
	s.metrics.ActiveSessions.Add(r.Context(), 1)
	s.log.Info("session connected", "session_id", id, "remote", r.RemoteAddr)

	defer func() {
		s.registry.Remove(id)
		s.metrics.ActiveSessions.Add(r.Context(), -1)
		conn.Close(websocket.StatusNormalClosure, "session ended")
	}()

	if err := sess.Run(r.Context()); err != nil {
		s.log.Warn("session ended with error", "session_id", id, "err", err)
	}
}
