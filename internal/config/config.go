// Package config provides the configuration schema and loader for the
// Voicebridge relay server.
package config

import (
	"log/slog"

	"github.com/linguaflow/voicebridge/pkg/gemini"
)

// LogLevel controls log verbosity for the Voicebridge server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level converts l to the corresponding [slog.Level]. Unrecognised values map
// to [slog.LevelInfo].
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// KnownVoices lists the prebuilt voice names accepted by the upstream speech
// model. Used by [Validate] to warn about likely typos.
var KnownVoices = []string{"Aoede", "Charon", "Fenrir", "Kore", "Puck"}

// Config is the root configuration structure for Voicebridge.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Session  SessionConfig  `yaml:"session"`
}

// ServerConfig holds network and logging settings for the relay server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// AllowedOrigins lists browser origins accepted during the websocket
	// handshake (e.g., "localhost:5173"). Patterns are matched against the
	// request's Origin host.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// UpstreamConfig selects the speech model sessions are dialed against.
type UpstreamConfig struct {
	// APIKey authenticates against the model API. Never read from YAML; set
	// it through the GEMINI_API_KEY environment variable (a .env file works).
	APIKey string `yaml:"-"`

	// Model is the generative speech model identifier.
	Model string `yaml:"model"`

	// Voice is the prebuilt voice name used for model speech output.
	Voice string `yaml:"voice"`

	// BaseURL overrides the model API websocket endpoint. Leave empty to use
	// the provider's built-in default. Useful for proxies and tests.
	BaseURL string `yaml:"base_url"`
}

// SessionConfig holds per-session defaults. Clients can override these over
// the wire with a config message.
type SessionConfig struct {
	// SystemInstruction is the default system instruction for new sessions.
	SystemInstruction string `yaml:"system_instruction"`
}

// Default returns a config with all defaults applied. Loading a YAML file
// overrides individual fields; the API key always comes from the environment.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:     ":8080",
			LogLevel:       LogInfo,
			AllowedOrigins: []string{"localhost:5173", "localhost:3000"},
		},
		Upstream: UpstreamConfig{
			Model: gemini.DefaultModel,
			Voice: "Aoede",
		},
		Session: SessionConfig{
			SystemInstruction: "You are a friendly, helpful voice assistant. Keep your answers concise and conversational.",
		},
	}
}
