package config_test

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/linguaflow/voicebridge/internal/config"
)

func TestLogLevel_IsValid(t *testing.T) {
	valid := []config.LogLevel{config.LogDebug, config.LogInfo, config.LogWarn, config.LogError}
	for _, l := range valid {
		if !l.IsValid() {
			t.Errorf("%q should be valid", l)
		}
	}
	invalid := []config.LogLevel{"", "trace", "DEBUG", "verbose"}
	for _, l := range invalid {
		if l.IsValid() {
			t.Errorf("%q should be invalid", l)
		}
	}
}

func TestLogLevel_Level(t *testing.T) {
	tests := []struct {
		in   config.LogLevel
		want slog.Level
	}{
		{config.LogDebug, slog.LevelDebug},
		{config.LogInfo, slog.LevelInfo},
		{config.LogWarn, slog.LevelWarn},
		{config.LogError, slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tc := range tests {
		if got := tc.in.Level(); got != tc.want {
			t.Errorf("%q.Level() = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestDefault(t *testing.T) {
	cfg := config.Default()

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen addr = %q, want :8080", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log level = %q, want info", cfg.Server.LogLevel)
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		t.Error("no default allowed origins")
	}
	if cfg.Upstream.Model == "" {
		t.Error("default model is empty")
	}
	if cfg.Upstream.Voice != "Aoede" {
		t.Errorf("default voice = %q, want Aoede", cfg.Upstream.Voice)
	}
	if cfg.Upstream.APIKey != "" {
		t.Error("default config must not carry an API key")
	}
	if cfg.Session.SystemInstruction == "" {
		t.Error("default system instruction is empty")
	}
}

func TestValidate_DefaultsWithKey(t *testing.T) {
	cfg := config.Default()
	cfg.Upstream.APIKey = "test-key"

	if err := config.Validate(cfg); err != nil {
		t.Errorf("Validate(defaults + key) = %v, want nil", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"missing api key", func(c *config.Config) { c.Upstream.APIKey = "" }},
		{"missing listen addr", func(c *config.Config) { c.Server.ListenAddr = "" }},
		{"invalid log level", func(c *config.Config) { c.Server.LogLevel = "loud" }},
		{"missing model", func(c *config.Config) { c.Upstream.Model = "" }},
		{"tls without cert", func(c *config.Config) { c.Server.TLS = &config.TLSConfig{KeyFile: "key.pem"} }},
		{"tls without key", func(c *config.Config) { c.Server.TLS = &config.TLSConfig{CertFile: "cert.pem"} }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Upstream.APIKey = "test-key"
			tc.mutate(cfg)
			if err := config.Validate(cfg); err == nil {
				t.Error("Validate succeeded, want error")
			}
		})
	}
}

func TestValidate_UnknownVoiceIsNotFatal(t *testing.T) {
	cfg := config.Default()
	cfg.Upstream.APIKey = "test-key"
	cfg.Upstream.Voice = "Zephyros"

	if err := config.Validate(cfg); err != nil {
		t.Errorf("Validate with unknown voice = %v, want nil (warning only)", err)
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := config.Default()
	cfg.Upstream.Model = ""
	cfg.Server.ListenAddr = ""

	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("Validate succeeded, want error")
	}
	for _, want := range []string{"GEMINI_API_KEY", "upstream.model", "server.listen_addr"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}
