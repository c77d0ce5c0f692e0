package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Environment variables recognised by [ApplyEnv]. They take precedence over
// values from the YAML file.
const (
	EnvAPIKey     = "GEMINI_API_KEY"
	EnvListenAddr = "VOICEBRIDGE_ADDR"
	EnvModel      = "VOICEBRIDGE_MODEL"
	EnvVoice      = "VOICEBRIDGE_VOICE"
	EnvLogLevel   = "VOICEBRIDGE_LOG_LEVEL"
)

// Load reads the YAML configuration file at path, applies environment
// overrides, and returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Default], applies
// environment overrides, and validates the result. Useful in tests where
// configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv returns the default config with environment overrides applied and
// validated. Used when no config file is given.
func FromEnv() (*Config, error) {
	cfg := Default()
	ApplyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg fields from the process environment. The API key is
// only ever sourced here, never from YAML.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv(EnvAPIKey); v != "" {
		cfg.Upstream.APIKey = v
	}
	if v := os.Getenv(EnvListenAddr); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv(EnvModel); v != "" {
		cfg.Upstream.Model = v
	}
	if v := os.Getenv(EnvVoice); v != "" {
		cfg.Upstream.Voice = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Server.LogLevel = LogLevel(v)
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	}
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil {
		if tls.CertFile == "" {
			errs = append(errs, errors.New("server.tls.cert_file is required when tls is set"))
		}
		if tls.KeyFile == "" {
			errs = append(errs, errors.New("server.tls.key_file is required when tls is set"))
		}
	}

	if cfg.Upstream.APIKey == "" {
		errs = append(errs, fmt.Errorf("upstream API key is required; set the %s environment variable", EnvAPIKey))
	}
	if cfg.Upstream.Model == "" {
		errs = append(errs, errors.New("upstream.model is required"))
	}

	// Unknown voices are a warning, not an error: the provider adds voices
	// faster than this list is updated.
	if v := cfg.Upstream.Voice; v != "" && !slices.Contains(KnownVoices, v) {
		slog.Warn("unknown voice name, may be a typo",
			"voice", v,
			"known", KnownVoices,
		)
	}

	return errors.Join(errs...)
}
