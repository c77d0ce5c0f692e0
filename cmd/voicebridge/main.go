// Command voicebridge runs the Voicebridge relay server: it accepts browser
// websocket connections and bridges them to live generative speech-model
// sessions.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/linguaflow/voicebridge/internal/config"
	"github.com/linguaflow/voicebridge/internal/health"
	"github.com/linguaflow/voicebridge/internal/observe"
	"github.com/linguaflow/voicebridge/internal/relay"
	"github.com/linguaflow/voicebridge/internal/resilience"
	"github.com/linguaflow/voicebridge/pkg/gemini"
)

const shutdownTimeout = 15 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "", "path to the YAML configuration file (optional)")
	flag.Parse()

	// A .env file is the usual place for GEMINI_API_KEY during development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "voicebridge: load .env: %v\n", err)
	}

	// ── Load configuration ─────────────────────────────────────────────────────
	logLevel := new(slog.LevelVar)
	var (
		watcher    *config.Watcher
		currentCfg func() *config.Config
	)
	if *configPath != "" {
		w, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
			d := config.Diff(old, new)
			if d.LogLevelChanged {
				logLevel.Set(d.NewLogLevel.Level())
				slog.Info("log level changed", "level", d.NewLogLevel)
			}
			if d.SystemInstructionChanged {
				slog.Info("default system instruction changed, applies to new sessions")
			}
			if d.UpstreamChanged {
				slog.Info("upstream settings changed, applies to new upstream sessions")
			}
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "voicebridge: %v\n", err)
			return 1
		}
		defer w.Stop()
		watcher = w
		currentCfg = w.Current
	} else {
		cfg, err := config.FromEnv()
		if err != nil {
			fmt.Fprintf(os.Stderr, "voicebridge: %v\n", err)
			return 1
		}
		currentCfg = func() *config.Config { return cfg }
	}
	cfg := currentCfg()

	// ── Logger ─────────────────────────────────────────────────────────────────
	logLevel.Set(cfg.Server.LogLevel.Level())
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	slog.Info("voicebridge starting",
		"listen_addr", cfg.Server.ListenAddr,
		"model", cfg.Upstream.Model,
		"voice", cfg.Upstream.Voice,
		"log_level", cfg.Server.LogLevel,
		"hot_reload", watcher != nil,
	)

	// ── Signal context ─────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ──────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Upstream dialer ────────────────────────────────────────────────────────
	// The dialer reads the current config on every dial, so upstream changes
	// from a config reload apply to the next session without a restart.
	var dialer relay.UpstreamDialer = relay.DialerFunc(func(ctx context.Context, systemInstruction string) (relay.Upstream, error) {
		up := currentCfg().Upstream
		opts := []gemini.Option{gemini.WithModel(up.Model)}
		if up.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(up.BaseURL))
		}
		sess, err := gemini.New(up.APIKey, opts...).Dial(ctx, gemini.SessionConfig{
			Voice:        up.Voice,
			Instructions: systemInstruction,
		})
		if err != nil {
			return nil, err
		}
		return sess, nil
	})
	dialer = relay.NewGuardedDialer(dialer, resilience.NewBreaker("upstream-dial"))

	relaySrv := relay.NewServer(relay.ServerParams{
		Dialer:            dialer,
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		SystemInstruction: cfg.Session.SystemInstruction,
		Logger:            logger,
		Metrics:           metrics,
	})

	// ── HTTP routes ────────────────────────────────────────────────────────────
	checks := health.New(
		health.Probe{Name: "config", Run: func(_ context.Context) error {
			return config.Validate(currentCfg())
		}},
	)

	mux := http.NewServeMux()
	mux.Handle("/ws", relaySrv)
	mux.Handle("GET /metrics", promhttp.Handler())
	checks.Register(mux)

	// The signal context is the base context so live websocket sessions end
	// when shutdown starts; http.Server.Shutdown does not wait for hijacked
	// connections.
	httpSrv := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: observe.Middleware(metrics)(mux),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	// ── Serve ──────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("server ready", "addr", cfg.Server.ListenAddr)
		var err error
		if tls := cfg.Server.TLS; tls != nil {
			err = httpSrv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = httpSrv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, draining sessions",
			"active_sessions", relaySrv.Registry().Len(),
		)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("server error", "err", err)
		return 1
	}

	slog.Info("goodbye")
	return 0
}
