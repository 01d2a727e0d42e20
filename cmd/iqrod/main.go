// Command iqrod is the Iqro gesture recognition server: it accepts landmark
// streams over websockets, classifies them into Hijaiyah letters and Quranic
// recitation chunks, and answers with predictions and pronunciation audio.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/harya06/iqro-gesture/internal/audiocache"
	"github.com/harya06/iqro-gesture/internal/config"
	"github.com/harya06/iqro-gesture/internal/health"
	"github.com/harya06/iqro-gesture/internal/observe"
	"github.com/harya06/iqro-gesture/internal/predlog"
	predpg "github.com/harya06/iqro-gesture/internal/predlog/postgres"
	"github.com/harya06/iqro-gesture/internal/resilience"
	"github.com/harya06/iqro-gesture/internal/server"
	"github.com/harya06/iqro-gesture/internal/session"
	"github.com/harya06/iqro-gesture/internal/stream"
	"github.com/harya06/iqro-gesture/pkg/provider/classify"
	"github.com/harya06/iqro-gesture/pkg/provider/classify/heuristic"
	"github.com/harya06/iqro-gesture/pkg/provider/classify/modelserver"
	"github.com/harya06/iqro-gesture/pkg/provider/tts"
	"github.com/harya06/iqro-gesture/pkg/provider/tts/gtts"
	oaitts "github.com/harya06/iqro-gesture/pkg/provider/tts/openai"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Warn("config file not found, running with defaults", "path", *configPath)
			cfg = config.Default()
		} else {
			fmt.Fprintf(os.Stderr, "iqrod: %v\n", err)
			return 1
		}
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("iqrod starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "iqro-gesture",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, cfg)

	var checkers []health.Checker

	// ── Classifier ────────────────────────────────────────────────────────────
	rawClassifier, err := reg.CreateClassifier(cfg.Classifier)
	if err != nil {
		slog.Error("failed to build classifier", "name", cfg.Classifier.Name, "err", err)
		return 1
	}
	if prober, ok := rawClassifier.(interface {
		Healthy(ctx context.Context) error
	}); ok {
		checkers = append(checkers, health.ProviderChecker("classifier", prober.Healthy))
	}
	classifier := classify.FailClosed(rawClassifier, cfg.Gesture.Labels)

	// ── Speech synthesis and audio cache ──────────────────────────────────────
	var cache *audiocache.Cache
	if cfg.TTS.Enabled {
		synth, err := buildSynthesiser(reg, cfg)
		if err != nil {
			slog.Error("failed to build tts provider", "name", cfg.TTS.Provider.Name, "err", err)
			return 1
		}

		store, err := buildCacheStore(cfg)
		if err != nil {
			slog.Error("failed to build audio cache store", "driver", cfg.AudioCache.Driver, "err", err)
			return 1
		}

		cache = audiocache.New(store, synth, cfg.Gesture.PronunciationText, cfg.TTS.Language)
		if cfg.TTS.Pregenerate {
			go func() {
				warmed := cache.PregenerateAll(ctx, cfg.Gesture.Labels)
				slog.Info("audio cache warmed", "labels", warmed, "total", len(cfg.Gesture.Labels))
			}()
		}
	} else {
		slog.Info("speech synthesis disabled")
	}

	// ── Prediction history ────────────────────────────────────────────────────
	var appender predlog.Appender = predlog.NopAppender{}
	var history server.HistoryStore
	if cfg.Store.PostgresDSN != "" {
		store, err := predpg.NewStore(ctx, cfg.Store.PostgresDSN, cfg.Gesture.FeatureWidth)
		if err != nil {
			slog.Error("failed to open prediction store", "err", err)
			return 1
		}
		defer store.Close()
		appender = store
		history = store
		checkers = append(checkers, health.DatabaseChecker(store))
		slog.Info("prediction store connected")
	} else {
		slog.Info("prediction store disabled, history will not be persisted")
	}
	recorder := predlog.NewAsyncAppender(appender, cfg.Store.QueueSize)
	defer recorder.Close()

	// ── Pipeline, sessions, server ────────────────────────────────────────────
	pipelineOpts := []stream.Option{
		stream.WithRecorder(recorder),
		stream.WithMetrics(metrics),
		stream.WithFrameHistory(cfg.Store.FrameHistory),
	}
	if cache != nil {
		pipelineOpts = append(pipelineOpts, stream.WithAudioCache(cache))
	}
	pipeline, err := stream.NewPipeline(cfg.Gesture, classifier, pipelineOpts...)
	if err != nil {
		slog.Error("failed to build pipeline", "err", err)
		return 1
	}

	registry := session.NewRegistry(cfg.Gesture.SequenceLength, cfg.Gesture.FeatureWidth)

	srv := server.New(cfg.Server.ListenAddr, server.Deps{
		Gestures: cfg.Gesture,
		Pipeline: pipeline,
		Registry: registry,
		Recorder: recorder,
		Audio:    cache,
		History:  history,
		Health:   health.New(checkers...),
		Metrics:  metrics,
	})

	printStartupSummary(cfg)
	slog.Info("server ready, press Ctrl+C to shut down")

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("server error", "err", err)
		return 1
	}

	slog.Info("goodbye")
	return 0
}

// registerBuiltinProviders wires the classifier and tts factories that ship
// with iqrod into reg.
func registerBuiltinProviders(reg *config.Registry, cfg *config.Config) {
	// ── Classifiers ───────────────────────────────────────────────────────────

	reg.RegisterClassifier("heuristic", func(_ config.ProviderEntry) (classify.Provider, error) {
		return heuristic.New(cfg.Gesture.Labels)
	})

	reg.RegisterClassifier("modelserver", func(entry config.ProviderEntry) (classify.Provider, error) {
		var opts []modelserver.Option
		if entry.Timeout > 0 {
			opts = append(opts, modelserver.WithTimeout(entry.Timeout))
		}
		if entry.Model != "" {
			opts = append(opts, modelserver.WithModel(entry.Model))
		}
		return modelserver.New(entry.BaseURL, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("gtts", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []gtts.Option
		if entry.BaseURL != "" {
			opts = append(opts, gtts.WithBaseURL(entry.BaseURL))
		}
		if entry.Timeout > 0 {
			opts = append(opts, gtts.WithTimeout(entry.Timeout))
		}
		if slow, ok := entry.Options["slow"].(bool); ok {
			opts = append(opts, gtts.WithSlow(slow))
		}
		return gtts.New(opts...), nil
	})

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []oaitts.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaitts.WithBaseURL(entry.BaseURL))
		}
		if entry.Timeout > 0 {
			opts = append(opts, oaitts.WithTimeout(entry.Timeout))
		}
		if voice := optString(entry.Options, "voice"); voice != "" {
			opts = append(opts, oaitts.WithVoice(voice))
		}
		return oaitts.New(entry.APIKey, entry.Model, opts...)
	})
}

// buildSynthesiser creates the configured tts provider, optionally wrapped in
// a circuit-breaking fallback chain when the provider entry names a fallback.
func buildSynthesiser(reg *config.Registry, cfg *config.Config) (tts.Provider, error) {
	primary, err := reg.CreateTTS(cfg.TTS.Provider)
	if err != nil {
		return nil, err
	}

	// Even a single backend goes behind the circuit breaker so a failing
	// synthesiser stops being probed on every cache miss.
	chain := resilience.NewTTSFallback(primary, cfg.TTS.Provider.Name, resilience.FallbackConfig{})

	fallbackName := optString(cfg.TTS.Provider.Options, "fallback")
	if fallbackName != "" && fallbackName != cfg.TTS.Provider.Name {
		fallback, err := reg.CreateTTS(config.ProviderEntry{Name: fallbackName})
		if err != nil {
			return nil, fmt.Errorf("build fallback tts %q: %w", fallbackName, err)
		}
		chain.AddFallback(fallbackName, fallback)
		slog.Info("tts fallback chain enabled",
			"primary", cfg.TTS.Provider.Name, "fallback", fallbackName)
	}
	return chain, nil
}

// buildCacheStore creates the audio cache backend selected by the config.
func buildCacheStore(cfg *config.Config) (audiocache.Store, error) {
	switch cfg.AudioCache.Driver {
	case config.CacheDisk:
		return audiocache.NewDiskStore(cfg.AudioCache.Dir)
	case config.CacheRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.AudioCache.RedisAddr})
		return audiocache.NewRedisStore(client, cfg.AudioCache.RedisTTL), nil
	default:
		return audiocache.NewMemoryStore(), nil
	}
}

// printStartupSummary writes a short human-readable configuration overview.
func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔════════════════════════════════════════╗")
	fmt.Println("║        iqrod — startup summary         ║")
	fmt.Println("╠════════════════════════════════════════╣")
	fmt.Printf("║  Classifier      : %-19s ║\n", cfg.Classifier.Name)
	if cfg.TTS.Enabled {
		fmt.Printf("║  TTS             : %-19s ║\n", cfg.TTS.Provider.Name)
		fmt.Printf("║  Audio cache     : %-19s ║\n", cfg.AudioCache.Driver)
	} else {
		fmt.Printf("║  TTS             : %-19s ║\n", "(disabled)")
	}
	if cfg.Store.PostgresDSN != "" {
		fmt.Printf("║  History store   : %-19s ║\n", "postgres")
	} else {
		fmt.Printf("║  History store   : %-19s ║\n", "(disabled)")
	}
	fmt.Printf("║  Labels          : %-19d ║\n", len(cfg.Gesture.Labels))
	fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	fmt.Println("╚════════════════════════════════════════╝")
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
