package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to reject unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"classifier": {"heuristic", "modelserver"},
	"tts":        {"gtts", "openai"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
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

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a fully defaulted configuration without reading a file.
// The result uses the heuristic classifier and the in-memory audio cache, so
// it runs without any external services.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults fills unset fields with their documented defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Gesture.SequenceLength == 0 {
		cfg.Gesture.SequenceLength = DefaultSequenceLength
	}
	if cfg.Gesture.FeatureWidth == 0 {
		cfg.Gesture.FeatureWidth = DefaultFeatureWidth
	}
	if cfg.Gesture.MinFrames == 0 {
		cfg.Gesture.MinFrames = DefaultMinFrames
	}
	if cfg.Gesture.ConfidenceThreshold == 0 {
		cfg.Gesture.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if len(cfg.Gesture.Labels) == 0 {
		cfg.Gesture.Labels = DefaultLabels
	}
	if cfg.Gesture.ArabicLabels == nil {
		cfg.Gesture.ArabicLabels = DefaultArabicLabels
	}
	if cfg.Gesture.Pronunciations == nil {
		cfg.Gesture.Pronunciations = DefaultPronunciations
	}
	if cfg.Classifier.Name == "" {
		cfg.Classifier.Name = "heuristic"
	}
	if cfg.TTS.Provider.Name == "" {
		cfg.TTS.Provider.Name = "gtts"
	}
	if cfg.TTS.Language == "" {
		cfg.TTS.Language = DefaultTTSLanguage
	}
	if cfg.AudioCache.Driver == "" {
		cfg.AudioCache.Driver = CacheMemory
	}
	if cfg.AudioCache.Dir == "" {
		cfg.AudioCache.Dir = DefaultCacheDir
	}
	if cfg.Store.FrameHistory == 0 {
		cfg.Store.FrameHistory = DefaultFrameHistory
	}
	if cfg.Store.QueueSize == 0 {
		cfg.Store.QueueSize = DefaultQueueSize
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Gesture.SequenceLength < 1 {
		errs = append(errs, fmt.Errorf("gesture.sequence_length must be positive, got %d", cfg.Gesture.SequenceLength))
	}
	if cfg.Gesture.FeatureWidth < 1 {
		errs = append(errs, fmt.Errorf("gesture.feature_width must be positive, got %d", cfg.Gesture.FeatureWidth))
	}
	if cfg.Gesture.MinFrames < 1 {
		errs = append(errs, fmt.Errorf("gesture.min_frames must be positive, got %d", cfg.Gesture.MinFrames))
	}
	if cfg.Gesture.ConfidenceThreshold < 0 || cfg.Gesture.ConfidenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("gesture.confidence_threshold must be in [0,1], got %g", cfg.Gesture.ConfidenceThreshold))
	}
	if len(cfg.Gesture.Labels) == 0 {
		errs = append(errs, errors.New("gesture.labels must not be empty"))
	}
	seen := make(map[string]bool, len(cfg.Gesture.Labels))
	for _, l := range cfg.Gesture.Labels {
		if l == "" {
			errs = append(errs, errors.New("gesture.labels must not contain empty labels"))
			continue
		}
		if seen[l] {
			errs = append(errs, fmt.Errorf("gesture.labels contains duplicate label %q", l))
		}
		seen[l] = true
	}

	if err := validateProviderName("classifier", cfg.Classifier.Name); err != nil {
		errs = append(errs, err)
	}
	if err := validateProviderName("tts", cfg.TTS.Provider.Name); err != nil {
		errs = append(errs, err)
	}
	if cfg.Classifier.Name == "modelserver" && cfg.Classifier.BaseURL == "" {
		errs = append(errs, errors.New("classifier.base_url is required for the modelserver classifier"))
	}
	if cfg.TTS.Enabled && cfg.TTS.Provider.Name == "openai" && cfg.TTS.Provider.APIKey == "" {
		errs = append(errs, errors.New("tts.provider.api_key is required for the openai synthesiser"))
	}

	if !cfg.AudioCache.Driver.IsValid() {
		errs = append(errs, fmt.Errorf("audio_cache.driver %q is invalid; valid values: memory, disk, redis", cfg.AudioCache.Driver))
	}
	if cfg.AudioCache.Driver == CacheRedis && cfg.AudioCache.RedisAddr == "" {
		errs = append(errs, errors.New("audio_cache.redis_addr is required for the redis cache driver"))
	}

	if cfg.Store.QueueSize < 1 {
		errs = append(errs, fmt.Errorf("store.queue_size must be positive, got %d", cfg.Store.QueueSize))
	}
	if cfg.Store.FrameHistory < 0 {
		errs = append(errs, fmt.Errorf("store.frame_history must not be negative, got %d", cfg.Store.FrameHistory))
	}

	return errors.Join(errs...)
}

// validateProviderName checks a provider name against ValidProviderNames.
func validateProviderName(kind, name string) error {
	if name == "" {
		return nil
	}
	for _, valid := range ValidProviderNames[kind] {
		if name == valid {
			return nil
		}
	}
	return fmt.Errorf("%s provider %q is not recognised; valid values: %v", kind, name, ValidProviderNames[kind])
}
