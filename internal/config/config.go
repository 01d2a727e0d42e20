// Package config provides the configuration schema, loader, and provider
// registry for the Iqro gesture recognition server.
package config

import "time"

// LogLevel controls log verbosity for the server.
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

// CacheDriver selects the backend used for the pronunciation audio cache.
type CacheDriver string

const (
	// CacheMemory keeps audio in an in-process map. Lost on restart.
	CacheMemory CacheDriver = "memory"

	// CacheDisk stores one audio file per label under audio_cache.dir.
	CacheDisk CacheDriver = "disk"

	// CacheRedis shares the cache between replicas via a Redis server.
	CacheRedis CacheDriver = "redis"
)

// IsValid reports whether d is a recognised cache driver.
func (d CacheDriver) IsValid() bool {
	switch d {
	case CacheMemory, CacheDisk, CacheRedis:
		return true
	}
	return false
}

// Config is the root configuration structure for the server.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Gesture    GestureConfig    `yaml:"gesture"`
	Classifier ProviderEntry    `yaml:"classifier"`
	TTS        TTSConfig        `yaml:"tts"`
	AudioCache AudioCacheConfig `yaml:"audio_cache"`
	Store      StoreConfig      `yaml:"store"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8000").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// GestureConfig holds the classification vocabulary and windowing parameters.
// All fields are fixed at process start; the stream pipeline treats them as
// immutable.
type GestureConfig struct {
	// SequenceLength is the number of frames in one classification window.
	SequenceLength int `yaml:"sequence_length"`

	// FeatureWidth is the flattened coordinate count per frame
	// (21 hand landmarks x 3 coordinates by default).
	FeatureWidth int `yaml:"feature_width"`

	// MinFrames is the minimum number of frames a landmarks message must
	// carry to be classified at all. Independent of SequenceLength.
	MinFrames int `yaml:"min_frames"`

	// ConfidenceThreshold suppresses predictions below this confidence.
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`

	// Labels is the ordered classification vocabulary. The classifier's
	// class index is an index into this slice.
	Labels []string `yaml:"labels"`

	// ArabicLabels maps a label to its Arabic display form. Labels without
	// an entry are displayed as-is.
	ArabicLabels map[string]string `yaml:"arabic_labels"`

	// Pronunciations maps a label to the text handed to the speech
	// synthesiser. Labels without an entry are pronounced as-is.
	Pronunciations map[string]string `yaml:"pronunciations"`
}

// DisplayForm returns the Arabic display form for label, falling back to the
// label itself.
func (g GestureConfig) DisplayForm(label string) string {
	if s, ok := g.ArabicLabels[label]; ok {
		return s
	}
	return label
}

// PronunciationText returns the text to synthesise for label, falling back to
// the label itself.
func (g GestureConfig) PronunciationText(label string) string {
	if s, ok := g.Pronunciations[label]; ok {
		return s
	}
	return label
}

// ProviderEntry declares one named provider implementation and its settings.
type ProviderEntry struct {
	// Name selects a provider registered in the [Registry]
	// (e.g., "heuristic" or "modelserver" for classifiers).
	Name string `yaml:"name"`

	// BaseURL is the server address for remote providers.
	BaseURL string `yaml:"base_url"`

	// APIKey authenticates against hosted providers.
	APIKey string `yaml:"api_key"`

	// Model is an optional provider-specific model identifier.
	Model string `yaml:"model"`

	// Timeout is the per-request timeout for remote providers.
	Timeout time.Duration `yaml:"timeout"`

	// Options carries provider-specific extra settings.
	Options map[string]any `yaml:"options"`
}

// TTSConfig selects and configures the speech synthesis provider.
type TTSConfig struct {
	// Provider declares which synthesis backend to use ("gtts" or "openai").
	Provider ProviderEntry `yaml:"provider"`

	// Language is the BCP-47 language code for pronunciation audio.
	Language string `yaml:"language"`

	// Enabled toggles audio generation entirely. When false, prediction
	// responses are sent without audio fields.
	Enabled bool `yaml:"enabled"`

	// Pregenerate warms the audio cache for the whole vocabulary at startup.
	Pregenerate bool `yaml:"pregenerate"`
}

// AudioCacheConfig configures the pronunciation audio cache backend.
type AudioCacheConfig struct {
	// Driver selects the cache backend.
	Driver CacheDriver `yaml:"driver"`

	// Dir is the cache directory for the disk driver.
	Dir string `yaml:"dir"`

	// RedisAddr is the host:port of the Redis server for the redis driver.
	RedisAddr string `yaml:"redis_addr"`

	// RedisTTL is the expiry applied to cached audio in Redis. Zero means
	// no expiry.
	RedisTTL time.Duration `yaml:"redis_ttl"`
}

// StoreConfig configures the prediction log store.
type StoreConfig struct {
	// PostgresDSN is the connection string for the prediction log database.
	// When empty, predictions are not persisted.
	PostgresDSN string `yaml:"postgres_dsn"`

	// FrameHistory is how many trailing frames of the triggering window are
	// kept alongside each logged prediction, for debugging.
	FrameHistory int `yaml:"frame_history"`

	// QueueSize bounds the async append queue. Appends beyond this are
	// dropped (and counted) rather than blocking the stream.
	QueueSize int `yaml:"queue_size"`
}

// Default values applied by applyDefaults when the config file leaves a
// field unset.
const (
	DefaultListenAddr          = ":8000"
	DefaultSequenceLength      = 30
	DefaultFeatureWidth        = 63 // 21 landmarks x 3 coordinates
	DefaultMinFrames           = 10
	DefaultConfidenceThreshold = 0.5
	DefaultTTSLanguage         = "id"
	DefaultCacheDir            = "audio_cache"
	DefaultFrameHistory        = 5
	DefaultQueueSize           = 256
)

// DefaultLabels is the combined Hijaiyah + Al-Fatihah chunk vocabulary used
// when the config file does not declare its own label set.
var DefaultLabels = []string{
	// Hijaiyah
	"Alif", "Ba", "Ta", "Tsa", "Jim",
	// Al-Fatihah chunks
	"bis", "mil", "lah", "hir", "rah", "maa", "nir", "ra", "hiim",
	"al", "ham", "du", "lil", "rab", "bil", "aa", "la", "miin",
	"ar", "li", "ki", "yaw", "mi", "dii", "ni",
	"iy", "yaa", "ka", "na", "bu", "wa", "nas", "ta", "iin",
	"ih", "di", "naa", "as", "shi", "raa", "tal", "mus", "qiim",
	"dhi", "an", "am", "a", "lai", "him", "ghai", "ril", "magh",
	"duu", "bi", "lad", "dhaal", "liin",
}

// DefaultArabicLabels maps the Hijaiyah labels to their Arabic script forms.
var DefaultArabicLabels = map[string]string{
	"Alif": "أَلِف",
	"Ba":   "بَاء",
	"Ta":   "تَاء",
	"Tsa":  "ثَاء",
	"Jim":  "جِيم",
}

// DefaultPronunciations overrides synthesis text where the raw label reads
// poorly in Indonesian TTS.
var DefaultPronunciations = map[string]string{
	"hiim": "him",
	"miin": "min",
	"qiim": "qim",
}
