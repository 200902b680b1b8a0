package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	// Sync thresholds
	MaxOffsetSeconds     float64 `env:"MAX_OFFSET_SECONDS" envDefault:"30"`
	CorrelationThreshold float64 `env:"CORRELATION_THRESHOLD" envDefault:"0.3"`
	MinApplyConfidence   float64 `env:"MIN_APPLY_CONFIDENCE" envDefault:"0.5"`
	MinCloudConfidence   float64 `env:"MIN_CLOUD_CONFIDENCE" envDefault:"0.4"`
	PreferredMethod      string  `env:"PREFERRED_METHOD" envDefault:"vad"`
	EnvelopeHopMs        int     `env:"ENVELOPE_HOP_MS" envDefault:"50"`

	// Heuristic dialogue detector
	EnergyThreshold    float64 `env:"ENERGY_THRESHOLD" envDefault:"0.015"`
	CentroidLowHz      float64 `env:"CENTROID_LOW_HZ" envDefault:"200"`
	CentroidHighHz     float64 `env:"CENTROID_HIGH_HZ" envDefault:"3500"`
	EntropyThreshold   float64 `env:"ENTROPY_THRESHOLD" envDefault:"0.45"`
	MinDialogueMs      int     `env:"MIN_DIALOGUE_MS" envDefault:"200"`
	DialogueMergeGapMs int     `env:"DIALOGUE_MERGE_GAP_MS" envDefault:"300"`

	// Classifier VAD
	VADSampleRate    int     `env:"VAD_SAMPLE_RATE" envDefault:"16000"`
	VADChunkSize     int     `env:"VAD_CHUNK_SIZE" envDefault:"512"`
	VADSensitivity   float64 `env:"VAD_SENSITIVITY" envDefault:"0.5"`
	VADPaddingChunks int     `env:"VAD_PADDING_CHUNKS" envDefault:"2"`
	VADMinSpeechMs   int     `env:"VAD_MIN_SPEECH_MS" envDefault:"250"`
	VADMergeGapMs    int     `env:"VAD_MERGE_GAP_MS" envDefault:"300"`
	VADMaxConfidence float64 `env:"VAD_MAX_CONFIDENCE" envDefault:"0.95"`
	VADModelPath     string  `env:"VAD_MODEL_PATH"`

	// Cloud transcription
	WhisperURL        string        `env:"WHISPER_URL" envDefault:"https://api.openai.com/v1/audio/transcriptions"`
	WhisperAPIKey     string        `env:"WHISPER_API_KEY"`
	WhisperModel      string        `env:"WHISPER_MODEL" envDefault:"whisper-1"`
	WhisperLang       string        `env:"WHISPER_LANGUAGE" envDefault:"en"`
	WhisperTemp       float64       `env:"WHISPER_TEMPERATURE" envDefault:"0"`
	WhisperTimeout    time.Duration `env:"WHISPER_TIMEOUT" envDefault:"60s"`
	WhisperRetries    int           `env:"WHISPER_RETRIES" envDefault:"3"`
	WhisperRetryDelay time.Duration `env:"WHISPER_RETRY_DELAY" envDefault:"2s"`
	WindowSeconds     float64       `env:"WINDOW_SECONDS" envDefault:"60"`

	// Resampling
	ResampleQuality string `env:"RESAMPLE_QUALITY" envDefault:"linear"`

	// Batch runner
	Workers   int `env:"WORKERS" envDefault:"2"`
	QueueSize int `env:"QUEUE_SIZE" envDefault:"64"`

	// HTTP service mode
	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8686"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"300s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	AuthToken    string        `env:"AUTH_TOKEN"`

	// Optional sync history store
	DatabaseURL string `env:"DATABASE_URL"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile  string
	LogLevel string
	HTTPAddr string
	Method   string
	Workers  int
}

// Load reads configuration from .env file, environment variables, and CLI
// overrides. Priority: CLI flags > environment variables > .env file >
// struct defaults. The result is validated; detection never starts on a
// bad config.
func Load(overrides Overrides) (*Config, error) {
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.Method != "" {
		cfg.PreferredMethod = overrides.Method
	}
	if overrides.Workers > 0 {
		cfg.Workers = overrides.Workers
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that would misbehave at detection time.
func (c *Config) Validate() error {
	if c.VADChunkSize < 256 || c.VADChunkSize > 2048 || c.VADChunkSize&(c.VADChunkSize-1) != 0 {
		return fmt.Errorf("VAD_CHUNK_SIZE %d: must be a power of two in [256,2048]", c.VADChunkSize)
	}
	if c.VADSensitivity < 0 || c.VADSensitivity > 1 {
		return fmt.Errorf("VAD_SENSITIVITY %v: must be in [0,1]", c.VADSensitivity)
	}
	if c.MaxOffsetSeconds <= 0 {
		return fmt.Errorf("MAX_OFFSET_SECONDS %v: must be positive", c.MaxOffsetSeconds)
	}
	if c.CorrelationThreshold < 0 || c.CorrelationThreshold > 1 {
		return fmt.Errorf("CORRELATION_THRESHOLD %v: must be in [0,1]", c.CorrelationThreshold)
	}
	if c.MinApplyConfidence < 0 || c.MinApplyConfidence > 1 {
		return fmt.Errorf("MIN_APPLY_CONFIDENCE %v: must be in [0,1]", c.MinApplyConfidence)
	}
	if c.WhisperTimeout <= 0 {
		return fmt.Errorf("WHISPER_TIMEOUT %v: must be positive", c.WhisperTimeout)
	}
	if c.WhisperRetries < 1 {
		return fmt.Errorf("WHISPER_RETRIES %d: must be at least 1", c.WhisperRetries)
	}
	if c.EnvelopeHopMs <= 0 {
		return fmt.Errorf("ENVELOPE_HOP_MS %d: must be positive", c.EnvelopeHopMs)
	}
	switch c.PreferredMethod {
	case "vad", "cloud":
	default:
		return fmt.Errorf("PREFERRED_METHOD %q: must be vad or cloud", c.PreferredMethod)
	}
	switch c.ResampleQuality {
	case "linear", "sinc":
	default:
		return fmt.Errorf("RESAMPLE_QUALITY %q: must be linear or sinc", c.ResampleQuality)
	}
	return nil
}
