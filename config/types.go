package config

import (
	"time"

	"github.com/metalblueberry/tuner/pkg/tuning"
)

type AppConfig struct {
	ListenAddr string        `yaml:"listen_addr" env:"TUNER_LISTEN_ADDR" env-default:":8080"`
	DBPath     string        `yaml:"db_path" env:"TUNER_DB_PATH" env-default:"data/tuner.db"`
	LogLevel   string        `yaml:"log_level" env:"TUNER_LOG_LEVEL" env-default:"info"`
	Session    SessionConfig `yaml:"session"`
	Tuning     TuningConfig  `yaml:"tuning"`
	Audio      AudioConfig   `yaml:"audio"`
	Metrics    MetricsConfig `yaml:"metrics"`
}

type SessionConfig struct {
	IdleTTL          time.Duration `yaml:"idle_ttl" env:"TUNER_SESSION_IDLE_TTL" env-default:"30m"`
	ReapInterval     time.Duration `yaml:"reap_interval" env:"TUNER_SESSION_REAP_INTERVAL" env-default:"1m"`
	HistorySize      int           `yaml:"history_size" env:"TUNER_SESSION_HISTORY_SIZE" env-default:"64"`
	SamplesPerSecond float64       `yaml:"samples_per_second" env:"TUNER_SESSION_SAMPLES_PER_SECOND" env-default:"20"`
}

type TuningConfig struct {
	/*
	 * Nil until set, so 0 dB is a valid threshold. The environment override
	 * TUNER_SILENCE_THRESHOLD_DB is applied by Load.
	 */
	SilenceThresholdDB *float64 `yaml:"silence_threshold_db"`
	DefaultInstrument  string   `yaml:"default_instrument" env:"TUNER_DEFAULT_INSTRUMENT" env-default:"Guitar"`
}

func (c TuningConfig) SilenceThreshold() float64 {
	if c.SilenceThresholdDB == nil {
		return tuning.DefaultSilenceThresholdDB
	}
	return *c.SilenceThresholdDB
}

type AudioConfig struct {
	Enabled         bool    `yaml:"enabled" env:"TUNER_AUDIO_ENABLED" env-default:"false"`
	Device          string  `yaml:"device" env:"TUNER_AUDIO_DEVICE"`
	SampleRate      float64 `yaml:"sample_rate" env:"TUNER_AUDIO_SAMPLE_RATE" env-default:"16000"`
	FramesPerBuffer int     `yaml:"frames_per_buffer" env:"TUNER_AUDIO_FRAMES_PER_BUFFER" env-default:"1024"`
	Window          int     `yaml:"window" env:"TUNER_AUDIO_WINDOW" env-default:"4096"`
	MinHz           float64 `yaml:"min_hz" env:"TUNER_AUDIO_MIN_HZ" env-default:"60"`
	MaxHz           float64 `yaml:"max_hz" env:"TUNER_AUDIO_MAX_HZ" env-default:"1000"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled" env:"TUNER_METRICS_ENABLED" env-default:"true"`
}
