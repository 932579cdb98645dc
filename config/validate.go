package config

import (
	"fmt"
	"math"

	"github.com/metalblueberry/tuner/pkg/tuning"
)

func Validate(cfg *AppConfig) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.ListenAddr == "" {
		return fmt.Errorf("listen_addr must be set")
	}
	if cfg.DBPath == "" {
		return fmt.Errorf("db_path must be set")
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported log_level: %s", cfg.LogLevel)
	}
	if cfg.Session.IdleTTL <= 0 || cfg.Session.ReapInterval <= 0 {
		return fmt.Errorf("session.idle_ttl and session.reap_interval must be positive")
	}
	if cfg.Session.HistorySize <= 0 {
		return fmt.Errorf("session.history_size must be positive")
	}
	if cfg.Session.SamplesPerSecond <= 0 {
		return fmt.Errorf("session.samples_per_second must be positive")
	}
	if db := cfg.Tuning.SilenceThreshold(); math.IsNaN(db) || math.IsInf(db, 0) {
		return fmt.Errorf("tuning.silence_threshold_db must be finite")
	}
	if _, err := tuning.LookupProfile(cfg.Tuning.DefaultInstrument); err != nil {
		return fmt.Errorf("tuning.default_instrument: %w", err)
	}
	if cfg.Audio.Enabled {
		if cfg.Audio.SampleRate <= 0 || cfg.Audio.FramesPerBuffer <= 0 || cfg.Audio.Window <= 0 {
			return fmt.Errorf("audio.sample_rate, audio.frames_per_buffer and audio.window must be positive")
		}
		if cfg.Audio.MinHz <= 0 || cfg.Audio.MaxHz <= cfg.Audio.MinHz {
			return fmt.Errorf("audio.min_hz must be positive and below audio.max_hz")
		}
		if 2*int(cfg.Audio.SampleRate/cfg.Audio.MinHz+0.5) > cfg.Audio.Window {
			return fmt.Errorf("audio.window of %d samples is too short for %g Hz", cfg.Audio.Window, cfg.Audio.MinHz)
		}
	}
	return nil
}
