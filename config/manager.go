package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/metalblueberry/tuner/pkg/tuning"
)

const (
	defaultConfigPath = "config/tuner.yaml"
	envPrefix         = "TUNER_"
)

/*
 * Reads an optional .env file, then the yaml config, then the
 * environment. Later sources win.
 */
func Load() (*AppConfig, error) {
	_ = godotenv.Load()
	cfg := &AppConfig{}
	cfgPath := resolveConfigPath()
	if st, err := os.Stat(cfgPath); err == nil && !st.IsDir() {
		if err := cleanenv.ReadConfig(cfgPath, cfg); err != nil {
			return nil, err
		}
	}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, err
	}
	if err := applyEnvAliases(cfg); err != nil {
		return nil, err
	}
	normalizeConfig(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func resolveConfigPath() string {
	if v := getEnv(envPrefix+"CONFIG", "APP_CONFIG"); v != "" {
		return v
	}
	return defaultConfigPath
}

func applyEnvAliases(cfg *AppConfig) error {
	if v := getEnv("PORT"); v != "" {
		cfg.ListenAddr = listenAddrWithPort(cfg.ListenAddr, v)
	}
	if v := getEnv(envPrefix + "SILENCE_THRESHOLD_DB"); v != "" {
		db, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%sSILENCE_THRESHOLD_DB: %w", envPrefix, err)
		}
		cfg.Tuning.SilenceThresholdDB = &db
	}
	return nil
}

func normalizeConfig(cfg *AppConfig) {
	cfg.ListenAddr = strings.TrimSpace(cfg.ListenAddr)
	cfg.DBPath = strings.TrimSpace(cfg.DBPath)
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.Audio.Device = strings.TrimSpace(cfg.Audio.Device)
	cfg.Tuning.DefaultInstrument = strings.TrimSpace(cfg.Tuning.DefaultInstrument)
	if cfg.Tuning.DefaultInstrument == "" {
		cfg.Tuning.DefaultInstrument = "Guitar"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Tuning.SilenceThresholdDB == nil {
		db := tuning.DefaultSilenceThresholdDB
		cfg.Tuning.SilenceThresholdDB = &db
	}
}

func getEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func listenAddrWithPort(addr, port string) string {
	port = strings.TrimSpace(port)
	host := ""
	if idx := strings.LastIndex(addr, ":"); idx >= 0 {
		host = addr[:idx]
	}
	return host + ":" + port
}
