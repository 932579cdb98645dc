package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/metalblueberry/tuner/config"
	"github.com/metalblueberry/tuner/pkg/api"
	"github.com/metalblueberry/tuner/pkg/audio"
	"github.com/metalblueberry/tuner/pkg/logger"
	"github.com/metalblueberry/tuner/pkg/pitch"
	"github.com/metalblueberry/tuner/pkg/session"
	"github.com/metalblueberry/tuner/pkg/store"
	"github.com/metalblueberry/tuner/pkg/tuning"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	logger := logger.New(cfg.LogLevel)
	db, err := store.Open(context.Background(), cfg.DBPath, logger)
	if err != nil {
		logger.Fatalf("db init: %v", err)
	}
	defer db.Close()

	slog.SetDefault(logger.Slog())
	sessions := session.NewManager(sessionOptions(cfg), store.NewSettingsStore(db), logger)
	n, err := sessions.Restore(context.Background())
	if err != nil {
		logger.Errorf("restore sessions: %v", err)
	}
	logger.Printf("restored %d sessions", n)
	if err := sessions.Start(); err != nil {
		logger.Fatalf("session reaper: %v", err)
	}
	defer sessions.Stop()

	if cfg.Audio.Enabled {
		stopAudio, err := startMicrophone(context.Background(), cfg, sessions, logger)
		if err != nil {
			logger.Fatalf("microphone: %v", err)
		}
		defer stopAudio()
	}

	srv := api.NewServer(cfg, logger, api.ServerDeps{DB: db, Sessions: sessions})
	go func() {
		logger.Printf("listening on %s", cfg.ListenAddr)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Errorf("graceful shutdown: %v", err)
	}
}

func sessionOptions(cfg *config.AppConfig) session.Options {
	threshold := cfg.Tuning.SilenceThreshold()
	return session.Options{
		IdleTTL:            cfg.Session.IdleTTL,
		ReapInterval:       cfg.Session.ReapInterval,
		HistorySize:        cfg.Session.HistorySize,
		SamplesPerSecond:   cfg.Session.SamplesPerSecond,
		SilenceThresholdDB: &threshold,
	}
}

/*
 * The microphone is shared by sessions with different silence thresholds, so
 * the estimator only skips frames without any signal and every session
 * decides silence itself.
 */
func microphoneConfig(cfg *config.AppConfig) audio.Config {
	gate := tuning.SilentDB
	return audio.Config{
		Device:          cfg.Audio.Device,
		SampleRate:      cfg.Audio.SampleRate,
		FramesPerBuffer: cfg.Audio.FramesPerBuffer,
		Pitch: pitch.Config{
			Window: cfg.Audio.Window,
			MinHz:  cfg.Audio.MinHz,
			MaxHz:  cfg.Audio.MaxHz,
			GateDB: &gate,
		},
	}
}

/*
 * Feeds the shared input device into every live session.
 */
func startMicrophone(ctx context.Context, cfg *config.AppConfig, sessions *session.Manager, log *logger.Logger) (func(), error) {
	terminate, err := audio.Initialize()
	if err != nil {
		return nil, err
	}
	audioCfg := microphoneConfig(cfg)
	src, err := audio.OpenMicrophone(audioCfg)
	if err != nil {
		_ = terminate()
		return nil, err
	}
	capture := audio.NewCapture(src, audioCfg, log)
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := capture.Run(ctx, func(s tuning.Sample) { sessions.Broadcast(s) }); err != nil {
			log.Errorf("capture: %v", err)
		}
	}()
	log.Printf("microphone capture started")
	return func() {
		cancel()
		<-done
		if err := capture.Close(); err != nil {
			log.Errorf("audio close: %v", err)
		}
		if err := terminate(); err != nil {
			log.Errorf("portaudio terminate: %v", err)
		}
	}, nil
}
