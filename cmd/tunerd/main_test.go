package main

import (
	"math"
	"testing"
	"time"

	"github.com/metalblueberry/tuner/config"
	"github.com/metalblueberry/tuner/pkg/audio"
	"github.com/metalblueberry/tuner/pkg/logger"
	"github.com/metalblueberry/tuner/pkg/pitch"
	"github.com/metalblueberry/tuner/pkg/session"
	"github.com/metalblueberry/tuner/pkg/tuning"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.AppConfig {
	threshold := 0.0
	return &config.AppConfig{
		Session: config.SessionConfig{
			IdleTTL:          time.Minute,
			ReapInterval:     time.Second,
			HistorySize:      4,
			SamplesPerSecond: 5,
		},
		Tuning: config.TuningConfig{SilenceThresholdDB: &threshold},
		Audio: config.AudioConfig{
			Device:          "USB",
			SampleRate:      16000,
			FramesPerBuffer: 256,
			Window:          2048,
			MinHz:           70,
			MaxHz:           900,
		},
	}
}

func TestSessionOptionsKeepZeroThreshold(t *testing.T) {
	opts := sessionOptions(testConfig())
	require.NotNil(t, opts.SilenceThresholdDB)
	assert.Equal(t, 0.0, *opts.SilenceThresholdDB)
	assert.Equal(t, 4, opts.HistorySize)
}

func TestMicrophoneIsNotGatedByConfigThreshold(t *testing.T) {
	cfg := testConfig()
	mic := microphoneConfig(cfg)
	require.NotNil(t, mic.Pitch.GateDB)
	assert.Equal(t, tuning.SilentDB, *mic.Pitch.GateDB)
	assert.Equal(t, audio.Config{
		Device:          "USB",
		SampleRate:      16000,
		FramesPerBuffer: 256,
		Pitch:           pitch.Config{Window: 2048, MinHz: 70, MaxHz: 900, GateDB: mic.Pitch.GateDB},
	}, mic)

	threshold := -80.0
	cfg.Tuning.SilenceThresholdDB = &threshold
	m := session.NewManager(sessionOptions(cfg), nil, logger.Discard())
	loud, err := m.Create(t.Context(), tuning.Guitar)
	require.NoError(t, err)
	require.NoError(t, loud.SelectString(1))
	strict, err := m.Create(t.Context(), tuning.Guitar)
	require.NoError(t, err)
	strict.SetSilenceThreshold(-60)
	require.NoError(t, strict.SelectString(1))

	e := pitch.Create(mic.Pitch)
	var sample tuning.Sample

	for i := 0; i < 4; i++ {
		frame := make([]float32, 512)

		for j := range frame {
			frame[j] = float32(0.0005 * sinAt(110, 16000, i*512+j))
		}

		sample, err = e.Estimate(frame, 16000)
		require.NoError(t, err)
	}

	require.InDelta(t, 110, sample.FrequencyHz, 1.0)
	m.Broadcast(sample)

	quiet, _ := loud.Latest()
	assert.Equal(t, tuning.StatusInTune, quiet.State.Status)
	gated, _ := strict.Latest()
	assert.Equal(t, tuning.StatusSilent, gated.State.Status)
}

func sinAt(freq, rate float64, i int) float64 {
	return math.Sin(2 * math.Pi * freq * float64(i) / rate)
}
