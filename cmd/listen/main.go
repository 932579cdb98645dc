package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/metalblueberry/tuner/pkg/audio"
	"github.com/metalblueberry/tuner/pkg/logger"
	"github.com/metalblueberry/tuner/pkg/pitch"
	"github.com/metalblueberry/tuner/pkg/tuning"
)

func main() {
	instrument := flag.String("instrument", "guitar", "instrument profile")
	str := flag.String("string", "", "string to tune, by name or position")
	auto := flag.Bool("auto", false, "follow the closest string")
	target := flag.String("target", "", "custom target frequency in Hz")
	device := flag.String("device", "", "input device name, default device if empty")
	rate := flag.Float64("rate", 16000, "sample rate in Hz")
	duration := flag.Duration("duration", 0, "stop after this long, 0 runs until interrupted")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := "info"

	if *verbose {
		level = "debug"
	}

	log := logger.New(level)
	engine, err := configureEngine(*instrument, *str, *target, *auto)
	chk(err)

	ctx, done := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer done()

	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	terminate, err := audio.Initialize()
	chk(err)
	defer terminate()

	gate := engine.SilenceThreshold()
	cfg := audio.Config{
		Device:     *device,
		SampleRate: *rate,
		Pitch: pitch.Config{
			GateDB: &gate,
		},
	}

	src, err := audio.OpenMicrophone(cfg)
	chk(err)
	capture := audio.NewCapture(src, cfg, log)
	defer capture.Close()

	fmt.Printf("tuning %s, ctrl+c to stop\n", engine.Profile().Name())
	r := newReporter(os.Stdout)
	start := time.Now()

	err = capture.Run(ctx, func(s tuning.Sample) {
		r.Report(s, engine.IngestSample(s))
	})

	chk(err)
	log.Debugf("listened for %s", time.Since(start).Round(time.Millisecond))
}

/*
 * Builds the engine from the command line. A custom target wins over a
 * string selection, auto mode wins over both.
 */
func configureEngine(instrument, str, target string, auto bool) (*tuning.Engine, error) {
	profile, err := tuning.LookupProfile(instrument)

	if err != nil {
		return nil, err
	}

	engine := tuning.NewEngine(profile)

	switch {
	case target != "":
		hz, err := tuning.ParseCustomTarget(target)

		if err != nil {
			return nil, err
		}

		if err := engine.SetCustomTarget(hz); err != nil {
			return nil, err
		}

	case str != "":

		if idx, convErr := strconv.Atoi(str); convErr == nil {
			err = engine.SelectString(idx)
		} else {
			err = engine.SelectStringByName(str)
		}

		if err != nil {
			return nil, err
		}

	}

	if auto {
		engine.SetMode(tuning.ModeAuto)
	}

	return engine, nil
}

func chk(err error) {
	if err != nil {
		panic(err)
	}
}
