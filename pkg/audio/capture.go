package audio

import (
	"context"
	"fmt"
	"strings"

	"github.com/gordonklaus/portaudio"
	"github.com/metalblueberry/tuner/pkg/logger"
	"github.com/metalblueberry/tuner/pkg/pitch"
	"github.com/metalblueberry/tuner/pkg/tuning"
)

type Config struct {
	Device          string
	SampleRate      float64
	FramesPerBuffer int
	Pitch           pitch.Config
}

/*
 * Source of mono audio frames. The frame passed to the handler is only valid
 * during the call.
 */
type Source interface {
	Start(handler func(frame []float32, sampleRate float64)) error
	Stop() error
	Close() error
}

/*
 * Microphone input through portaudio.
 */
type microphone struct {
	*portaudio.Stream
	inputDevice *portaudio.DeviceInfo
	params      portaudio.StreamParameters
	handler     func(frame []float32, sampleRate float64)
}

/*
 * Initializes portaudio. The returned function terminates it.
 */
func Initialize() (func() error, error) {

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}

	return portaudio.Terminate, nil
}

/*
 * Opens an input-only stream on the first device whose name contains
 * cfg.Device, or on the default input device if cfg.Device is empty.
 */
func OpenMicrophone(cfg Config) (Source, error) {
	input, err := findInput(cfg.Device)

	if err != nil {
		return nil, err
	}

	p := portaudio.HighLatencyParameters(input, nil)
	p.Input.Channels = 1

	if cfg.SampleRate > 0 {
		p.SampleRate = cfg.SampleRate
	}

	if cfg.FramesPerBuffer > 0 {
		p.FramesPerBuffer = cfg.FramesPerBuffer
	}

	return &microphone{inputDevice: input, params: p}, nil
}

func findInput(name string) (*portaudio.DeviceInfo, error) {

	if strings.TrimSpace(name) == "" {
		dev, err := portaudio.DefaultInputDevice()

		if err != nil {
			return nil, fmt.Errorf("default input device: %w", err)
		}

		return dev, nil
	}

	h, err := portaudio.DefaultHostApi()

	if err != nil {
		return nil, fmt.Errorf("default host api: %w", err)
	}

	for _, device := range h.Devices {

		if device.MaxInputChannels > 0 && strings.Contains(device.Name, name) {
			return device, nil
		}

	}

	return nil, fmt.Errorf("no input device matching %q", name)
}

func (m *microphone) Start(handler func(frame []float32, sampleRate float64)) error {
	m.handler = handler
	stream, err := portaudio.OpenStream(m.params, m.processAudio)

	if err != nil {
		return fmt.Errorf("open stream on %s: %w", m.inputDevice.Name, err)
	}

	m.Stream = stream
	return m.Stream.Start()
}

func (m *microphone) processAudio(in []float32) {
	m.handler(in, m.params.SampleRate)
}

func (m *microphone) Stop() error {

	if m.Stream == nil {
		return nil
	}

	return m.Stream.Stop()
}

func (m *microphone) Close() error {

	if m.Stream == nil {
		return nil
	}

	return m.Stream.Close()
}

/*
 * Capture couples an audio source with a pitch estimator.
 *
 * The audio callback only appends the frame to the analysis window and
 * drops the frame loudness into a single-slot cell, replacing a value the
 * worker has not picked up yet. The worker always analyzes the most recent
 * window and never blocks the callback.
 */
type Capture struct {
	source    Source
	estimator *pitch.Estimator
	log       *logger.Logger

	scratch []float64
	latest  chan float64
}

func NewCapture(source Source, cfg Config, log *logger.Logger) *Capture {
	return &Capture{
		source:    source,
		estimator: pitch.Create(cfg.Pitch),
		log:       log,
		scratch:   make([]float64, 0),
		latest:    make(chan float64, 1),
	}
}

func (c *Capture) process(samples []float32, rate float64) {
	c.scratch = c.scratch[:0]

	for _, v := range samples {
		c.scratch = append(c.scratch, float64(v))
	}

	c.estimator.Process(c.scratch, uint32(rate))
	db := pitch.LoudnessDB(samples)

	select {
	case c.latest <- db:
		return
	default:
	}

	select {
	case <-c.latest:
	default:
	}

	select {
	case c.latest <- db:
	default:
	}

}

/*
 * Starts the source and estimates pitch until ctx is done. Every estimate is
 * passed to sink; windows the estimator fails on are skipped.
 */
func (c *Capture) Run(ctx context.Context, sink func(tuning.Sample)) error {

	if err := c.source.Start(c.process); err != nil {
		return err
	}

	defer func() {

		if err := c.source.Stop(); err != nil {
			c.log.Errorf("audio stop: %v", err)
		}

	}()

	for {

		select {
		case db := <-c.latest:
			sample, err := c.estimator.Measure(db)

			if err != nil {
				c.log.Debugf("pitch estimate skipped: %v", err)
				continue
			}

			sink(sample)
		case <-ctx.Done():
			return nil
		}

	}

}

func (c *Capture) Close() error {
	return c.source.Close()
}
