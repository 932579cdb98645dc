package pitch

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"sync"

	"github.com/andrepxx/go-dsp-guitar/fft"
	"github.com/metalblueberry/tuner/pkg/circular"
	"github.com/metalblueberry/tuner/pkg/tuning"
)

/*
 * Global constants.
 */
const (
	DEFAULT_WINDOW  = 4096
	DEFAULT_MIN_HZ  = 60.0
	DEFAULT_MAX_HZ  = 1000.0
	DEFAULT_GATE_DB = tuning.DefaultSilenceThresholdDB
	PEAK_THRESHOLD  = 0.9
)

var ErrWindowFilling = errors.New("analysis window still filling")

/*
 * Estimator settings.
 */
type Config struct {
	Window int
	MinHz  float64
	MaxHz  float64

	/*
	 * Frames at or below this loudness are not analyzed. Nil selects
	 * DEFAULT_GATE_DB.
	 */
	GateDB *float64
}

/*
 * Data structure representing an autocorrelation pitch estimator.
 *
 * Incoming frames are appended to a sliding window. The fundamental is the
 * first strong peak of the normalized autocorrelation within [MinHz, MaxHz].
 */
type Estimator struct {
	cfg              Config
	mutexBuffer      sync.RWMutex
	window           *circular.Buffer[float64]
	sampleRate       uint32
	mutexAnalyze     sync.Mutex
	fourierTransform fft.FourierTransform
	bufSignal        []float64
	bufCorrelation   []float64
	bufEnergy        []float64
	bufNormalized    []float64
	bufFFT           []complex128
	gateDB           float64
}

/*
 * Computes the RMS energy of a frame in dB relative to full scale.
 */
func LoudnessDB(frame []float32) float64 {
	n := len(frame)

	if n == 0 {
		return tuning.SilentDB
	}

	sum := 0.0

	for _, v := range frame {
		f := float64(v)
		sum += f * f
	}

	rms := math.Sqrt(sum / float64(n))

	/*
	 * log10(0) is negative infinity, report the sentinel instead.
	 */
	if rms == 0 {
		return tuning.SilentDB
	}

	db := 20.0 * math.Log10(rms)
	return math.Max(db, tuning.SilentDB)
}

/*
 * Find the maximum value in a buffer.
 */
func findMaximum(buf []float64) (float64, int) {
	maxVal := math.Inf(-1)
	maxIdx := int(-1)

	for idx, value := range buf {

		if value > maxVal {
			maxVal = value
			maxIdx = idx
		}

	}

	return maxVal, maxIdx
}

/*
 * Append samples to the analysis window.
 */
func (this *Estimator) Process(samples []float64, sampleRate uint32) {
	this.mutexBuffer.Lock()
	this.window.Enqueue(samples...)
	this.sampleRate = sampleRate
	this.mutexBuffer.Unlock()
}

/*
 * Estimates the fundamental frequency of the buffered signal.
 *
 * Returns zero if the window holds no periodic energy in range and
 * ErrWindowFilling until the window spans two periods of MinHz.
 */
func (this *Estimator) Analyze() (float64, error) {
	this.mutexAnalyze.Lock()
	defer this.mutexAnalyze.Unlock()
	n := this.window.Length()

	if uint64(len(this.bufSignal)) != uint64(n) {
		this.bufSignal = make([]float64, n)
	}

	this.mutexBuffer.RLock()
	sampleRate := this.sampleRate
	filled := this.window.Filled()
	err := this.window.Retrieve(this.bufSignal)
	this.mutexBuffer.RUnlock()

	if err != nil {
		return 0, fmt.Errorf("retrieve analysis window: %w", err)
	}

	if sampleRate == 0 {
		return 0, fmt.Errorf("no sample rate known")
	}

	sampleRateFloat := float64(sampleRate)
	lowIdx := int((sampleRateFloat / this.cfg.MaxHz) + 0.5)
	highIdx := int((sampleRateFloat / this.cfg.MinHz) + 0.5)

	/*
	 * Two full periods of the lowest frequency must fit into the window.
	 */
	if lowIdx < 1 {
		lowIdx = 1
	}

	if highIdx > n/2-1 {
		highIdx = n/2 - 1
	}

	if highIdx <= lowIdx {
		return 0, fmt.Errorf("window of %d samples cannot resolve %.1f Hz at %d Hz", n, this.cfg.MinHz, sampleRate)
	}

	if filled < 2*highIdx {
		return 0, ErrWindowFilling
	}

	/*
	 * Only the newest samples are valid while the window is filling.
	 */
	signal := this.bufSignal[n-filled:]
	m := len(signal)
	twoM := uint64(2 * m)
	fftSize, _ := fft.NextPowerOfTwo(twoM)

	/*
	 * Ensure that the work buffers are of correct length.
	 */
	if uint64(len(this.bufCorrelation)) != fftSize {
		this.bufCorrelation = make([]float64, fftSize)
	}

	if uint64(len(this.bufFFT)) != fftSize {
		this.bufFFT = make([]complex128, fftSize)
	}

	if len(this.bufEnergy) != m+1 {
		this.bufEnergy = make([]float64, m+1)
	}

	if len(this.bufNormalized) != highIdx+2 {
		this.bufNormalized = make([]float64, highIdx+2)
	}

	bufCorrelation := this.bufCorrelation
	bufFFT := this.bufFFT
	energy := this.bufEnergy
	normalized := this.bufNormalized
	energy[0] = 0.0

	for i, v := range signal {
		energy[i+1] = energy[i] + (v * v)
	}

	if !(energy[m] > 0) {
		return 0, nil
	}

	copy(bufCorrelation[0:m], signal)
	ft := this.fourierTransform
	fft.ZeroFloat(bufCorrelation[m:fftSize])
	err = ft.RealFourier(bufCorrelation, bufFFT, fft.SCALING_DEFAULT)

	if err != nil {
		return 0, fmt.Errorf("forward FFT: %w", err)
	}

	/*
	 * The power spectrum is the transform of the autocorrelation.
	 */
	for i, elem := range bufFFT {
		bufFFT[i] = elem * cmplx.Conj(elem)
	}

	err = ft.RealInverseFourier(bufFFT, bufCorrelation, fft.SCALING_DEFAULT)

	if err != nil {
		return 0, fmt.Errorf("inverse FFT: %w", err)
	}

	/*
	 * Normalize every lag by the energy of the two overlapping parts, so a
	 * perfectly periodic signal scores one at its period no matter how few
	 * periods the window holds. The transform scaling cancels out.
	 */
	scale := bufCorrelation[0] / energy[m]

	if !(scale > 0) {
		return 0, nil
	}

	for k := range normalized {
		overlapEnergy := energy[m-k] + (energy[m] - energy[k])

		if overlapEnergy > 0 {
			normalized[k] = 2.0 * (bufCorrelation[k] / scale) / overlapEnergy
		} else {
			normalized[k] = 0.0
		}

	}

	/*
	 * Skip the main lobe around lag zero.
	 */
	startIdx := -1

	for k := 1; k <= highIdx; k++ {

		if normalized[k] < 0 {
			startIdx = k
			break
		}

	}

	if startIdx < 0 {
		return 0, nil
	}

	if startIdx < lowIdx {
		startIdx = lowIdx
	}

	if startIdx >= highIdx {
		return 0, nil
	}

	maxVal, maxIdx := findMaximum(normalized[startIdx : highIdx+1])

	if maxIdx < 0 || !(maxVal > 0) {
		return 0, nil
	}

	/*
	 * Take the first peak close to the highest one, multiples of the
	 * period score almost as high.
	 */
	idx := startIdx + maxIdx
	threshold := PEAK_THRESHOLD * maxVal

	for k := startIdx; k <= highIdx; k++ {
		value := normalized[k]

		if value >= threshold && value >= normalized[k-1] && value >= normalized[k+1] {
			idx = k
			break
		}

	}

	/*
	 * Refine the peak with a parabola through its neighbours, limited to
	 * plus/minus half a sample.
	 */
	peak := normalized[idx]
	valueLeft := normalized[idx-1]
	valueRight := normalized[idx+1]
	denominator := 2.0*peak - (valueLeft + valueRight)
	shift := 0.0

	if denominator != 0 {
		shift = 0.5 * (valueRight - valueLeft) / denominator
	}

	shift = math.Max(-0.5, math.Min(0.5, shift))
	return sampleRateFloat / (float64(idx) + shift), nil
}

/*
 * Turns one audio frame into a tuning sample.
 */
func (this *Estimator) Estimate(frame []float32, sampleRate uint32) (tuning.Sample, error) {
	samples := make([]float64, len(frame))

	for i, v := range frame {
		samples[i] = float64(v)
	}

	this.Process(samples, sampleRate)
	return this.Measure(LoudnessDB(frame))
}

/*
 * Builds a sample from the buffered window and the loudness of the newest
 * frame. Pitch is only estimated while the frame is louder than the gate.
 */
func (this *Estimator) Measure(loudnessDB float64) (tuning.Sample, error) {
	sample := tuning.Sample{
		LoudnessDB: loudnessDB,
	}

	if sample.LoudnessDB <= this.gateDB {
		return sample, nil
	}

	freq, err := this.Analyze()

	if err != nil {
		return sample, err
	}

	sample.FrequencyHz = freq
	return sample, nil
}

/*
 * Creates a pitch estimator. Zero fields of the configuration take defaults.
 */
func Create(cfg Config) *Estimator {

	if cfg.Window <= 0 {
		cfg.Window = DEFAULT_WINDOW
	}

	if cfg.MinHz <= 0 {
		cfg.MinHz = DEFAULT_MIN_HZ
	}

	if cfg.MaxHz <= cfg.MinHz {
		cfg.MaxHz = DEFAULT_MAX_HZ
	}

	gateDB := DEFAULT_GATE_DB

	if cfg.GateDB != nil {
		gateDB = *cfg.GateDB
	}

	e := Estimator{
		cfg:              cfg,
		gateDB:           gateDB,
		window:           circular.CreateBuffer[float64](cfg.Window),
		fourierTransform: fft.CreateFourierTransform(),
	}

	return &e
}
