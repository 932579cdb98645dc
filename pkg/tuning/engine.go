package tuning

import (
	"fmt"
	"strconv"
	"strings"
)

/*
 * The way the target frequency is chosen.
 */
type Mode string

const (
	ModeManual Mode = "manual"
	ModeAuto   Mode = "auto"
)

/*
 * Parses a mode name.
 */
func ParseMode(s string) (Mode, error) {

	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeManual:
		return ModeManual, nil
	case ModeAuto:
		return ModeAuto, nil
	default:
		return "", fmt.Errorf("mode %q: %w", s, ErrInvalidValue)
	}

}

/*
 * Data structure representing the tuning state of one session.
 *
 * An engine is not safe for concurrent use. IngestSample writes the target in
 * auto mode, so callers sharing an engine must serialize all access.
 */
type Engine struct {
	profile     InstrumentProfile
	targetHz    float64
	hasTarget   bool
	matchedIdx  int
	mode        Mode
	thresholdDB float64
}

/*
 * Engine option.
 */
type Option func(*Engine)

/*
 * Sets the loudness at or below which samples count as silence.
 */
func WithSilenceThreshold(db float64) Option {
	return func(e *Engine) {
		e.thresholdDB = db
	}
}

/*
 * Starts the engine in a certain mode.
 */
func WithMode(m Mode) Option {
	return func(e *Engine) {
		e.mode = m
	}
}

/*
 * Creates a tuning engine for an instrument.
 *
 * The engine starts in manual mode without a target.
 */
func NewEngine(profile InstrumentProfile, opts ...Option) *Engine {
	e := &Engine{
		profile:     profile,
		matchedIdx:  -1,
		mode:        ModeManual,
		thresholdDB: DefaultSilenceThresholdDB,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

/*
 * Returns the active instrument profile.
 */
func (e *Engine) Profile() InstrumentProfile {
	return e.profile
}

/*
 * Switches to another instrument. The previous selection is dropped.
 */
func (e *Engine) SetProfile(profile InstrumentProfile) {
	e.profile = profile
	e.targetHz = 0
	e.hasTarget = false
	e.matchedIdx = -1
}

/*
 * Returns the current mode.
 */
func (e *Engine) Mode() Mode {
	return e.mode
}

/*
 * Switches between manual and automatic string selection.
 */
func (e *Engine) SetMode(m Mode) {
	e.mode = m
}

/*
 * Returns the silence threshold in dB.
 */
func (e *Engine) SilenceThreshold() float64 {
	return e.thresholdDB
}

/*
 * Sets the silence threshold in dB.
 */
func (e *Engine) SetSilenceThreshold(db float64) {
	e.thresholdDB = db
}

/*
 * Returns the target frequency, or false if nothing was selected yet.
 */
func (e *Engine) Target() (float64, bool) {
	return e.targetHz, e.hasTarget
}

/*
 * Returns the position of the selected string, or -1 for a custom target or
 * no selection.
 */
func (e *Engine) SelectedIndex() int {
	return e.matchedIdx
}

/*
 * Targets the string at a certain position of the active profile.
 */
func (e *Engine) SelectString(index int) error {
	s, err := e.profile.StringAt(index)

	if err != nil {
		return err
	}

	e.targetHz = s.TargetHz
	e.hasTarget = true
	e.matchedIdx = index
	return nil
}

/*
 * Targets the first string of the active profile carrying a certain name.
 */
func (e *Engine) SelectStringByName(name string) error {
	idx, err := e.profile.IndexOf(name)

	if err != nil {
		return err
	}

	return e.SelectString(idx)
}

/*
 * Targets an arbitrary frequency. The mode is left as it is.
 */
func (e *Engine) SetCustomTarget(valueHz float64) error {

	if !isPositiveFinite(valueHz) {
		return fmt.Errorf("custom target %v: %w", valueHz, ErrInvalidValue)
	}

	e.targetHz = valueHz
	e.hasTarget = true
	e.matchedIdx = -1
	return nil
}

/*
 * Parses user input for a custom target frequency.
 */
func ParseCustomTarget(text string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)

	if err != nil || !isPositiveFinite(v) {
		return 0, fmt.Errorf("custom target %q: %w", text, ErrInvalidValue)
	}

	return v, nil
}

/*
 * Derives the tuning state for a sample.
 *
 * Silence, meaning loudness at or below the threshold or no detected pitch,
 * wins over everything else. In automatic mode the closest string becomes the
 * new target before the offset is computed.
 */
func (e *Engine) IngestSample(sample Sample) State {

	if sample.LoudnessDB <= e.thresholdDB || sample.FrequencyHz == 0 {
		return State{
			Status:   StatusSilent,
			TargetHz: e.targetHz,
		}
	}

	if e.mode == ModeAuto {
		idx := closestIndex(e.profile, sample.FrequencyHz)

		if idx >= 0 {
			e.targetHz = e.profile.strings[idx].TargetHz
			e.hasTarget = true
			e.matchedIdx = idx
		}

	}

	result := State{
		OffsetHz: sample.FrequencyHz - e.targetHz,
		TargetHz: e.targetHz,
	}

	if e.matchedIdx >= 0 {
		matched := e.profile.strings[e.matchedIdx]
		result.Matched = &matched
	}

	switch {
	case abs(result.OffsetHz) <= InTuneToleranceHz:
		result.Status = StatusInTune
	case result.OffsetHz > 0:
		result.Status = StatusSharp
	default:
		result.Status = StatusFlat
	}

	return result
}
