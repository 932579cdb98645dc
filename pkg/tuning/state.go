package tuning

import (
	"fmt"
	"math"
)

/*
 * Global constants.
 */
const (
	DefaultSilenceThresholdDB = -60.0
	InTuneToleranceHz         = 10.0
	SliderWindowHz            = 1000.0
)

/*
 * Loudness reported for frames without any energy.
 */
const SilentDB = -1000.0

/*
 * The tuning status derived from a sample.
 */
type Status string

const (
	StatusSilent Status = "silent"
	StatusInTune Status = "in_tune"
	StatusSharp  Status = "sharp"
	StatusFlat   Status = "flat"
)

/*
 * Data structure representing one (pitch, loudness) measurement.
 *
 * A frequency of zero means no pitch was detected.
 */
type Sample struct {
	FrequencyHz float64 `json:"frequency_hz"`
	LoudnessDB  float64 `json:"loudness_db"`
}

/*
 * Rejects samples no estimator can produce: a negative or non-finite
 * frequency, or a NaN loudness.
 */
func (s Sample) Validate() error {

	if s.FrequencyHz < 0 || math.IsInf(s.FrequencyHz, 0) || math.IsNaN(s.FrequencyHz) {
		return fmt.Errorf("frequency %v: %w", s.FrequencyHz, ErrInvalidValue)
	}

	if math.IsNaN(s.LoudnessDB) {
		return fmt.Errorf("loudness %v: %w", s.LoudnessDB, ErrInvalidValue)
	}

	return nil
}

/*
 * Data structure representing the result of ingesting a sample.
 */
type State struct {
	Status   Status            `json:"state"`
	Matched  *StringDefinition `json:"matched_string,omitempty"`
	OffsetHz float64           `json:"offset"`
	TargetHz float64           `json:"target_hz"`
}

/*
 * Returns the position of a pitch on a slider centered on the target.
 *
 * The slider spans SliderWindowHz, so 0.5 is exactly on target and the result
 * is clamped to [0, 1].
 */
func (s State) SliderPosition() float64 {

	if s.Status == StatusSilent {
		return 0.5
	}

	pos := (s.OffsetHz + SliderWindowHz/2) / SliderWindowHz
	return math.Max(0, math.Min(1, pos))
}

func isPositiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

func abs(v float64) float64 {
	return math.Abs(v)
}
