package tuning

import (
	"fmt"
	"strings"
)

/*
 * Data structure representing a single string of an instrument.
 */
type StringDefinition struct {
	Name     string  `json:"name"`
	TargetHz float64 `json:"target_hz"`
}

/*
 * Data structure representing an instrument and its strings.
 *
 * Strings are kept in physical order. A profile never changes after it has
 * been created, accessors hand out copies.
 */
type InstrumentProfile struct {
	name    string
	strings []StringDefinition
}

/*
 * Creates an instrument profile from a list of strings.
 */
func NewProfile(name string, strs ...StringDefinition) (InstrumentProfile, error) {

	/*
	 * Every string needs a positive frequency.
	 */
	for idx, s := range strs {

		if !isPositiveFinite(s.TargetHz) {
			return InstrumentProfile{}, fmt.Errorf("string %d (%s) of %s: %w", idx, s.Name, name, ErrInvalidValue)
		}

	}

	copied := make([]StringDefinition, len(strs))
	copy(copied, strs)
	p := InstrumentProfile{
		name:    name,
		strings: copied,
	}

	return p, nil
}

/*
 * Returns the name of the instrument.
 */
func (p InstrumentProfile) Name() string {
	return p.name
}

/*
 * Returns the number of strings.
 */
func (p InstrumentProfile) Len() int {
	return len(p.strings)
}

/*
 * Returns a copy of the strings in physical order.
 */
func (p InstrumentProfile) Strings() []StringDefinition {
	out := make([]StringDefinition, len(p.strings))
	copy(out, p.strings)
	return out
}

/*
 * Returns the string at a certain position.
 */
func (p InstrumentProfile) StringAt(index int) (StringDefinition, error) {

	if index < 0 || index >= len(p.strings) {
		return StringDefinition{}, fmt.Errorf("string index %d on %s: %w", index, p.name, ErrNotFound)
	}

	return p.strings[index], nil
}

/*
 * Returns the position of the first string with a certain name.
 */
func (p InstrumentProfile) IndexOf(name string) (int, error) {

	for idx, s := range p.strings {

		if s.Name == name {
			return idx, nil
		}

	}

	return -1, fmt.Errorf("string %q on %s: %w", name, p.name, ErrNotFound)
}

/*
 * Find the string whose frequency is closest to a certain frequency.
 *
 * Ties go to the string that comes first in the profile. Returns false only
 * if the profile has no strings.
 */
func FindClosestString(p InstrumentProfile, frequencyHz float64) (StringDefinition, bool) {
	idx := closestIndex(p, frequencyHz)

	if idx < 0 {
		return StringDefinition{}, false
	}

	return p.strings[idx], true
}

func closestIndex(p InstrumentProfile, frequencyHz float64) int {
	bestIdx := -1
	bestDiff := 0.0

	for idx, s := range p.strings {
		diff := abs(frequencyHz - s.TargetHz)

		if bestIdx < 0 || diff < bestDiff {
			bestIdx = idx
			bestDiff = diff
		}

	}

	return bestIdx
}

var (
	Guitar  = mustProfile("Guitar", str("E", 82.41), str("A", 110.00), str("D", 146.83), str("G", 196.00), str("B", 246.94), str("E", 329.63))
	Banjo   = mustProfile("Banjo", str("G", 98), str("D", 147), str("G", 196), str("B", 248), str("D", 294))
	Ukulele = mustProfile("Ukulele", str("G", 392), str("C", 261.63), str("E", 329.63), str("A", 440))
	Violin  = mustProfile("Violin", str("G", 196), str("D", 293.66), str("A", 440), str("E", 659.25))
)

/*
 * Returns the built-in instrument profiles.
 */
func Profiles() []InstrumentProfile {
	return []InstrumentProfile{Guitar, Banjo, Ukulele, Violin}
}

/*
 * Looks up a built-in profile by name, ignoring case.
 */
func LookupProfile(name string) (InstrumentProfile, error) {
	wanted := strings.TrimSpace(name)

	for _, p := range Profiles() {

		if strings.EqualFold(p.name, wanted) {
			return p, nil
		}

	}

	return InstrumentProfile{}, fmt.Errorf("instrument %q: %w", name, ErrNotFound)
}

func str(name string, hz float64) StringDefinition {
	return StringDefinition{Name: name, TargetHz: hz}
}

func mustProfile(name string, strs ...StringDefinition) InstrumentProfile {
	p, err := NewProfile(name, strs...)

	if err != nil {
		panic(err)
	}

	return p
}
