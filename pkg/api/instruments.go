package api

import (
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"github.com/metalblueberry/tuner/pkg/tuning"
)

/*
 * minInstrumentSimilarity is the Jaro-Winkler score a misspelled instrument
 * name needs to still resolve.
 */
const minInstrumentSimilarity = 0.85

/*
 * Looks an instrument up by name and falls back to the most
 * similar built-in name, so "ukelele" still finds the ukulele.
 */
func resolveProfile(name string) (tuning.InstrumentProfile, error) {
	p, err := tuning.LookupProfile(name)
	if err == nil {
		return p, nil
	}
	wanted := strings.ToLower(strings.TrimSpace(name))
	if wanted == "" {
		return tuning.InstrumentProfile{}, err
	}
	jw := metrics.NewJaroWinkler()
	best := -1.0
	var match tuning.InstrumentProfile
	for _, candidate := range tuning.Profiles() {
		score := strutil.Similarity(wanted, strings.ToLower(candidate.Name()), jw)
		if score > best {
			best = score
			match = candidate
		}
	}
	if best < minInstrumentSimilarity {
		return tuning.InstrumentProfile{}, err
	}
	return match, nil
}

type profileString struct {
	Index    int     `json:"index"`
	Name     string  `json:"name"`
	TargetHz float64 `json:"target_hz"`
}

type profileView struct {
	Name    string          `json:"name"`
	Strings []profileString `json:"strings"`
}

/*
 * Lists strings highest pitched first, the way they appear
 * when looking down at the instrument. Index is the position to select.
 */
func displayStrings(p tuning.InstrumentProfile) []profileString {
	strs := p.Strings()
	out := make([]profileString, 0, len(strs))
	for i := len(strs) - 1; i >= 0; i-- {
		out = append(out, profileString{Index: i, Name: strs[i].Name, TargetHz: strs[i].TargetHz})
	}
	return out
}
