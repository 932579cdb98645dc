package tuning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinProfiles(t *testing.T) {
	want := map[string][]float64{
		"Guitar":  {82.41, 110.00, 146.83, 196.00, 246.94, 329.63},
		"Banjo":   {98, 147, 196, 248, 294},
		"Ukulele": {392, 261.63, 329.63, 440},
		"Violin":  {196, 293.66, 440, 659.25},
	}

	profiles := Profiles()
	require.Len(t, profiles, 4)

	for _, p := range profiles {
		freqs := []float64{}

		for _, s := range p.Strings() {
			freqs = append(freqs, s.TargetHz)
		}

		assert.Equal(t, want[p.Name()], freqs, p.Name())
	}

}

func TestProfileStringsAreCopies(t *testing.T) {
	strs := Guitar.Strings()
	strs[0].TargetHz = 1

	s, err := Guitar.StringAt(0)
	require.NoError(t, err)
	assert.Equal(t, 82.41, s.TargetHz)
}

func TestNewProfileRejectsBadFrequencies(t *testing.T) {
	_, err := NewProfile("Broken", StringDefinition{Name: "X", TargetHz: 0})
	assert.ErrorIs(t, err, ErrInvalidValue)

	p, err := NewProfile("Drone", StringDefinition{Name: "D", TargetHz: 73.42})
	require.NoError(t, err)
	assert.Equal(t, 1, p.Len())
}

func TestLookupProfile(t *testing.T) {
	p, err := LookupProfile("  ukulele ")
	require.NoError(t, err)
	assert.Equal(t, "Ukulele", p.Name())

	_, err = LookupProfile("theremin")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindClosestString(t *testing.T) {
	cases := []struct {
		profile InstrumentProfile
		freq    float64
		name    string
		hz      float64
	}{
		{Guitar, 0, "E", 82.41},
		{Guitar, 100, "A", 110},
		{Guitar, 300, "E", 329.63},
		{Guitar, 5000, "E", 329.63},
		{Violin, 600, "E", 659.25},
		{Banjo, 200, "G", 196},
		{Ukulele, 300, "E", 329.63},
	}

	for _, c := range cases {
		s, ok := FindClosestString(c.profile, c.freq)
		require.True(t, ok)
		assert.Equal(t, c.name, s.Name, "%s at %v", c.profile.Name(), c.freq)
		assert.Equal(t, c.hz, s.TargetHz, "%s at %v", c.profile.Name(), c.freq)
	}

}

func TestFindClosestStringTieGoesToFirst(t *testing.T) {
	p, err := NewProfile("Pair", StringDefinition{Name: "low", TargetHz: 100}, StringDefinition{Name: "high", TargetHz: 200})
	require.NoError(t, err)

	s, ok := FindClosestString(p, 150)
	require.True(t, ok)
	assert.Equal(t, "low", s.Name)

	dup, err := NewProfile("Unison", StringDefinition{Name: "a", TargetHz: 220}, StringDefinition{Name: "b", TargetHz: 220})
	require.NoError(t, err)

	s, _ = FindClosestString(dup, 221)
	assert.Equal(t, "a", s.Name)
}

func TestFindClosestStringIsIdempotent(t *testing.T) {
	for _, p := range Profiles() {

		for f := 50.0; f < 800; f += 7.3 {
			first, _ := FindClosestString(p, f)
			second, _ := FindClosestString(p, f)
			assert.Equal(t, first, second)
		}

	}

}

func TestFindClosestStringEmptyProfile(t *testing.T) {
	p, err := NewProfile("Empty")
	require.NoError(t, err)

	_, ok := FindClosestString(p, 440)
	assert.False(t, ok)
}
