package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/metalblueberry/tuner/config"
	"github.com/metalblueberry/tuner/pkg/logger"
	"github.com/metalblueberry/tuner/pkg/session"
	"github.com/metalblueberry/tuner/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, cfg *config.AppConfig, opts session.Options) *Server {
	t.Helper()
	log := logger.Discard()
	db, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "tuner.db"), log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	m := session.NewManager(opts, store.NewSettingsStore(db), log)
	return NewServer(cfg, log, ServerDeps{DB: db, Sessions: m})
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(bytes.NewReader(rr.Body.Bytes())).Decode(&v))
	return v
}

func createSession(t *testing.T, s *Server, instrument string) session.Snapshot {
	t.Helper()
	rr := do(t, s, http.MethodPost, "/sessions", `{"instrument":"`+instrument+`"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode[session.Snapshot](t, rr)
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, &config.AppConfig{}, session.Options{})
	rr := do(t, s, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode[map[string]any](t, rr)
	assert.Equal(t, true, body["ok"])

	rr = do(t, s, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestMetricsDisabled(t *testing.T) {
	s := newTestServer(t, &config.AppConfig{}, session.Options{})
	rr := do(t, s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestMetricsReportSessions(t *testing.T) {
	cfg := &config.AppConfig{Metrics: config.MetricsConfig{Enabled: true}}
	s := newTestServer(t, cfg, session.Options{})
	snap := createSession(t, s, "guitar")
	do(t, s, http.MethodPost, "/sessions/"+snap.ID+"/target", `{"string_index":1}`)
	do(t, s, http.MethodPost, "/sessions/"+snap.ID+"/samples", `{"frequency_hz":112,"loudness_db":-20}`)

	rr := do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "tuner_sessions_active 1")
	assert.Contains(t, body, "tuner_sessions_created_total 1")
	assert.Contains(t, body, `tuner_samples_ingested_total{state="in_tune"} 1`)
	assert.Contains(t, body, "tuner_uptime_seconds")
}

func TestListProfilesInDisplayOrder(t *testing.T) {
	s := newTestServer(t, &config.AppConfig{}, session.Options{})
	rr := do(t, s, http.MethodGet, "/profiles", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode[struct {
		Profiles []profileView `json:"profiles"`
	}](t, rr)
	require.Len(t, body.Profiles, 4)
	guitar := body.Profiles[0]
	assert.Equal(t, "Guitar", guitar.Name)
	require.Len(t, guitar.Strings, 6)
	assert.Equal(t, profileString{Index: 5, Name: "E", TargetHz: 329.63}, guitar.Strings[0])
	assert.Equal(t, profileString{Index: 0, Name: "E", TargetHz: 82.41}, guitar.Strings[5])
}

func TestManualScenarioOverHTTP(t *testing.T) {
	s := newTestServer(t, &config.AppConfig{}, session.Options{})
	snap := createSession(t, s, "Guitar")
	base := "/sessions/" + snap.ID

	rr := do(t, s, http.MethodGet, base+"/estimate", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = do(t, s, http.MethodPost, base+"/target", `{"string_index":1}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, 110.0, decode[session.Snapshot](t, rr).TargetHz)

	rr = do(t, s, http.MethodPost, base+"/samples", `{"frequency_hz":112,"loudness_db":-20}`)
	require.Equal(t, http.StatusOK, rr.Code)
	est := decode[estimateResponse](t, rr)
	assert.Equal(t, "in_tune", string(est.State))
	assert.InDelta(t, 2.0, est.Offset, 1e-9)
	require.NotNil(t, est.MatchedString)
	assert.Equal(t, "A", est.MatchedString.Name)

	rr = do(t, s, http.MethodPost, base+"/samples", `{"frequency_hz":125,"loudness_db":-20}`)
	assert.Equal(t, "sharp", string(decode[estimateResponse](t, rr).State))

	rr = do(t, s, http.MethodPost, base+"/samples", `{"frequency_hz":90,"loudness_db":-70}`)
	assert.Equal(t, "silent", string(decode[estimateResponse](t, rr).State))

	rr = do(t, s, http.MethodGet, base+"/estimate", "")
	require.Equal(t, http.StatusOK, rr.Code)
	est = decode[estimateResponse](t, rr)
	assert.Equal(t, "silent", string(est.State))
	assert.Equal(t, 0.5, est.Slider)

	rr = do(t, s, http.MethodGet, base+"/history", "")
	require.Equal(t, http.StatusOK, rr.Code)
	hist := decode[struct {
		Readings []estimateResponse `json:"readings"`
	}](t, rr)
	require.Len(t, hist.Readings, 3)
	assert.Equal(t, 112.0, hist.Readings[0].FrequencyHz)
}

func TestAutoModeOverHTTP(t *testing.T) {
	s := newTestServer(t, &config.AppConfig{}, session.Options{})
	snap := createSession(t, s, "banjo")
	base := "/sessions/" + snap.ID

	rr := do(t, s, http.MethodPost, base+"/mode", `{"mode":"auto"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, s, http.MethodPost, base+"/samples", `{"frequency_hz":196,"loudness_db":-20}`)
	est := decode[estimateResponse](t, rr)
	assert.Equal(t, "in_tune", string(est.State))
	assert.Equal(t, 0.0, est.Offset)
	assert.Equal(t, 196.0, est.TargetHz)

	rr = do(t, s, http.MethodGet, base, "")
	assert.Equal(t, 2, decode[session.Snapshot](t, rr).StringIndex)

	rr = do(t, s, http.MethodPost, base+"/target", `{"custom_hz":440}`)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, s, http.MethodPost, base+"/mode", `{"mode":"sideways"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestSetTargetVariants(t *testing.T) {
	s := newTestServer(t, &config.AppConfig{}, session.Options{})
	snap := createSession(t, s, "violin")
	path := "/sessions/" + snap.ID + "/target"

	cases := []struct {
		body   string
		status int
		target float64
	}{
		{`{"string_name":"A"}`, http.StatusOK, 440},
		{`{"custom_hz":"432.5"}`, http.StatusOK, 432.5},
		{`{"custom_hz":415}`, http.StatusOK, 415},
		{`{"custom_hz":"-3"}`, http.StatusUnprocessableEntity, 0},
		{`{"custom_hz":"abc"}`, http.StatusUnprocessableEntity, 0},
		{`{"string_index":4}`, http.StatusNotFound, 0},
		{`{"string_name":"B"}`, http.StatusNotFound, 0},
		{`{"string_index":0,"string_name":"G"}`, http.StatusBadRequest, 0},
		{`{}`, http.StatusBadRequest, 0},
		{`{"string_index":`, http.StatusBadRequest, 0},
	}
	for _, tc := range cases {
		rr := do(t, s, http.MethodPost, path, tc.body)
		require.Equal(t, tc.status, rr.Code, tc.body)
		if tc.status == http.StatusOK {
			assert.Equal(t, tc.target, decode[session.Snapshot](t, rr).TargetHz, tc.body)
		} else {
			assert.NotEmpty(t, decode[map[string]string](t, rr)["error"], tc.body)
		}
	}

	rr := do(t, s, http.MethodGet, "/sessions/"+snap.ID, "")
	assert.Equal(t, 415.0, decode[session.Snapshot](t, rr).TargetHz)
}

func TestCreateSessionResolvesInstrument(t *testing.T) {
	s := newTestServer(t, &config.AppConfig{}, session.Options{})

	assert.Equal(t, "Guitar", createSession(t, s, "guitr").Instrument)
	assert.Equal(t, "Violin", createSession(t, s, "Violn").Instrument)

	rr := do(t, s, http.MethodPost, "/sessions", `{"instrument":"theremin"}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, s, http.MethodPost, "/sessions", "")
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "Guitar", decode[session.Snapshot](t, rr).Instrument)
}

func TestSetProfileClearsTarget(t *testing.T) {
	s := newTestServer(t, &config.AppConfig{}, session.Options{})
	snap := createSession(t, s, "guitar")
	base := "/sessions/" + snap.ID
	do(t, s, http.MethodPost, base+"/target", `{"string_index":3}`)

	rr := do(t, s, http.MethodPost, base+"/profile", `{"instrument":"ukulele"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	got := decode[session.Snapshot](t, rr)
	assert.Equal(t, "Ukulele", got.Instrument)
	assert.False(t, got.HasTarget)
	assert.Equal(t, -1, got.StringIndex)
	assert.Len(t, got.Strings, 4)
}

func TestSetThreshold(t *testing.T) {
	s := newTestServer(t, &config.AppConfig{}, session.Options{})
	snap := createSession(t, s, "guitar")
	base := "/sessions/" + snap.ID

	rr := do(t, s, http.MethodPost, base+"/threshold", `{"threshold_db":-40}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, -40.0, decode[session.Snapshot](t, rr).ThresholdDB)

	rr = do(t, s, http.MethodPost, base+"/samples", `{"frequency_hz":110,"loudness_db":-45}`)
	assert.Equal(t, "silent", string(decode[estimateResponse](t, rr).State))

	rr = do(t, s, http.MethodPost, base+"/threshold", `{}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSamplesAreRateLimited(t *testing.T) {
	s := newTestServer(t, &config.AppConfig{}, session.Options{SamplesPerSecond: 0.001, SampleBurst: 1})
	snap := createSession(t, s, "guitar")
	path := "/sessions/" + snap.ID + "/samples"

	rr := do(t, s, http.MethodPost, path, `{"frequency_hz":110,"loudness_db":-20}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = do(t, s, http.MethodPost, path, `{"frequency_hz":110,"loudness_db":-20}`)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
}

func TestUnknownAndDeletedSessions(t *testing.T) {
	s := newTestServer(t, &config.AppConfig{}, session.Options{})

	rr := do(t, s, http.MethodGet, "/sessions/nope", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = do(t, s, http.MethodPost, "/sessions/nope/samples", `{"frequency_hz":110,"loudness_db":-20}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	snap := createSession(t, s, "guitar")
	rr = do(t, s, http.MethodGet, "/sessions", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[map[string][]session.Snapshot](t, rr)["sessions"], 1)

	rr = do(t, s, http.MethodDelete, "/sessions/"+snap.ID, "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = do(t, s, http.MethodGet, "/sessions/"+snap.ID, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = do(t, s, http.MethodDelete, "/sessions/"+snap.ID, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRejectsNegativeFrequency(t *testing.T) {
	s := newTestServer(t, &config.AppConfig{}, session.Options{})
	snap := createSession(t, s, "guitar")
	path := "/sessions/" + snap.ID + "/samples"

	rr := do(t, s, http.MethodPost, path, `{"frequency_hz":-5,"loudness_db":-20}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code, rr.Body.String())

	rr = do(t, s, http.MethodGet, "/sessions/"+snap.ID+"/estimate", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
}
