package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/metalblueberry/tuner/pkg/session"
	"github.com/metalblueberry/tuner/pkg/tuning"
)

type instrumentRequest struct {
	Instrument string `json:"instrument"`
}

type targetRequest struct {
	StringIndex *int            `json:"string_index"`
	StringName  *string         `json:"string_name"`
	CustomHz    json.RawMessage `json:"custom_hz"`
}

type modeRequest struct {
	Mode string `json:"mode"`
}

type thresholdRequest struct {
	ThresholdDB *float64 `json:"threshold_db"`
}

type estimateResponse struct {
	FrequencyHz   float64                  `json:"frequency_hz"`
	LoudnessDB    float64                  `json:"loudness_db"`
	State         tuning.Status            `json:"state"`
	Offset        float64                  `json:"offset"`
	MatchedString *tuning.StringDefinition `json:"matched_string,omitempty"`
	TargetHz      float64                  `json:"target_hz"`
	Slider        float64                  `json:"slider"`
	At            time.Time                `json:"at"`
}

func newEstimateResponse(r session.Reading) estimateResponse {
	return estimateResponse{
		FrequencyHz:   r.Sample.FrequencyHz,
		LoudnessDB:    r.Sample.LoudnessDB,
		State:         r.State.Status,
		Offset:        r.State.OffsetHz,
		MatchedString: r.State.Matched,
		TargetHz:      r.State.TargetHz,
		Slider:        r.State.SliderPosition(),
		At:            r.At,
	}
}

func (s *Server) listProfiles(w http.ResponseWriter, r *http.Request) {
	all := tuning.Profiles()
	out := make([]profileView, 0, len(all))
	for _, p := range all {
		out = append(out, profileView{Name: p.Name(), Strings: displayStrings(p)})
	}
	respondJSON(w, http.StatusOK, map[string]any{"profiles": out})
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"sessions": s.sessions.List()})
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req instrumentRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			s.respondErr(w, err)
			return
		}
	}
	name := strings.TrimSpace(req.Instrument)
	if name == "" {
		name = s.defaultInstrument()
	}
	p, err := resolveProfile(name)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	sess, err := s.sessions.Create(r.Context(), p)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, sess.Snapshot())
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setTarget(w http.ResponseWriter, r *http.Request) {
	var req targetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondErr(w, err)
		return
	}
	action, err := req.action()
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.update(w, r, action)
}

/*
 * Turns the request into exactly one target change.
 */
func (req targetRequest) action() (func(*session.Session) error, error) {
	set := 0
	if req.StringIndex != nil {
		set++
	}
	if req.StringName != nil {
		set++
	}
	if len(req.CustomHz) > 0 {
		set++
	}
	if set != 1 {
		return nil, fmt.Errorf("exactly one of string_index, string_name, custom_hz is required: %w", errBadRequest)
	}
	switch {
	case req.StringIndex != nil:
		idx := *req.StringIndex
		return func(s *session.Session) error { return s.SelectString(idx) }, nil
	case req.StringName != nil:
		name := strings.TrimSpace(*req.StringName)
		return func(s *session.Session) error { return s.SelectStringByName(name) }, nil
	}
	hz, err := parseCustomHz(req.CustomHz)
	if err != nil {
		return nil, err
	}
	return func(s *session.Session) error { return s.SetCustomTarget(hz) }, nil
}

/*
 * Accepts the frequency either as a JSON number or as text.
 */
func parseCustomHz(raw json.RawMessage) (float64, error) {
	text := string(raw)
	if strings.HasPrefix(strings.TrimSpace(text), `"`) {
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, fmt.Errorf("custom_hz: %w", errBadRequest)
		}
	}
	return tuning.ParseCustomTarget(text)
}

func (s *Server) setMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondErr(w, err)
		return
	}
	mode, err := tuning.ParseMode(req.Mode)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.update(w, r, func(sess *session.Session) error {
		sess.SetMode(mode)
		return nil
	})
}

func (s *Server) setProfile(w http.ResponseWriter, r *http.Request) {
	var req instrumentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondErr(w, err)
		return
	}
	p, err := resolveProfile(req.Instrument)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.update(w, r, func(sess *session.Session) error {
		sess.SetProfile(p)
		return nil
	})
}

func (s *Server) setThreshold(w http.ResponseWriter, r *http.Request) {
	var req thresholdRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondErr(w, err)
		return
	}
	if req.ThresholdDB == nil {
		s.respondErr(w, fmt.Errorf("threshold_db is required: %w", errBadRequest))
		return
	}
	db := *req.ThresholdDB
	s.update(w, r, func(sess *session.Session) error {
		sess.SetSilenceThreshold(db)
		return nil
	})
}

func (s *Server) update(w http.ResponseWriter, r *http.Request, action func(*session.Session) error) {
	sess, err := s.sessions.Update(r.Context(), chi.URLParam(r, "id"), action)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) pushSample(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := s.sessions.Get(id)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if !sess.AllowSample() {
		respondError(w, http.StatusTooManyRequests, "sample rate exceeded")
		return
	}
	var sample tuning.Sample
	if err := decodeJSON(w, r, &sample); err != nil {
		s.respondErr(w, err)
		return
	}
	if err := sample.Validate(); err != nil {
		s.respondErr(w, err)
		return
	}
	reading, err := s.sessions.Ingest(id, sample)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newEstimateResponse(reading))
}

func (s *Server) getEstimate(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	reading, ok := sess.Latest()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	respondJSON(w, http.StatusOK, newEstimateResponse(reading))
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	history := sess.History()
	out := make([]estimateResponse, 0, len(history))
	for _, reading := range history {
		out = append(out, newEstimateResponse(reading))
	}
	respondJSON(w, http.StatusOK, map[string]any{"readings": out})
}

func (s *Server) defaultInstrument() string {
	if s.cfg != nil && s.cfg.Tuning.DefaultInstrument != "" {
		return s.cfg.Tuning.DefaultInstrument
	}
	return tuning.Guitar.Name()
}
