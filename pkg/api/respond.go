package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/metalblueberry/tuner/pkg/session"
	"github.com/metalblueberry/tuner/pkg/tuning"
)

const maxBodyBytes = 1 << 16

var errBadRequest = errors.New("bad request")

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

/*
 * Maps package sentinels to status codes.
 */
func (s *Server) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, tuning.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrAutoModeActive):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, tuning.ErrInvalidValue):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, errBadRequest):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Errorf("request failed: %v", err)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("empty body: %w", errBadRequest)
		}
		return fmt.Errorf("%v: %w", err, errBadRequest)
	}
	return nil
}
