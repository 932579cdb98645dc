package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/metalblueberry/tuner/pkg/circular"
	"github.com/metalblueberry/tuner/pkg/store"
	"github.com/metalblueberry/tuner/pkg/tuning"
	"golang.org/x/time/rate"
)

var (
	ErrNotFound       = errors.New("session not found")
	ErrAutoModeActive = errors.New("custom target requires manual mode")
)

/*
 * Reading is one ingested sample together with the state it produced.
 */
type Reading struct {
	Sample tuning.Sample `json:"sample"`
	State  tuning.State  `json:"state"`
	At     time.Time     `json:"at"`
}

/*
 * Snapshot is a consistent copy of a session's user-visible settings.
 */
type Snapshot struct {
	ID          string                    `json:"id"`
	Instrument  string                    `json:"instrument"`
	Strings     []tuning.StringDefinition `json:"strings"`
	Mode        tuning.Mode               `json:"mode"`
	TargetHz    float64                   `json:"target_hz"`
	HasTarget   bool                      `json:"has_target"`
	StringIndex int                       `json:"string_index"`
	ThresholdDB float64                   `json:"threshold_db"`
	CreatedAt   time.Time                 `json:"created_at"`
	LastSeen    time.Time                 `json:"last_seen"`
}

/*
 * Session owns one tuning engine. Every method locks, so the engine only ever
 * sees a single writer.
 */
type Session struct {
	id        string
	createdAt time.Time
	now       func() time.Time

	mu       sync.Mutex
	engine   *tuning.Engine
	lastSeen time.Time
	history  *circular.Buffer[Reading]
	limiter  *rate.Limiter
}

func newSession(id string, engine *tuning.Engine, opts Options, now func() time.Time) *Session {
	t := now()
	return &Session{
		id:        id,
		createdAt: t,
		now:       now,
		engine:    engine,
		lastSeen:  t,
		history:   circular.CreateBuffer[Reading](opts.HistorySize),
		limiter:   rate.NewLimiter(rate.Limit(opts.SamplesPerSecond), opts.SampleBurst),
	}
}

func (s *Session) ID() string {
	return s.id
}

/*
 * Runs a sample through the engine and records the result.
 */
func (s *Session) Ingest(sample tuning.Sample) Reading {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := Reading{
		Sample: sample,
		State:  s.engine.IngestSample(sample),
		At:     s.now(),
	}
	s.history.Enqueue(r)
	return r
}

/*
 * Reports whether a client may push another sample right now.
 */
func (s *Session) AllowSample() bool {
	return s.limiter.Allow()
}

func (s *Session) Latest() (Reading, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Newest(0)
}

/*
 * Returns the recent readings, oldest first.
 */
func (s *Session) History() []Reading {
	return s.history.Snapshot()
}

func (s *Session) SelectString(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = s.now()
	return s.engine.SelectString(index)
}

func (s *Session) SelectStringByName(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = s.now()
	return s.engine.SelectStringByName(name)
}

/*
 * Refuses custom pitches while automatic mode would overwrite
 * them on the next sample.
 */
func (s *Session) SetCustomTarget(hz float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = s.now()
	if s.engine.Mode() == tuning.ModeAuto {
		return ErrAutoModeActive
	}
	return s.engine.SetCustomTarget(hz)
}

func (s *Session) SetMode(m tuning.Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = s.now()
	s.engine.SetMode(m)
}

func (s *Session) SetProfile(p tuning.InstrumentProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = s.now()
	s.engine.SetProfile(p)
}

func (s *Session) SetSilenceThreshold(db float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = s.now()
	s.engine.SetSilenceThreshold(db)
}

/*
 * Marks the session as used by a client.
 */
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastSeen = s.now()
	s.mu.Unlock()
}

func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	target, ok := s.engine.Target()
	p := s.engine.Profile()
	return Snapshot{
		ID:          s.id,
		Instrument:  p.Name(),
		Strings:     p.Strings(),
		Mode:        s.engine.Mode(),
		TargetHz:    target,
		HasTarget:   ok,
		StringIndex: s.engine.SelectedIndex(),
		ThresholdDB: s.engine.SilenceThreshold(),
		CreatedAt:   s.createdAt,
		LastSeen:    s.lastSeen,
	}
}

func (s *Session) settings() store.Settings {
	snap := s.Snapshot()
	return store.Settings{
		ID:          snap.ID,
		Instrument:  snap.Instrument,
		Mode:        string(snap.Mode),
		TargetHz:    snap.TargetHz,
		HasTarget:   snap.HasTarget,
		StringIndex: snap.StringIndex,
		ThresholdDB: snap.ThresholdDB,
		CreatedAt:   snap.CreatedAt,
	}
}

/*
 * Rebuilds an engine from persisted settings.
 */
func restoreEngine(st store.Settings) (*tuning.Engine, error) {
	p, err := tuning.LookupProfile(st.Instrument)
	if err != nil {
		return nil, err
	}
	mode, err := tuning.ParseMode(st.Mode)
	if err != nil {
		return nil, err
	}
	e := tuning.NewEngine(p, tuning.WithSilenceThreshold(st.ThresholdDB))
	switch {
	case st.StringIndex >= 0:
		if err := e.SelectString(st.StringIndex); err != nil {
			return nil, fmt.Errorf("restore %s: %w", st.ID, err)
		}
	case st.HasTarget:
		if err := e.SetCustomTarget(st.TargetHz); err != nil {
			return nil, fmt.Errorf("restore %s: %w", st.ID, err)
		}
	}
	e.SetMode(mode)
	return e, nil
}
