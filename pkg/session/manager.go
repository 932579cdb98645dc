package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/metalblueberry/tuner/pkg/logger"
	"github.com/metalblueberry/tuner/pkg/store"
	"github.com/metalblueberry/tuner/pkg/tuning"
	"github.com/robfig/cron/v3"
)

type Options struct {
	IdleTTL          time.Duration
	ReapInterval     time.Duration
	HistorySize      int
	SamplesPerSecond float64
	SampleBurst      int

	/*
	 * Silence threshold for new sessions. Nil selects the engine default, so
	 * an explicit 0 dB stays 0 dB.
	 */
	SilenceThresholdDB *float64
}

func (o Options) normalized() Options {
	if o.IdleTTL <= 0 {
		o.IdleTTL = 30 * time.Minute
	}
	if o.ReapInterval <= 0 {
		o.ReapInterval = time.Minute
	}
	if o.HistorySize <= 0 {
		o.HistorySize = 64
	}
	if o.SamplesPerSecond <= 0 {
		o.SamplesPerSecond = 20
	}
	if o.SampleBurst <= 0 {
		o.SampleBurst = int(o.SamplesPerSecond)
		if o.SampleBurst < 1 {
			o.SampleBurst = 1
		}
	}
	if o.SilenceThresholdDB == nil {
		db := tuning.DefaultSilenceThresholdDB
		o.SilenceThresholdDB = &db
	}
	return o
}

type Stats struct {
	Active   int
	Created  uint64
	Reaped   uint64
	Ingested map[tuning.Status]uint64
}

/*
 * Manager keeps the live sessions. Settings are written through to the store
 * on every user action so a session survives a restart.
 */
type Manager struct {
	opts  Options
	store store.SettingsStore
	log   *logger.Logger
	now   func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session

	statsMu  sync.Mutex
	created  uint64
	reaped   uint64
	ingested map[tuning.Status]uint64

	cron *cron.Cron
}

func NewManager(opts Options, st store.SettingsStore, log *logger.Logger) *Manager {
	return &Manager{
		opts:     opts.normalized(),
		store:    st,
		log:      log,
		now:      time.Now,
		sessions: map[string]*Session{},
		ingested: map[tuning.Status]uint64{},
	}
}

/*
 * Loads persisted sessions that are not idle yet.
 */
func (m *Manager) Restore(ctx context.Context) (int, error) {
	if m.store == nil {
		return 0, nil
	}
	all, err := m.store.List(ctx)
	if err != nil {
		return 0, err
	}
	restored := 0
	cutoff := m.now().Add(-m.opts.IdleTTL)
	for _, st := range all {
		if st.UpdatedAt.Before(cutoff) {
			continue
		}
		engine, err := restoreEngine(st)
		if err != nil {
			m.log.Errorf("skip session %s: %v", st.ID, err)
			continue
		}
		s := newSession(st.ID, engine, m.opts, m.now)
		s.createdAt = st.CreatedAt
		m.mu.Lock()
		m.sessions[st.ID] = s
		m.mu.Unlock()
		restored++
	}
	return restored, nil
}

func (m *Manager) Create(ctx context.Context, profile tuning.InstrumentProfile) (*Session, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("session id: %w", err)
	}
	engine := tuning.NewEngine(profile, tuning.WithSilenceThreshold(*m.opts.SilenceThresholdDB))
	s := newSession(id.String(), engine, m.opts, m.now)
	if err := m.persist(ctx, s); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()
	m.statsMu.Lock()
	m.created++
	m.statsMu.Unlock()
	m.log.Printf("session %s created for %s", s.id, profile.Name())
	return s, nil
}

/*
 * Returns a live session and marks it as used.
 */
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	s.Touch()
	return s, nil
}

func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if m.store != nil {
		if err := m.store.Delete(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
	}
	m.log.Printf("session %s deleted", id)
	return nil
}

/*
 * Returns snapshots ordered by creation time.
 */
func (m *Manager) List() []Snapshot {
	m.mu.RLock()
	out := make([]Snapshot, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Snapshot())
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

/*
 * Applies a user action to a session and persists the result.
 */
func (m *Manager) Update(ctx context.Context, id string, action func(*Session) error) (*Session, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	if err := action(s); err != nil {
		return nil, err
	}

	// Reap and Delete drop from the map before the store, so a session still
	// in the map under the read lock has not been removed from the store yet.
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.sessions[id]; !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err := m.persist(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

/*
 * Feeds a sample into one session.
 */
func (m *Manager) Ingest(id string, sample tuning.Sample) (Reading, error) {
	s, err := m.Get(id)
	if err != nil {
		return Reading{}, err
	}
	r := s.Ingest(sample)
	m.count(r.State.Status, 1)
	return r, nil
}

/*
 * Feeds a sample, typically from the shared microphone, into every
 * live session without touching their idle clocks.
 */
func (m *Manager) Broadcast(sample tuning.Sample) int {
	m.mu.RLock()
	targets := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		targets = append(targets, s)
	}
	m.mu.RUnlock()
	for _, s := range targets {
		r := s.Ingest(sample)
		m.count(r.State.Status, 1)
	}
	return len(targets)
}

/*
 * Drops sessions idle for longer than the TTL.
 */
func (m *Manager) Reap(ctx context.Context) int {
	cutoff := m.now().Add(-m.opts.IdleTTL)
	var expired []string
	m.mu.Lock()
	for id, s := range m.sessions {
		if s.LastSeen().Before(cutoff) {
			expired = append(expired, id)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()
	for _, id := range expired {
		if m.store != nil {
			if err := m.store.Delete(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
				m.log.Errorf("reap %s: %v", id, err)
			}
		}
	}
	if len(expired) > 0 {
		m.statsMu.Lock()
		m.reaped += uint64(len(expired))
		m.statsMu.Unlock()
		m.log.Printf("reaped %d idle sessions", len(expired))
	}
	return len(expired)
}

func (m *Manager) Start() error {
	m.cron = cron.New()
	schedule := fmt.Sprintf("@every %s", m.opts.ReapInterval)
	if _, err := m.cron.AddFunc(schedule, func() { m.Reap(context.Background()) }); err != nil {
		return fmt.Errorf("schedule reaper: %w", err)
	}
	m.cron.Start()
	return nil
}

func (m *Manager) Stop() {
	if m.cron == nil {
		return
	}
	<-m.cron.Stop().Done()
}

func (m *Manager) StatsSnapshot() Stats {
	m.mu.RLock()
	active := len(m.sessions)
	m.mu.RUnlock()
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	ingested := make(map[tuning.Status]uint64, len(m.ingested))
	for k, v := range m.ingested {
		ingested[k] = v
	}
	return Stats{
		Active:   active,
		Created:  m.created,
		Reaped:   m.reaped,
		Ingested: ingested,
	}
}

func (m *Manager) count(status tuning.Status, n uint64) {
	m.statsMu.Lock()
	m.ingested[status] += n
	m.statsMu.Unlock()
}

func (m *Manager) persist(ctx context.Context, s *Session) error {
	if m.store == nil {
		return nil
	}
	return m.store.Save(ctx, s.settings())
}
