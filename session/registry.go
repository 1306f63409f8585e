package session

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/tbxark/surveyagent/agent"
)

const DefaultSessionTimeout = 2 * time.Hour

type SweepReport struct {
	Expired   []string `json:"expired"`
	Persisted int      `json:"persisted"`
}

// Registry owns the live sessions of one process.
type Registry struct {
	mu        sync.Mutex
	sessions  Cache[*Session]
	machine   *agent.Machine
	persister *Persister
	events    *agent.EventLogger
	opts      Options
	logger    *slog.Logger
	now       func() time.Time
}

type RegistryOption func(*Registry)

func WithCache(c Cache[*Session]) RegistryOption {
	return func(r *Registry) {
		r.sessions = c
	}
}

func WithEvents(e *agent.EventLogger) RegistryOption {
	return func(r *Registry) {
		r.events = e
	}
}

func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

func WithNow(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.now = now
	}
}

func NewRegistry(machine *agent.Machine, persister *Persister, opts Options, ropts ...RegistryOption) (*Registry, error) {
	if machine == nil {
		return nil, errors.New("machine is required")
	}
	if persister == nil {
		return nil, errors.New("persister is required")
	}
	r := &Registry{
		sessions:  NewMemoryCache[*Session](),
		machine:   machine,
		persister: persister,
		opts:      opts.withDefaults(),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, o := range ropts {
		o(r)
	}
	return r, nil
}

func (r *Registry) Create(ctx context.Context, id, userID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	exists, err := r.sessions.Exists(ctx, id)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrSessionExists
	}
	s := newSession(id, userID, r.machine, r.persister, r.events, r.opts, r.now)
	if err := r.sessions.Set(ctx, id, s); err != nil {
		return nil, err
	}
	r.logger.Info("Created session", "session_id", id, "user_id", userID)
	return s, nil
}

func (r *Registry) Get(ctx context.Context, id string) (*Session, error) {
	s, ok, err := r.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Delete saves the session's records and removes it. Persistence failures are
// reported through the persister and do not prevent removal.
func (r *Registry) Delete(ctx context.Context, id string) (*Snapshot, error) {
	s, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.turnMu.Lock()
	defer s.turnMu.Unlock()
	if s.isEvicted() {
		return nil, ErrSessionNotFound
	}
	r.persist(ctx, s)
	snap := s.Snapshot(false)
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.sessions.Del(ctx, id); err != nil {
		return nil, err
	}
	s.evict()
	r.logger.Info("Deleted session", "session_id", id)
	return snap, nil
}

// persist saves the records of s that no earlier save point covered.
func (r *Registry) persist(ctx context.Context, s *Session) int {
	records := s.claim(s.PendingRecords())
	saved, err := r.persister.PersistNow(ctx, records...)
	if err != nil {
		s.release(records)
		r.logger.Warn("Failed to persist session", "session_id", s.id, "error", err)
	}
	return saved
}

// List returns snapshots ordered by creation time.
func (r *Registry) List(ctx context.Context) ([]*Snapshot, error) {
	sessions, err := r.sessions.Values(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*Snapshot, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Snapshot(false))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].SessionID < out[j].SessionID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *Registry) Len(ctx context.Context) int {
	n, err := r.sessions.Len(ctx)
	if err != nil {
		return 0
	}
	return n
}

// Sweep removes sessions idle for longer than timeout and persists their
// records. It works on a snapshot of the registry, so concurrent creates and
// deletes are safe; a session touched after the snapshot, or one with a turn
// in progress, is kept.
func (r *Registry) Sweep(ctx context.Context, timeout time.Duration) SweepReport {
	if timeout <= 0 {
		timeout = DefaultSessionTimeout
	}
	report := SweepReport{Expired: []string{}}
	sessions, err := r.sessions.Values(ctx)
	if err != nil {
		r.logger.Error("Failed to list sessions for sweep", "error", err)
		return report
	}
	for _, s := range sessions {
		if !r.expired(s, timeout) {
			continue
		}
		if !r.evictIfExpired(ctx, s, timeout) {
			continue
		}
		report.Persisted += r.persist(ctx, s)
		report.Expired = append(report.Expired, s.id)
	}
	if len(report.Expired) > 0 {
		r.logger.Info("Swept expired sessions", "count", len(report.Expired), "persisted", report.Persisted)
	}
	return report
}

func (r *Registry) expired(s *Session, timeout time.Duration) bool {
	return r.now().Sub(s.LastActivity()) > timeout
}

// evictIfExpired removes s if it is still registered, idle and not running a
// turn. An evicted session refuses further turns.
func (r *Registry) evictIfExpired(ctx context.Context, s *Session, timeout time.Duration) bool {
	if !s.turnMu.TryLock() {
		return false
	}
	defer s.turnMu.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok, err := r.sessions.Get(ctx, s.id)
	if err != nil || !ok || current != s {
		return false
	}
	if !r.expired(s, timeout) {
		return false
	}
	if r.sessions.Del(ctx, s.id) != nil {
		return false
	}
	s.evict()
	return true
}
