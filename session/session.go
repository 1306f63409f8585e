package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/tbxark/surveyagent/agent"
	"github.com/tbxark/surveyagent/dialogue"
	"github.com/tbxark/surveyagent/types"
)

const (
	DefaultTurnTimeout       = 90 * time.Second
	DefaultMaxInternalErrors = 3
)

type Options struct {
	TurnTimeout       time.Duration
	MaxInternalErrors int
	MaxHistory        int
	// HistoryTolerance of zero compacts as soon as MaxHistory is exceeded;
	// a negative value selects the default.
	HistoryTolerance int
}

func (o Options) withDefaults() Options {
	if o.TurnTimeout <= 0 {
		o.TurnTimeout = DefaultTurnTimeout
	}
	if o.MaxInternalErrors <= 0 {
		o.MaxInternalErrors = DefaultMaxInternalErrors
	}
	if o.MaxHistory <= 0 {
		o.MaxHistory = agent.DefaultMaxHistory
	}
	if o.HistoryTolerance < 0 {
		o.HistoryTolerance = agent.DefaultHistoryTolerance
	}
	return o
}

// Snapshot is a read-only view of a session.
type Snapshot struct {
	SessionID     string           `json:"session_id"`
	UserID        string           `json:"user_id,omitempty"`
	Status        types.Phase      `json:"status"`
	CollectedData map[string]any   `json:"collected_data"`
	MissingFields []string         `json:"missing_fields"`
	FilledFields  int              `json:"filled_fields"`
	TotalFields   int              `json:"total_fields"`
	ActiveTopic   string           `json:"active_topic,omitempty"`
	Additional    []map[string]any `json:"additional,omitempty"`
	History       types.Turns      `json:"history,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	LastActivity  time.Time        `json:"last_activity"`
}

// Session serializes the turns of one conversation. Reads never wait for a
// turn in progress.
type Session struct {
	id        string
	userID    string
	createdAt time.Time

	machine   *agent.Machine
	persister *Persister
	events    *agent.EventLogger
	opts      Options
	now       func() time.Time

	turnMu sync.Mutex

	mu             sync.RWMutex
	state          *agent.State
	lastActivity   time.Time
	internalErrors int
	evicted        bool
	// saved holds the contents of records already handed to the persister.
	saved map[string]struct{}
}

func newSession(id, userID string, machine *agent.Machine, persister *Persister, events *agent.EventLogger, opts Options, now func() time.Time) *Session {
	opts = opts.withDefaults()
	created := now()
	return &Session{
		id:           id,
		userID:       userID,
		createdAt:    created,
		machine:      machine,
		persister:    persister,
		events:       events,
		opts:         opts,
		now:          now,
		state:        machine.NewState(opts.MaxHistory, opts.HistoryTolerance),
		lastActivity: created,
		saved:        make(map[string]struct{}),
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) UserID() string {
	return s.userID
}

type greeted struct {
	state *agent.State
	text  string
}

// Greet opens the conversation and returns the greeting. A greeting that is
// not ready within the turn timeout is replaced by the local one.
func (s *Session) Greet(ctx context.Context) string {
	s.turnMu.Lock()
	defer s.turnMu.Unlock()

	state := s.currentState()
	ctx, cancel := context.WithTimeout(ctx, s.opts.TurnTimeout)
	defer cancel()

	done := make(chan greeted, 1)
	go func() {
		next, text := s.machine.Greet(ctx, state)
		done <- greeted{state: next, text: text}
	}()

	var g greeted
	select {
	case g = <-done:
	case <-ctx.Done():
		s.events.Failure(agent.FailureTimeout, ctx.Err(), "session_id", s.id, "op", "greeting")
		g.state, g.text = s.machine.FallbackGreet(state)
	}
	s.commit(g.state)
	return g.text
}

// ProcessTurn runs one user utterance through the state machine. When the
// turn times out the state is left exactly as it was.
func (s *Session) ProcessTurn(ctx context.Context, utterance string) (*agent.Response, error) {
	s.turnMu.Lock()
	defer s.turnMu.Unlock()

	if s.isEvicted() {
		return nil, ErrSessionNotFound
	}
	s.touch()
	state := s.currentState()
	if state.Phase.Terminal() {
		return nil, ErrSessionTerminal
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.TurnTimeout)
	defer cancel()

	done := make(chan *agent.Outcome, 1)
	go func() {
		done <- s.machine.Step(ctx, state, utterance)
	}()

	var out *agent.Outcome
	select {
	case <-ctx.Done():
		return nil, s.abandon(ctx)
	case out = <-done:
		if ctx.Err() != nil {
			return nil, s.abandon(ctx)
		}
	}

	if errors.Is(out.Err, agent.ErrTerminal) {
		return nil, ErrSessionTerminal
	}
	if errors.Is(out.Err, agent.ErrInternal) {
		return s.internalFailure(state, out.Response), nil
	}

	s.mu.Lock()
	s.internalErrors = 0
	s.mu.Unlock()
	s.commit(out.State)
	s.persister.Submit(s.claim(out.Persist)...)
	return out.Response, nil
}

func (s *Session) abandon(ctx context.Context) error {
	err := ctx.Err()
	s.events.Failure(agent.FailureTimeout, err, "session_id", s.id)
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTurnTimeout
	}
	return err
}

// internalFailure counts consecutive internal errors and moves the session to
// the error phase once the limit is reached.
func (s *Session) internalFailure(state *agent.State, resp *agent.Response) *agent.Response {
	s.mu.Lock()
	s.internalErrors++
	escalate := s.internalErrors >= s.opts.MaxInternalErrors
	s.mu.Unlock()
	if !escalate {
		return resp
	}
	next := state.Clone()
	next.Phase = types.PhaseError
	s.commit(next)
	s.persister.Submit(s.claim(next.Pending())...)
	escalated := *resp
	escalated.Status = types.PhaseError
	escalated.Message = dialogue.MessageApology
	return &escalated
}

func (s *Session) commit(state *agent.State) {
	s.mu.Lock()
	s.state = state
	s.lastActivity = s.now()
	s.mu.Unlock()
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = s.now()
	s.mu.Unlock()
}

func (s *Session) currentState() *agent.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) Phase() types.Phase {
	return s.currentState().Phase
}

func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

// claim drops records whose exact contents were already handed to the
// persister and marks the rest as handed over. A record without a key value
// cannot be matched on upsert, so saving it twice would store it twice.
func (s *Session) claim(records []types.Record) []types.Record {
	schema := s.machine.Schema()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Record, 0, len(records))
	for _, rec := range records {
		fp := fingerprint(schema, rec)
		if _, ok := s.saved[fp]; ok {
			continue
		}
		s.saved[fp] = struct{}{}
		out = append(out, rec)
	}
	return out
}

// release forgets records whose save failed so a later save point retries them.
func (s *Session) release(records []types.Record) {
	schema := s.machine.Schema()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range records {
		delete(s.saved, fingerprint(schema, rec))
	}
}

func fingerprint(schema *types.Schema, rec types.Record) string {
	var sb strings.Builder
	for _, name := range schema.Names() {
		v, _ := rec.Get(name)
		sb.WriteString(v)
		sb.WriteByte(0)
	}
	return sb.String()
}

// evict marks the session as removed from its registry. Callers hold turnMu.
func (s *Session) evict() {
	s.mu.Lock()
	s.evicted = true
	s.mu.Unlock()
}

func (s *Session) isEvicted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.evicted
}

// PendingRecords returns snapshots of the primary record and any in-flight
// secondary record.
func (s *Session) PendingRecords() []types.Record {
	return s.currentState().Pending()
}

func (s *Session) Snapshot(withHistory bool) *Snapshot {
	s.mu.RLock()
	state := s.state
	last := s.lastActivity
	s.mu.RUnlock()

	schema := s.machine.Schema()
	snap := &Snapshot{
		SessionID:     s.id,
		UserID:        s.userID,
		Status:        state.Phase,
		CollectedData: state.Primary.Plain(),
		MissingFields: schema.Missing(state.Primary),
		FilledFields:  schema.Filled(state.Primary),
		TotalFields:   schema.Len(),
		CreatedAt:     s.createdAt,
		LastActivity:  last,
	}
	if state.Sub != nil {
		snap.ActiveTopic = state.Sub.Topic
	}
	for _, rec := range state.Additional {
		snap.Additional = append(snap.Additional, rec.Plain())
	}
	if withHistory {
		snap.History = state.History.Turns()
	}
	return snap
}
