package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudwego/eino/adk"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/require"

	"github.com/tbxark/surveyagent/agent"
	"github.com/tbxark/surveyagent/dialogue"
	"github.com/tbxark/surveyagent/extract"
	"github.com/tbxark/surveyagent/store"
	"github.com/tbxark/surveyagent/types"
)

type funcExtractor func(ctx context.Context, req *extract.Request) *extract.Result

func (f funcExtractor) Extract(ctx context.Context, req *extract.Request) *extract.Result {
	return f(ctx, req)
}

func values(v map[string]any) funcExtractor {
	return func(ctx context.Context, req *extract.Request) *extract.Result {
		return &extract.Result{Values: v}
	}
}

type recordingStore struct {
	mu      sync.Mutex
	records []types.Record
	err     error
}

func (s *recordingStore) UpsertRecord(ctx context.Context, rec types.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *recordingStore) saved() []types.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Record(nil), s.records...)
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func testCatalog() *types.Catalog {
	return &types.Catalog{
		Schema: types.MustSchema("",
			types.Field{Name: "Initiative", Definition: "The name of the AI initiative"},
			types.Field{Name: "Budget", Definition: "The approved budget"},
		),
	}
}

func newRegistry(t *testing.T, ex extract.Extractor, store Upserter, opts Options, ropts ...RegistryOption) (*Registry, *Persister) {
	t.Helper()
	m, err := agent.NewMachine(testCatalog(), ex, nil)
	require.NoError(t, err)
	p := NewPersister(store, PersisterOptions{QueueSize: 8, Timeout: time.Second})
	r, err := NewRegistry(m, p, opts, ropts...)
	require.NoError(t, err)
	return r, p
}

func TestSession_ProcessTurnPersistsOnFollowUp(t *testing.T) {
	ctx := context.Background()
	store := &recordingStore{}
	r, p := newRegistry(t, values(map[string]any{"Initiative": "chatbot", "Budget": "500k"}), store, Options{})

	s, err := r.Create(ctx, "s1", "u1")
	require.NoError(t, err)
	require.NotEmpty(t, s.Greet(ctx))

	resp, err := s.ProcessTurn(ctx, "We're building a chatbot, budget 500k")
	require.NoError(t, err)
	require.Equal(t, types.PhaseFollowUp, resp.Status)

	resp, err = s.ProcessTurn(ctx, "bye")
	require.NoError(t, err)
	require.Equal(t, types.PhaseCompleted, resp.Status)
	require.Equal(t, map[string]any{"Initiative": "chatbot", "Budget": "$0.5M"}, resp.CollectedData)

	_, err = s.ProcessTurn(ctx, "hello?")
	require.ErrorIs(t, err, ErrSessionTerminal)

	p.Close()
	require.Len(t, store.saved(), 1)
	snap := s.Snapshot(true)
	require.Equal(t, 2, snap.FilledFields)
	require.Len(t, snap.History, 5)
}

func TestSession_TimeoutLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	var block atomic.Bool
	block.Store(true)
	ex := funcExtractor(func(ctx context.Context, req *extract.Request) *extract.Result {
		if block.Load() {
			<-ctx.Done()
		}
		return &extract.Result{Values: map[string]any{"Initiative": "late"}}
	})
	r, p := newRegistry(t, ex, &recordingStore{}, Options{TurnTimeout: 50 * time.Millisecond})
	defer p.Close()

	s, err := r.Create(ctx, "s1", "")
	require.NoError(t, err)
	_, err = s.ProcessTurn(ctx, "a chatbot")
	require.ErrorIs(t, err, ErrTurnTimeout)

	snap := s.Snapshot(true)
	require.Equal(t, types.PhaseCollecting, snap.Status)
	require.Zero(t, snap.FilledFields)
	require.Empty(t, snap.History)

	block.Store(false)
	resp, err := s.ProcessTurn(ctx, "a chatbot")
	require.NoError(t, err)
	require.Equal(t, "late", resp.CollectedData["Initiative"])
}

func TestSession_InternalErrorsEscalate(t *testing.T) {
	ctx := context.Background()
	ex := funcExtractor(func(ctx context.Context, req *extract.Request) *extract.Result {
		panic("broken extractor")
	})
	r, p := newRegistry(t, ex, &recordingStore{}, Options{MaxInternalErrors: 2})
	defer p.Close()

	s, err := r.Create(ctx, "s1", "")
	require.NoError(t, err)
	resp, err := s.ProcessTurn(ctx, "a chatbot")
	require.NoError(t, err)
	require.Equal(t, types.PhaseCollecting, resp.Status)

	resp, err = s.ProcessTurn(ctx, "a chatbot")
	require.NoError(t, err)
	require.Equal(t, types.PhaseError, resp.Status)

	_, err = s.ProcessTurn(ctx, "a chatbot")
	require.ErrorIs(t, err, ErrSessionTerminal)
}

func TestSession_TurnsAreSerialized(t *testing.T) {
	ctx := context.Background()
	var active, peak atomic.Int32
	ex := funcExtractor(func(ctx context.Context, req *extract.Request) *extract.Result {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		active.Add(-1)
		return &extract.Result{Values: map[string]any{}}
	})
	r, p := newRegistry(t, ex, &recordingStore{}, Options{})
	defer p.Close()
	s, err := r.Create(ctx, "s1", "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ProcessTurn(ctx, "something")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, int32(1), peak.Load())
	require.Len(t, s.Snapshot(true).History, 16)
}

func TestRegistry_CreateGetDelete(t *testing.T) {
	ctx := context.Background()
	store := &recordingStore{}
	r, p := newRegistry(t, values(map[string]any{"Initiative": "chatbot"}), store, Options{})
	defer p.Close()

	s, err := r.Create(ctx, "s1", "u1")
	require.NoError(t, err)
	_, err = r.Create(ctx, "s1", "u1")
	require.ErrorIs(t, err, ErrSessionExists)

	_, err = r.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrSessionNotFound)

	_, err = s.ProcessTurn(ctx, "a chatbot")
	require.NoError(t, err)

	snap, err := r.Delete(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, "u1", snap.UserID)
	require.Equal(t, 1, snap.FilledFields)
	require.Len(t, store.saved(), 1)
	require.Zero(t, r.Len(ctx))

	_, err = r.Delete(ctx, "s1")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRegistry_Sweep(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
	store := &recordingStore{}
	r, p := newRegistry(t, values(map[string]any{"Initiative": "chatbot"}), store, Options{}, WithNow(c.Now))
	defer p.Close()

	idle, err := r.Create(ctx, "idle", "")
	require.NoError(t, err)
	_, err = idle.ProcessTurn(ctx, "a chatbot")
	require.NoError(t, err)
	busy, err := r.Create(ctx, "busy", "")
	require.NoError(t, err)
	_, err = r.Create(ctx, "empty", "")
	require.NoError(t, err)

	c.Advance(time.Hour)
	report := r.Sweep(ctx, 2*time.Hour)
	require.Empty(t, report.Expired)

	c.Advance(90 * time.Minute)
	_, err = busy.ProcessTurn(ctx, "still here")
	require.NoError(t, err)

	report = r.Sweep(ctx, 2*time.Hour)
	require.ElementsMatch(t, []string{"idle", "empty"}, report.Expired)
	require.Equal(t, 1, report.Persisted)
	require.Len(t, store.saved(), 1)
	require.Equal(t, 1, r.Len(ctx))

	_, err = r.Get(ctx, "busy")
	require.NoError(t, err)
	report = r.Sweep(ctx, 2*time.Hour)
	require.Empty(t, report.Expired)

	list, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "busy", list[0].SessionID)
}

func TestPersister(t *testing.T) {
	s := testCatalog().Schema
	full := s.NewRecord()
	full.Set("Initiative", "chatbot")

	store := &recordingStore{}
	p := NewPersister(store, PersisterOptions{QueueSize: 4})
	require.Equal(t, 1, p.Submit(s.NewRecord(), full))
	p.Close()
	require.Len(t, store.saved(), 1)
	require.Zero(t, p.Submit(full))
	perr := <-p.Errors()
	require.ErrorIs(t, perr, ErrPersisterClosed)

	failing := &recordingStore{err: errors.New("disk full")}
	p = NewPersister(failing, PersisterOptions{})
	p.Submit(full)
	select {
	case perr = <-p.Errors():
		require.EqualError(t, perr.Err, "disk full")
	case <-time.After(time.Second):
		t.Fatal("expected a persistence error")
	}
	n, err := p.PersistNow(context.Background(), full)
	require.Error(t, err)
	require.Zero(t, n)
	p.Close()
}

func TestAgent_Run(t *testing.T) {
	r, p := newRegistry(t, values(map[string]any{"Initiative": "chatbot"}), &recordingStore{}, Options{})
	defer p.Close()
	a := NewAgent("survey", "collects AI initiatives", r)

	ctx := WithSessionID(context.Background(), "cli")
	iter := a.Run(ctx, &adk.AgentInput{Messages: []adk.Message{schema.UserMessage("a chatbot")}})
	event, ok := iter.Next()
	require.True(t, ok)
	require.NoError(t, event.Err)
	require.Equal(t, "Could you tell me more about the approved budget?", event.Output.MessageOutput.Message.Content)

	iter = a.Run(context.Background(), &adk.AgentInput{Messages: []adk.Message{schema.UserMessage("hi")}})
	event, ok = iter.Next()
	require.True(t, ok)
	require.Error(t, event.Err)
}

func TestSession_KeylessRecordStoredOnce(t *testing.T) {
	ctx := context.Background()
	catalog := testCatalog()
	mem := store.NewMemoryStore(catalog.Schema, "")
	r, p := newRegistry(t, values(map[string]any{"Budget": "500k"}), mem, Options{})

	s, err := r.Create(ctx, "s1", "")
	require.NoError(t, err)
	_, err = s.ProcessTurn(ctx, "budget is 500k")
	require.NoError(t, err)
	resp, err := s.ProcessTurn(ctx, "bye")
	require.NoError(t, err)
	require.Equal(t, types.PhaseFollowUp, resp.Status)
	resp, err = s.ProcessTurn(ctx, "bye")
	require.NoError(t, err)
	require.Equal(t, types.PhaseCompleted, resp.Status)
	_, err = r.Delete(ctx, "s1")
	require.NoError(t, err)
	p.Close()

	rows := mem.Records()
	require.Len(t, rows, 1)
	v, _ := rows[0].Get("Budget")
	require.Equal(t, "$0.5M", v)
	require.False(t, rows[0].IsFilled("Initiative"))
}

type stalledGreeter struct {
	dialogue.LocalGenerator
	release chan struct{}
}

func (g stalledGreeter) Greeting(ctx context.Context, req *dialogue.GreetingRequest) (string, error) {
	<-g.release
	return "too late", nil
}

func TestSession_GreetFallsBackOnTimeout(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	defer close(release)
	m, err := agent.NewMachine(testCatalog(), values(map[string]any{}), stalledGreeter{release: release})
	require.NoError(t, err)
	p := NewPersister(&recordingStore{}, PersisterOptions{})
	defer p.Close()
	r, err := NewRegistry(m, p, Options{TurnTimeout: 50 * time.Millisecond})
	require.NoError(t, err)

	s, err := r.Create(ctx, "s1", "")
	require.NoError(t, err)
	start := time.Now()
	greeting := s.Greet(ctx)
	require.Less(t, time.Since(start), 2*time.Second)

	_, local := m.FallbackGreet(m.NewState(0, 0))
	require.Equal(t, local, greeting)
	history := s.Snapshot(true).History
	require.Len(t, history, 1)
	require.Equal(t, local, history[0].Text)
}

func TestSession_HistoryToleranceZero(t *testing.T) {
	require.Equal(t, 0, Options{}.withDefaults().HistoryTolerance)
	require.Equal(t, agent.DefaultHistoryTolerance, Options{HistoryTolerance: -1}.withDefaults().HistoryTolerance)

	ctx := context.Background()
	r, p := newRegistry(t, values(map[string]any{}), &recordingStore{}, Options{MaxHistory: 6})
	defer p.Close()
	s, err := r.Create(ctx, "s1", "")
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		_, err = s.ProcessTurn(ctx, "not sure yet")
		require.NoError(t, err)
	}
	require.Len(t, s.Snapshot(true).History, 6)
}

func TestRegistry_SweepSkipsBusyAndRefusesEvicted(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	var hold atomic.Bool
	hold.Store(true)
	ex := funcExtractor(func(ctx context.Context, req *extract.Request) *extract.Result {
		if hold.Load() {
			started <- struct{}{}
			<-release
		}
		return &extract.Result{Values: map[string]any{"Initiative": "chatbot"}}
	})
	store := &recordingStore{}
	r, p := newRegistry(t, ex, store, Options{}, WithNow(c.Now))
	defer p.Close()

	s, err := r.Create(ctx, "s1", "")
	require.NoError(t, err)
	errs := make(chan error, 1)
	go func() {
		_, err := s.ProcessTurn(ctx, "a chatbot")
		errs <- err
	}()
	<-started
	c.Advance(3 * time.Hour)
	report := r.Sweep(ctx, 2*time.Hour)
	require.Empty(t, report.Expired)
	hold.Store(false)
	close(release)
	require.NoError(t, <-errs)

	c.Advance(3 * time.Hour)
	report = r.Sweep(ctx, 2*time.Hour)
	require.Equal(t, []string{"s1"}, report.Expired)
	require.Equal(t, 1, report.Persisted)

	_, err = s.ProcessTurn(ctx, "one more")
	require.ErrorIs(t, err, ErrSessionNotFound)
	_, err = r.Delete(ctx, "s1")
	require.ErrorIs(t, err, ErrSessionNotFound)
	require.Len(t, store.saved(), 1)
}
