package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tbxark/surveyagent/agent"
	"github.com/tbxark/surveyagent/types"
)

const (
	DefaultPersistQueueSize = 64
	DefaultPersistTimeout   = 30 * time.Second
	DefaultPersistWorkers   = 2
)

var ErrPersisterClosed = errors.New("persister is closed")

type Upserter interface {
	UpsertRecord(ctx context.Context, rec types.Record) error
}

// PersistError reports a record that could not be saved.
type PersistError struct {
	Record types.Record
	Err    error
}

func (e PersistError) Error() string {
	return fmt.Sprintf("persist record: %v", e.Err)
}

func (e PersistError) Unwrap() error {
	return e.Err
}

type PersisterOptions struct {
	QueueSize int
	Workers   int
	Timeout   time.Duration
	Events    *agent.EventLogger
	Logger    *slog.Logger
}

// Persister saves record snapshots in the background. Failures are logged and
// published on Errors, never returned to the turn that produced the record.
type Persister struct {
	store   Upserter
	timeout time.Duration
	events  *agent.EventLogger
	logger  *slog.Logger

	queue chan types.Record
	errs  chan PersistError
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewPersister(store Upserter, opts PersisterOptions) *Persister {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultPersistQueueSize
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultPersistWorkers
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultPersistTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	p := &Persister{
		store:   store,
		timeout: opts.Timeout,
		events:  opts.Events,
		logger:  opts.Logger,
		queue:   make(chan types.Record, opts.QueueSize),
		errs:    make(chan PersistError, opts.QueueSize),
	}
	p.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go p.work()
	}
	return p
}

// Errors delivers persistence failures. Failures are dropped when nobody reads
// and the buffer is full.
func (p *Persister) Errors() <-chan PersistError {
	return p.errs
}

// Submit enqueues records without blocking and returns how many were queued.
// Records without any filled field are skipped.
func (p *Persister) Submit(records ...types.Record) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	queued := 0
	for _, rec := range records {
		if !hasData(rec) {
			continue
		}
		if p.closed {
			p.report(rec, ErrPersisterClosed)
			continue
		}
		select {
		case p.queue <- rec.Clone():
			queued++
		default:
			p.report(rec, errors.New("persist queue is full"))
		}
	}
	return queued
}

// PersistNow saves records synchronously and returns how many were saved.
func (p *Persister) PersistNow(ctx context.Context, records ...types.Record) (int, error) {
	var errs []error
	saved := 0
	for _, rec := range records {
		if !hasData(rec) {
			continue
		}
		if err := p.save(ctx, rec); err != nil {
			errs = append(errs, err)
			continue
		}
		saved++
	}
	return saved, errors.Join(errs...)
}

// Close stops accepting records and waits until queued ones are saved.
func (p *Persister) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Persister) work() {
	defer p.wg.Done()
	for rec := range p.queue {
		_ = p.save(context.Background(), rec)
	}
}

func (p *Persister) save(ctx context.Context, rec types.Record) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("recover from panic: %v", r)
			p.report(rec, err)
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	start := time.Now()
	err = p.store.UpsertRecord(ctx, rec)
	p.events.Latency("persist", time.Since(start))
	if err != nil {
		p.report(rec, err)
		return err
	}
	p.logger.Debug("Persisted record", "fields", len(rec))
	return nil
}

func (p *Persister) report(rec types.Record, err error) {
	p.logger.Error("Failed to persist record", "error", err)
	p.events.Failure(agent.FailurePersistence, err)
	select {
	case p.errs <- PersistError{Record: rec, Err: err}:
	default:
	}
}

func hasData(rec types.Record) bool {
	for name := range rec {
		if rec.IsFilled(name) {
			return true
		}
	}
	return false
}
