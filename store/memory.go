package store

import (
	"context"
	"sync"

	"github.com/tbxark/surveyagent/types"
)

type MemoryStore struct {
	mu      sync.RWMutex
	schema  *types.Schema
	context string
	records []types.Record
}

// NewMemoryStore keeps records in process memory. previous is given oldest first.
func NewMemoryStore(schema *types.Schema, customerContext string, previous ...types.Record) *MemoryStore {
	records := make([]types.Record, 0, len(previous))
	for _, rec := range previous {
		records = append(records, schema.Conform(rec))
	}
	return &MemoryStore{schema: schema, context: customerContext, records: records}
}

func (m *MemoryStore) LoadInitialContext(ctx context.Context) (string, error) {
	return m.context, nil
}

func (m *MemoryStore) LoadSchema(ctx context.Context) (*types.Schema, error) {
	return m.schema, nil
}

func (m *MemoryStore) LoadPreviousRecords(ctx context.Context) (types.PreviousRecords, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return newestFirst(m.records), nil
}

func (m *MemoryStore) UpsertRecord(ctx context.Context, rec types.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	records, err := upsert(m.schema, m.records, rec)
	if err != nil {
		return err
	}
	m.records = records
	return nil
}

// Records returns the stored records, oldest first.
func (m *MemoryStore) Records() []types.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Record, len(m.records))
	for i, rec := range m.records {
		out[i] = rec.Clone()
	}
	return out
}

var _ RecordStore = (*MemoryStore)(nil)
