package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tbxark/surveyagent/types"
)

func testSchema() *types.Schema {
	return types.MustSchema("Initiative",
		types.Field{Name: "Initiative", Definition: "The name of the AI initiative"},
		types.Field{Name: "Budget", Definition: "The approved budget"},
		types.Field{Name: "Department", Definition: "The owning department"},
	)
}

func record(kv ...string) types.Record {
	rec := testSchema().NewRecord()
	for i := 0; i+1 < len(kv); i += 2 {
		rec.Set(kv[i], kv[i+1])
	}
	return rec
}

func TestMerge_KeepsStoredValues(t *testing.T) {
	s := testSchema()
	merged, err := Merge(s,
		record("Initiative", "Chatbot", "Budget", "$1.0M"),
		record("Initiative", "chatbot", "Department", "Finance"),
	)
	require.NoError(t, err)
	require.Equal(t, map[string]any{
		"Initiative": "chatbot",
		"Budget":     "$1.0M",
		"Department": "Finance",
	}, merged.Plain())
}

func TestMemoryStore_Upsert(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore(testSchema(), "Customer context:\nCompany: Acme", record("Initiative", "Vision QA"))

	require.NoError(t, m.UpsertRecord(ctx, record("Initiative", "chatbot")))
	require.NoError(t, m.UpsertRecord(ctx, record("Initiative", " Chatbot ", "Budget", "$0.5M")))
	require.NoError(t, m.UpsertRecord(ctx, record("Budget", "$2.0M")))

	records := m.Records()
	require.Len(t, records, 3)
	require.Equal(t, map[string]any{"Initiative": "chatbot", "Budget": "$0.5M", "Department": nil}, records[1].Plain())
	require.Len(t, records[2], 3)

	prev, err := m.LoadPreviousRecords(ctx)
	require.NoError(t, err)
	v, _ := prev[2].Get("Initiative")
	require.Equal(t, "Vision QA", v)
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestCSVStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, SlotsFile, "field_name,definition\nInitiative,The name of the AI initiative\nBudget,The approved budget\nTech Stack,\"Tools, frameworks and platforms\"\n")
	writeFile(t, dir, ContextFile, "Company,Industry,Notes\nAcme,Retail,\n")

	s, err := NewCSVStore(dir, "Initiative")
	require.NoError(t, err)

	schema, err := s.LoadSchema(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"Initiative", "Budget", "Tech Stack"}, schema.Names())
	f, _ := schema.Lookup("Tech Stack")
	require.Equal(t, "Tools, frameworks and platforms", f.Definition)
	require.Equal(t, types.KindList, f.Kind)

	customerContext, err := s.LoadInitialContext(ctx)
	require.NoError(t, err)
	require.Equal(t, "Customer context:\nCompany: Acme\nIndustry: Retail", customerContext)

	prev, err := s.LoadPreviousRecords(ctx)
	require.NoError(t, err)
	require.Empty(t, prev)

	rec := schema.NewRecord()
	rec.Set("Initiative", "chatbot")
	require.NoError(t, s.UpsertRecord(ctx, rec))
	rec = schema.NewRecord()
	rec.Set("Initiative", "Chatbot")
	rec.Set("Tech Stack", "Go; Postgres")
	require.NoError(t, s.UpsertRecord(ctx, rec))
	rec = schema.NewRecord()
	rec.Set("Initiative", "forecasting")
	require.NoError(t, s.UpsertRecord(ctx, rec))

	prev, err = s.LoadPreviousRecords(ctx)
	require.NoError(t, err)
	require.Len(t, prev, 2)
	v, _ := prev[0].Get("Initiative")
	require.Equal(t, "forecasting", v)
	v, _ = prev[1].Get("Tech Stack")
	require.Equal(t, "Go; Postgres", v)
	require.False(t, prev[1].IsFilled("Budget"))

	_, err = NewCSVStore(filepath.Join(dir, "missing"), "")
	require.Error(t, err)
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "survey.db"), "Initiative")
	require.NoError(t, err)
	defer s.Close()

	_, err = s.LoadSchema(ctx)
	require.Error(t, err)

	require.NoError(t, s.Seed(ctx, testSchema().Fields(), []ContextEntry{
		{Name: "Company", Value: "Acme"},
		{Name: "Region", Value: "EMEA"},
	}))
	schema, err := s.LoadSchema(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"Initiative", "Budget", "Department"}, schema.Names())

	customerContext, err := s.LoadInitialContext(ctx)
	require.NoError(t, err)
	require.Equal(t, "Customer context:\nCompany: Acme\nRegion: EMEA", customerContext)

	require.NoError(t, s.UpsertRecord(ctx, record("Initiative", "chatbot", "Budget", "$0.5M")))
	require.NoError(t, s.UpsertRecord(ctx, record("Initiative", "CHATBOT", "Department", "Finance")))
	require.NoError(t, s.UpsertRecord(ctx, record("Initiative", "forecasting")))

	prev, err := s.LoadPreviousRecords(ctx)
	require.NoError(t, err)
	require.Len(t, prev, 2)
	require.Equal(t, map[string]any{"Initiative": "chatbot", "Budget": "$0.5M", "Department": "Finance"}, prev[1].Plain())
}

type failingStore struct{}

func (failingStore) LoadInitialContext(ctx context.Context) (string, error) {
	return "", errors.New("unreachable")
}

func (failingStore) LoadSchema(ctx context.Context) (*types.Schema, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (failingStore) LoadPreviousRecords(ctx context.Context) (types.PreviousRecords, error) {
	return nil, errors.New("unreachable")
}

func (failingStore) UpsertRecord(ctx context.Context, rec types.Record) error {
	return errors.New("unreachable")
}

func TestLoadCatalog(t *testing.T) {
	ctx := context.Background()
	catalog, err := LoadCatalog(ctx, failingStore{}, 20*time.Millisecond, nil)
	require.NoError(t, err)
	require.Equal(t, FallbackFieldNames, catalog.Schema.Names())
	require.Equal(t, DefaultContext, catalog.Context)
	require.Empty(t, catalog.Previous)

	m := NewMemoryStore(testSchema(), "Customer context:\nCompany: Acme", record("Initiative", "chatbot"))
	catalog, err = LoadCatalog(ctx, m, time.Second, nil)
	require.NoError(t, err)
	require.Equal(t, 3, catalog.Schema.Len())
	require.Len(t, catalog.Previous, 1)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = LoadCatalog(cancelled, m, time.Second, nil)
	require.ErrorIs(t, err, context.Canceled)
}
