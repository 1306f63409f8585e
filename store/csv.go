package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tbxark/surveyagent/types"
)

const (
	SlotsFile       = "slots.csv"
	ContextFile     = "context.csv"
	InitiativesFile = "initiatives.csv"
)

// CSVStore keeps everything in a directory of CSV files:
// slots.csv (field_name, definition), context.csv (one row of customer
// attributes) and initiatives.csv (one column per schema field).
type CSVStore struct {
	mu       sync.Mutex
	dir      string
	keyField string
}

func NewCSVStore(dir, keyField string) (*CSVStore, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("open csv store: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("open csv store: %s is not a directory", dir)
	}
	return &CSVStore{dir: dir, keyField: keyField}, nil
}

func (s *CSVStore) LoadInitialContext(ctx context.Context) (string, error) {
	rows, err := s.read(ContextFile)
	if err != nil {
		return "", err
	}
	if len(rows) < 2 {
		return "", fmt.Errorf("%s has no data row", ContextFile)
	}
	return FormatContext(rows[0], rows[1]), nil
}

func (s *CSVStore) LoadSchema(ctx context.Context) (*types.Schema, error) {
	rows, err := s.read(SlotsFile)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s is empty", SlotsFile)
	}
	nameCol, defCol := column(rows[0], "field_name"), column(rows[0], "definition")
	if nameCol < 0 || defCol < 0 {
		return nil, fmt.Errorf("%s needs field_name and definition columns", SlotsFile)
	}
	fields := make([]types.Field, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if nameCol >= len(row) || strings.TrimSpace(row[nameCol]) == "" {
			continue
		}
		f := types.Field{Name: row[nameCol]}
		if defCol < len(row) {
			f.Definition = row[defCol]
		}
		fields = append(fields, f)
	}
	return types.NewSchema(s.keyField, fields...)
}

func (s *CSVStore) LoadPreviousRecords(ctx context.Context) (types.PreviousRecords, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.readRecords()
	if err != nil {
		return nil, err
	}
	return newestFirst(records), nil
}

func (s *CSVStore) UpsertRecord(ctx context.Context, rec types.Record) error {
	schema, err := s.LoadSchema(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.readRecords()
	if err != nil {
		return err
	}
	records, err = upsert(schema, records, rec)
	if err != nil {
		return err
	}
	return s.writeRecords(schema, records)
}

func (s *CSVStore) read(name string) ([][]string, error) {
	f, err := os.Open(filepath.Join(s.dir, name))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return rows, nil
}

// readRecords returns stored records oldest first. A missing file means none.
func (s *CSVStore) readRecords() ([]types.Record, error) {
	rows, err := s.read(InitiativesFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	header := rows[0]
	records := make([]types.Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := make(types.Record, len(header))
		for i, col := range header {
			rec[col] = nil
			if i < len(row) && strings.TrimSpace(row[i]) != "" {
				rec.Set(col, row[i])
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *CSVStore) writeRecords(schema *types.Schema, records []types.Record) error {
	tmp, err := os.CreateTemp(s.dir, InitiativesFile+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := writeCSV(tmp, schema, records); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	return os.Rename(tmp.Name(), filepath.Join(s.dir, InitiativesFile))
}

func writeCSV(out io.Writer, schema *types.Schema, records []types.Record) error {
	w := csv.NewWriter(out)
	names := schema.Names()
	if err := w.Write(names); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, rec := range records {
		row := make([]string, len(names))
		for i, name := range names {
			row[i], _ = rec.Get(name)
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

func column(header []string, name string) int {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i
		}
	}
	return -1
}

var _ RecordStore = (*CSVStore)(nil)
