package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tbxark/surveyagent/types"
)

const (
	DefaultLoadTimeout = 30 * time.Second
	DefaultContext     = "Default context: Technology sector engagement"
)

// FallbackFieldNames is the survey used when no schema can be loaded.
var FallbackFieldNames = []string{
	"Initiative", "Type of AI", "Current Stage", "Budget",
	"Business Objectives", "Success Metrics", "Department",
	"Tech Stack", "Next Steps",
}

func FallbackSchema() *types.Schema {
	fields := make([]types.Field, len(FallbackFieldNames))
	for i, name := range FallbackFieldNames {
		fields[i] = types.Field{Name: name, Definition: fmt.Sprintf("Information about %s", name)}
	}
	return types.MustSchema("", fields...)
}

// LoadCatalog reads the startup data, bounding every store call by timeout.
// Unavailable data is replaced by fallbacks; only a cancelled ctx is an error.
func LoadCatalog(ctx context.Context, s RecordStore, timeout time.Duration, logger *slog.Logger) (*types.Catalog, error) {
	if timeout <= 0 {
		timeout = DefaultLoadTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	catalog := &types.Catalog{}

	schema, err := withTimeout(ctx, timeout, s.LoadSchema)
	if err != nil {
		logger.Warn("Failed to load schema, using fallback fields", "error", err)
		schema = FallbackSchema()
	}
	catalog.Schema = schema

	customerContext, err := withTimeout(ctx, timeout, s.LoadInitialContext)
	if err != nil || customerContext == "" {
		logger.Warn("Failed to load customer context, using default", "error", err)
		customerContext = DefaultContext
	}
	catalog.Context = customerContext

	previous, err := withTimeout(ctx, timeout, s.LoadPreviousRecords)
	if err != nil {
		logger.Warn("Failed to load previous records", "error", err)
		previous = nil
	}
	catalog.Previous = previous

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger.Info("Loaded catalog", "fields", schema.Len(), "previous_records", len(previous))
	return catalog, nil
}

func withTimeout[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(ctx)
}
