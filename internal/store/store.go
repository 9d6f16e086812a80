package store

import (
	"context"
	"errors"

	"github.com/af-corp/consilium/internal/types"
)

// ErrNotFound is returned when no record exists for a trace ID.
var ErrNotFound = errors.New("record not found")

// RecordStore is the durable sink for pipeline records. Save failure is
// pipeline-fatal: without a durable record the run did not happen.
type RecordStore interface {
	Save(ctx context.Context, record *types.PipelineRecord) error
	Get(ctx context.Context, traceID string) (*types.PipelineRecord, error)
}
