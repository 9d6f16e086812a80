package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/af-corp/consilium/internal/types"
)

// PostgresStore persists pipeline records in the pipeline_records table.
// Structured sub-objects go into JSONB columns so the schema survives field
// additions without migrations.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, record *types.PipelineRecord) error {
	makerJSON, err := marshalNullable(record.MakerOutput)
	if err != nil {
		return fmt.Errorf("marshal maker output: %w", err)
	}
	checkerJSON, err := marshalNullable(record.CheckerOutput)
	if err != nil {
		return fmt.Errorf("marshal checker output: %w", err)
	}
	consensusJSON, err := marshalNullable(record.Consensus)
	if err != nil {
		return fmt.Errorf("marshal consensus: %w", err)
	}
	groundingJSON, err := json.Marshal(record.Grounding)
	if err != nil {
		return fmt.Errorf("marshal grounding: %w", err)
	}
	latenciesJSON, err := json.Marshal(record.StageLatencies)
	if err != nil {
		return fmt.Errorf("marshal stage latencies: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO pipeline_records (
			trace_id, caller_id, tenant_id, prompt,
			maker_output, checker_output, consensus, grounding,
			status, failure_reason, stage_latencies_ms, total_latency_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		record.TraceID,
		record.CallerID,
		record.TenantID,
		record.Prompt,
		makerJSON,
		checkerJSON,
		consensusJSON,
		groundingJSON,
		string(record.Status),
		record.FailureReason,
		latenciesJSON,
		record.TotalLatencyMs,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert pipeline record %s: %w", record.TraceID, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, traceID string) (*types.PipelineRecord, error) {
	record := &types.PipelineRecord{}
	var makerJSON, checkerJSON, consensusJSON, groundingJSON, latenciesJSON []byte
	var status string

	err := s.db.QueryRow(ctx, `
		SELECT trace_id, caller_id, tenant_id, prompt,
		       maker_output, checker_output, consensus, grounding,
		       status, failure_reason, stage_latencies_ms, total_latency_ms, created_at
		FROM pipeline_records
		WHERE trace_id = $1
	`, traceID).Scan(
		&record.TraceID,
		&record.CallerID,
		&record.TenantID,
		&record.Prompt,
		&makerJSON,
		&checkerJSON,
		&consensusJSON,
		&groundingJSON,
		&status,
		&record.FailureReason,
		&latenciesJSON,
		&record.TotalLatencyMs,
		&record.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, traceID)
		}
		return nil, fmt.Errorf("query pipeline record %s: %w", traceID, err)
	}

	record.Status = types.RunStatus(status)
	if err := unmarshalNullable(makerJSON, &record.MakerOutput); err != nil {
		return nil, fmt.Errorf("unmarshal maker output: %w", err)
	}
	if err := unmarshalNullable(checkerJSON, &record.CheckerOutput); err != nil {
		return nil, fmt.Errorf("unmarshal checker output: %w", err)
	}
	if err := unmarshalNullable(consensusJSON, &record.Consensus); err != nil {
		return nil, fmt.Errorf("unmarshal consensus: %w", err)
	}
	if len(groundingJSON) > 0 {
		if err := json.Unmarshal(groundingJSON, &record.Grounding); err != nil {
			return nil, fmt.Errorf("unmarshal grounding: %w", err)
		}
	}
	if len(latenciesJSON) > 0 {
		if err := json.Unmarshal(latenciesJSON, &record.StageLatencies); err != nil {
			return nil, fmt.Errorf("unmarshal stage latencies: %w", err)
		}
	}
	return record, nil
}

// marshalNullable maps nil pointers to SQL NULL instead of the JSON "null".
func marshalNullable[T any](ptr *T) ([]byte, error) {
	if ptr == nil {
		return nil, nil
	}
	return json.Marshal(ptr)
}

func unmarshalNullable(data []byte, target any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, target)
}
