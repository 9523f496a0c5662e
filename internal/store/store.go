// File: internal/store/store.go
// Description: PostgreSQL persistence for publish results and their step
// audit trails. Optional: the orchestration layer runs fine without a
// database, this is for operators who want history.

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/prism-cli/api/schemas"
)

// DBPool abstracts pgxpool.Pool so tests can substitute a mock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Store is the PostgreSQL implementation of schemas.ResultStore.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS publish_results (
	id UUID PRIMARY KEY,
	platform TEXT NOT NULL,
	success BOOLEAN NOT NULL,
	completion_reason TEXT NOT NULL,
	content TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	post_reference TEXT NOT NULL DEFAULT '',
	total_time_ms BIGINT NOT NULL,
	api_calls_made INT NOT NULL,
	rate_limit_hits INT NOT NULL,
	loop_interventions INT NOT NULL,
	image_repairs INT NOT NULL,
	forced_verifications INT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS publish_steps (
	result_id UUID NOT NULL REFERENCES publish_results(id) ON DELETE CASCADE,
	seq INT NOT NULL,
	step_type TEXT NOT NULL,
	success BOOLEAN NOT NULL,
	action_taken TEXT NOT NULL DEFAULT '',
	observation TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT '',
	decision_latency_ms BIGINT NOT NULL,
	recovery_attempts INT NOT NULL,
	credential_used TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (result_id, seq)
);`

// New creates a store and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// Migrate creates the result tables when they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// PersistResult writes one publish result and its full audit trail in a
// single transaction.
func (s *Store) PersistResult(ctx context.Context, result *schemas.PublishResult) error {
	if result == nil {
		return fmt.Errorf("nil result")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	resultID := uuid.New()

	_, err = tx.Exec(ctx,
		`INSERT INTO publish_results
			(id, platform, success, completion_reason, content, error, post_reference,
			 total_time_ms, api_calls_made, rate_limit_hits, loop_interventions,
			 image_repairs, forced_verifications)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		resultID,
		string(result.Platform),
		result.Success,
		string(result.CompletionReason),
		result.Content,
		result.Error,
		result.PostReference,
		result.TotalTime.Milliseconds(),
		result.APICallsMade,
		result.RateLimitHits,
		result.LoopInterventions,
		result.ImageRepairs,
		result.ForcedVerifications,
	)
	if err != nil {
		return fmt.Errorf("failed to insert publish result: %w", err)
	}

	if len(result.Steps) > 0 {
		if err := s.persistSteps(ctx, tx, resultID, result.Steps); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.log.Debug("Publish result persisted",
		zap.String("result_id", resultID.String()),
		zap.String("platform", string(result.Platform)),
		zap.Int("steps", len(result.Steps)),
	)
	return nil
}

func (s *Store) persistSteps(ctx context.Context, tx pgx.Tx, resultID uuid.UUID, steps []schemas.StepResult) error {
	rows := make([][]interface{}, len(steps))
	for i, step := range steps {
		rows[i] = []interface{}{
			resultID, i,
			string(step.StepType), step.Success,
			step.ActionTaken, step.Observation, step.Error,
			step.DecisionLatency.Milliseconds(),
			step.RecoveryAttempts, step.CredentialUsed,
		}
	}

	copyCount, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{"publish_steps"},
		[]string{"result_id", "seq", "step_type", "success", "action_taken", "observation", "error", "decision_latency_ms", "recovery_attempts", "credential_used"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to copy steps: %w", err)
	}
	if int(copyCount) != len(steps) {
		return fmt.Errorf("mismatch in copied steps count: expected %d, got %d", len(steps), copyCount)
	}
	return nil
}
