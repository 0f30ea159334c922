package execution

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/pharmaintel/helix/pkg/database"
	"github.com/pharmaintel/helix/pkg/models"
	"github.com/pharmaintel/helix/pkg/tracing"
)

// Repository handles ingestion execution tracking
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new execution repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create records the start of an ingestion run.
func (r *Repository) Create(ctx context.Context, source, executedBy string) (*models.Execution, error) {
	ctx, span := tracing.StartSpan(ctx, "execution.Repository.Create")
	defer span.End()

	exec := models.Execution{
		ID:         uuid.New().String(),
		Source:     source,
		Status:     models.ExecutionStatusRunning,
		StartedAt:  time.Now().UTC(),
		ExecutedBy: executedBy,
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto("etl_executions")
	ib.Cols("id", "source", "status", "started_at", "executed_by", "records_processed", "records_skipped", "records_failed")
	ib.Values(exec.ID, exec.Source, exec.Status, exec.StartedAt, exec.ExecutedBy, 0, 0, 0)

	query, args := ib.Build()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"source": source, "executed_by": executedBy}).Error("Failed to create execution")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create execution")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": exec.ID, "source": source, "executed_by": executedBy}).Info("Started ingestion execution")
	return &exec, nil
}

// Complete moves a running execution to a terminal status. A row that is
// already terminal is left untouched.
func (r *Repository) Complete(ctx context.Context, id, status string, processed, skipped, failed int, errMessage *string) error {
	ctx, span := tracing.StartSpan(ctx, "execution.Repository.Complete")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update("etl_executions")
	ub.Set(
		ub.Assign("status", status),
		ub.Assign("completed_at", time.Now().UTC()),
		ub.Assign("records_processed", processed),
		ub.Assign("records_skipped", skipped),
		ub.Assign("records_failed", failed),
		ub.Assign("error", errMessage),
	)
	ub.Where(
		ub.Equal("id", id),
		ub.Equal("status", models.ExecutionStatusRunning),
	)

	query, args := ub.Build()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "status": status}).Error("Failed to complete execution")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to complete execution")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		r.logger.WithContext(ctx).WithFields(map[string]any{"id": id, "status": status}).Warn("Execution already in a terminal status")
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": id, "status": status, "processed": processed, "skipped": skipped, "failed": failed}).Info("Completed ingestion execution")
	return nil
}

// Get retrieves an execution by ID.
func (r *Repository) Get(ctx context.Context, id string) (*models.Execution, error) {
	ctx, span := tracing.StartSpan(ctx, "execution.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("id", "source", "status", "started_at", "completed_at", "executed_by", "records_processed", "records_skipped", "records_failed", "error")
	sb.From("etl_executions")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var exec models.Execution
	if err := r.db.GetContext(ctx, &exec, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "execution %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithField("id", id).Error("Failed to get execution")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get execution")
	}
	return &exec, nil
}

// List returns recent executions, newest first.
func (r *Repository) List(ctx context.Context, limit int) ([]models.Execution, error) {
	ctx, span := tracing.StartSpan(ctx, "execution.Repository.List")
	defer span.End()

	if limit < 1 || limit > 200 {
		limit = 50
	}

	sb := database.NewSelectBuilder()
	sb.Select("id", "source", "status", "started_at", "completed_at", "executed_by", "records_processed", "records_skipped", "records_failed", "error")
	sb.From("etl_executions")
	sb.OrderBy("started_at DESC")
	sb.Limit(limit)

	query, args := sb.Build()
	var execs []models.Execution
	if err := r.db.SelectContext(ctx, &execs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list executions")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list executions")
	}
	return execs, nil
}
