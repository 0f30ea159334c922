package approval

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

// Repository handles regulatory approval persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new approval repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Upsert records an approval event. The same approval seen again is left
// untouched. Returns whether a new row was inserted.
func (r *Repository) Upsert(ctx context.Context, tx database.Tx, approval models.Approval) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "approval.Repository.Upsert")
	defer span.End()

	ib := database.NewInsertBuilder()
	ib.InsertInto("approvals")
	ib.Cols("id", "drug_id", "company_id", "indication_id", "agency", "application_number", "approval_date", "document_url", "created_at")
	ib.Values(uuid.New().String(), approval.DrugID, approval.CompanyID, approval.IndicationID, approval.Agency, approval.ApplicationNumber, approval.ApprovalDate, approval.DocumentURL, time.Now().UTC())
	ib.OnConflictDoNothing()

	query, args := ib.Build()
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"drug_id": approval.DrugID, "application_number": approval.ApplicationNumber}).Error("Failed to upsert approval")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert approval")
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// ListByDrug returns approvals for a drug, newest first.
func (r *Repository) ListByDrug(ctx context.Context, drugID string) ([]models.Approval, error) {
	ctx, span := tracing.StartSpan(ctx, "approval.Repository.ListByDrug")
	defer span.End()

	sb := database.NewStruct(models.Approval{}).SelectFrom("approvals")
	sb.Where(sb.Equal("drug_id", drugID))
	sb.OrderBy("approval_date DESC")

	query, args := sb.Build()
	var approvals []models.Approval
	if err := r.db.SelectContext(ctx, &approvals, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("drug_id", drugID).Error("Failed to list approvals")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list approvals")
	}
	return approvals, nil
}
