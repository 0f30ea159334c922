package filing

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

// Repository handles SEC filing persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new filing repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Upsert records a filing. RSS entries repeat across polls, so a repeated
// filing only refreshes its financial figures, which the source can restate.
// Returns whether a new row was inserted.
func (r *Repository) Upsert(ctx context.Context, tx database.Tx, filing models.Filing) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "filing.Repository.Upsert")
	defer span.End()

	ib := database.NewInsertBuilder()
	ib.InsertInto("filings")
	ib.Cols("id", "company_id", "cik", "form_type", "filing_date", "title", "url",
		"cash_usd", "rnd_expense_usd", "revenue_usd", "created_at")
	ib.Values(uuid.New().String(), filing.CompanyID, filing.CIK, filing.FormType, filing.FilingDate, filing.Title, filing.URL,
		filing.CashUSD, filing.RnDExpenseUSD, filing.RevenueUSD, time.Now().UTC())

	ub := ib.OnConflict("company_id", "cik", "form_type", "filing_date", "url")
	ub.Set(
		ub.Assign("cash_usd", database.Excluded("cash_usd")),
		ub.Assign("rnd_expense_usd", database.Excluded("rnd_expense_usd")),
		ub.Assign("revenue_usd", database.Excluded("revenue_usd")),
	)
	ib.Returning("(xmax = 0) AS inserted")

	query, args := ib.Build()
	var inserted bool
	if err := tx.GetContext(ctx, &inserted, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"cik": filing.CIK, "form_type": filing.FormType, "url": filing.URL}).Error("Failed to upsert filing")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert filing")
	}
	return inserted, nil
}

// ListByCompany returns filings for a company, newest first.
func (r *Repository) ListByCompany(ctx context.Context, companyID string, limit int) ([]models.Filing, error) {
	ctx, span := tracing.StartSpan(ctx, "filing.Repository.ListByCompany")
	defer span.End()

	if limit < 1 || limit > 200 {
		limit = 50
	}

	sb := database.NewStruct(models.Filing{}).SelectFrom("filings")
	sb.Where(sb.Equal("company_id", companyID))
	sb.OrderBy("filing_date DESC")
	sb.Limit(limit)

	query, args := sb.Build()
	var filings []models.Filing
	if err := r.db.SelectContext(ctx, &filings, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("company_id", companyID).Error("Failed to list filings")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list filings")
	}
	return filings, nil
}
