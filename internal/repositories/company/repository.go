package company

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/pharmaintel/helix/pkg/database"
	"github.com/pharmaintel/helix/pkg/models"
	"github.com/pharmaintel/helix/pkg/normalizers"
	"github.com/pharmaintel/helix/pkg/tracing"
)

// Repository handles company persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new company repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) EntityType() string {
	return models.EntityTypeCompany
}

// FindByExternalKey finds a company by CIK.
func (r *Repository) FindByExternalKey(ctx context.Context, tx database.Tx, cik string) (*models.EntityRef, error) {
	ctx, span := tracing.StartSpan(ctx, "company.Repository.FindByExternalKey")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("id", "name", "cik AS external_key")
	sb.From("companies")
	sb.Where(sb.Equal("cik", normalizers.NormalizeCIK(cik)))
	sb.Limit(1)

	query, args := sb.Build()
	var ref models.EntityRef
	if err := tx.GetContext(ctx, &ref, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithField("cik", cik).Error("Failed to find company by cik")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find company")
	}
	return &ref, nil
}

// FindByName returns companies with an exact name match.
func (r *Repository) FindByName(ctx context.Context, tx database.Tx, name string) ([]models.EntityRef, error) {
	return r.findBy(ctx, tx, "name", name)
}

// FindByNormalizedName returns companies whose normalized name matches.
func (r *Repository) FindByNormalizedName(ctx context.Context, tx database.Tx, normalized string) ([]models.EntityRef, error) {
	return r.findBy(ctx, tx, "name_normalized", normalized)
}

func (r *Repository) findBy(ctx context.Context, tx database.Tx, column, value string) ([]models.EntityRef, error) {
	ctx, span := tracing.StartSpan(ctx, "company.Repository.findBy")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("id", "name", "cik AS external_key")
	sb.From("companies")
	sb.Where(sb.Equal(column, value))
	sb.OrderBy("created_at")

	query, args := sb.Build()
	var refs []models.EntityRef
	if err := tx.SelectContext(ctx, &refs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"column": column, "value": value}).Error("Failed to find companies by name")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find companies")
	}
	return refs, nil
}

// Create inserts a new company and returns its reference.
func (r *Repository) Create(ctx context.Context, tx database.Tx, lookup models.Lookup) (*models.EntityRef, error) {
	ctx, span := tracing.StartSpan(ctx, "company.Repository.Create")
	defer span.End()

	now := time.Now().UTC()
	id := uuid.New().String()

	var cik *string
	if lookup.ExternalKey != "" {
		normalized := normalizers.NormalizeCIK(lookup.ExternalKey)
		cik = &normalized
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto("companies")
	ib.Cols("id", "name", "name_normalized", "cik", "created_at", "updated_at")
	ib.Values(id, lookup.Name, normalizers.NormalizeCompanyName(lookup.Name), cik, now, now)

	query, args := ib.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("name", lookup.Name).Error("Failed to create company")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create company")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": id, "name": lookup.Name}).Info("Created company")
	return &models.EntityRef{ID: id, Name: lookup.Name, ExternalKey: cik}, nil
}

// SetExternalKey backfills a CIK onto a company resolved by name.
func (r *Repository) SetExternalKey(ctx context.Context, tx database.Tx, id, cik string) error {
	ctx, span := tracing.StartSpan(ctx, "company.Repository.SetExternalKey")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update("companies")
	ub.Set(
		ub.Assign("cik", normalizers.NormalizeCIK(cik)),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(ub.Equal("id", id), ub.IsNull("cik"))

	query, args := ub.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "cik": cik}).Error("Failed to set company cik")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update company")
	}
	return nil
}

// TrackedCIKs returns the CIK to name mapping for every company with a CIK
// on record. Filings from untracked registrants are not ingested.
func (r *Repository) TrackedCIKs(ctx context.Context) (map[string]string, error) {
	ctx, span := tracing.StartSpan(ctx, "company.Repository.TrackedCIKs")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("cik", "name")
	sb.From("companies")
	sb.Where(sb.IsNotNull("cik"))

	query, args := sb.Build()
	var rows []struct {
		CIK  string `db:"cik"`
		Name string `db:"name"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list tracked companies")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list tracked companies")
	}

	tracked := make(map[string]string, len(rows))
	for _, row := range rows {
		tracked[row.CIK] = row.Name
	}
	return tracked, nil
}

// Get retrieves a company by ID.
func (r *Repository) Get(ctx context.Context, id string) (*models.Company, error) {
	ctx, span := tracing.StartSpan(ctx, "company.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("id", "name", "ticker", "cik", "country", "market_cap", "created_at", "updated_at")
	sb.From("companies")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var company models.Company
	if err := r.db.GetContext(ctx, &company, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "company %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithField("id", id).Error("Failed to get company")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get company")
	}
	return &company, nil
}
