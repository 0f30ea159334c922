package drug

import (
	"context"
	"fmt"
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

// Repository handles drug persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new drug repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) EntityType() string {
	return models.EntityTypeDrug
}

// FindByExternalKey is a no-op; drugs carry no source-system identifier.
func (r *Repository) FindByExternalKey(ctx context.Context, tx database.Tx, key string) (*models.EntityRef, error) {
	return nil, nil
}

// FindByName returns drugs with an exact name match.
func (r *Repository) FindByName(ctx context.Context, tx database.Tx, name string) ([]models.EntityRef, error) {
	return r.findBy(ctx, tx, "name", name)
}

// FindByNormalizedName returns drugs whose normalized name matches.
func (r *Repository) FindByNormalizedName(ctx context.Context, tx database.Tx, normalized string) ([]models.EntityRef, error) {
	return r.findBy(ctx, tx, "name_normalized", normalized)
}

func (r *Repository) findBy(ctx context.Context, tx database.Tx, column, value string) ([]models.EntityRef, error) {
	ctx, span := tracing.StartSpan(ctx, "drug.Repository.findBy")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("id", "name", "NULL AS external_key")
	sb.From("drugs")
	sb.Where(sb.Equal(column, value))
	sb.OrderBy("created_at")

	query, args := sb.Build()
	var refs []models.EntityRef
	if err := tx.SelectContext(ctx, &refs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"column": column, "value": value}).Error("Failed to find drugs by name")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find drugs")
	}
	return refs, nil
}

// Create inserts a new drug and returns its reference.
func (r *Repository) Create(ctx context.Context, tx database.Tx, lookup models.Lookup) (*models.EntityRef, error) {
	ctx, span := tracing.StartSpan(ctx, "drug.Repository.Create")
	defer span.End()

	now := time.Now().UTC()
	id := uuid.New().String()

	ib := database.NewInsertBuilder()
	ib.InsertInto("drugs")
	ib.Cols("id", "name", "name_normalized", "created_at", "updated_at")
	ib.Values(id, lookup.Name, normalizers.NormalizeName(lookup.Name), now, now)

	query, args := ib.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("name", lookup.Name).Error("Failed to create drug")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create drug")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": id, "name": lookup.Name}).Info("Created drug")
	return &models.EntityRef{ID: id, Name: lookup.Name}, nil
}

// SetExternalKey is a no-op; drugs carry no source-system identifier.
func (r *Repository) SetExternalKey(ctx context.Context, tx database.Tx, id, key string) error {
	return nil
}

// SetDetails backfills a drug's active ingredient and mechanism when they
// are not yet known. Existing values are never overwritten.
func (r *Repository) SetDetails(ctx context.Context, tx database.Tx, id string, activeIngredient, mechanism *string) error {
	ctx, span := tracing.StartSpan(ctx, "drug.Repository.SetDetails")
	defer span.End()

	if activeIngredient == nil && mechanism == nil {
		return nil
	}

	ub := database.NewUpdateBuilder()
	ub.Update("drugs")
	ub.Set(
		fmt.Sprintf("active_ingredient = COALESCE(active_ingredient, %s)", ub.Var(activeIngredient)),
		fmt.Sprintf("mechanism = COALESCE(mechanism, %s)", ub.Var(mechanism)),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(ub.Equal("id", id))

	query, args := ub.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("id", id).Error("Failed to set drug details")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update drug")
	}
	return nil
}

// SetCompany attaches a sponsor company to a drug if one isn't set.
func (r *Repository) SetCompany(ctx context.Context, tx database.Tx, id, companyID string) error {
	ctx, span := tracing.StartSpan(ctx, "drug.Repository.SetCompany")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update("drugs")
	ub.Set(
		ub.Assign("company_id", companyID),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(ub.Equal("id", id), ub.IsNull("company_id"))

	query, args := ub.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "company_id": companyID}).Error("Failed to set drug company")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update drug")
	}
	return nil
}

// LinkIndication records that a drug is developed for an indication.
func (r *Repository) LinkIndication(ctx context.Context, tx database.Tx, drugID, indicationID string) error {
	return r.link(ctx, tx, "drug_indications", "indication_id", drugID, indicationID)
}

// LinkTarget records that a drug acts on a molecular target.
func (r *Repository) LinkTarget(ctx context.Context, tx database.Tx, drugID, targetID string) error {
	return r.link(ctx, tx, "drug_targets", "target_id", drugID, targetID)
}

func (r *Repository) link(ctx context.Context, tx database.Tx, table, column, drugID, otherID string) error {
	ctx, span := tracing.StartSpan(ctx, "drug.Repository.link")
	defer span.End()

	ib := database.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols("drug_id", column)
	ib.Values(drugID, otherID)
	ib.OnConflictDoNothing()

	query, args := ib.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"table": table, "drug_id": drugID, column: otherID}).Error("Failed to link drug")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to link drug")
	}
	return nil
}
