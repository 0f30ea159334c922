package indication

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

// Repository handles indication persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new indication repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) EntityType() string {
	return models.EntityTypeIndication
}

// FindByExternalKey is a no-op; indications carry no source-system identifier.
func (r *Repository) FindByExternalKey(ctx context.Context, tx database.Tx, key string) (*models.EntityRef, error) {
	return nil, nil
}

// FindByName returns indications with an exact name match.
func (r *Repository) FindByName(ctx context.Context, tx database.Tx, name string) ([]models.EntityRef, error) {
	return r.findBy(ctx, tx, "name", name)
}

// FindByNormalizedName returns indications whose normalized name matches.
func (r *Repository) FindByNormalizedName(ctx context.Context, tx database.Tx, normalized string) ([]models.EntityRef, error) {
	return r.findBy(ctx, tx, "name_normalized", normalized)
}

func (r *Repository) findBy(ctx context.Context, tx database.Tx, column, value string) ([]models.EntityRef, error) {
	ctx, span := tracing.StartSpan(ctx, "indication.Repository.findBy")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("id", "name", "NULL AS external_key")
	sb.From("indications")
	sb.Where(sb.Equal(column, value))
	sb.OrderBy("created_at")

	query, args := sb.Build()
	var refs []models.EntityRef
	if err := tx.SelectContext(ctx, &refs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"column": column, "value": value}).Error("Failed to find indications by name")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find indications")
	}
	return refs, nil
}

// Create inserts a new indication and returns its reference.
func (r *Repository) Create(ctx context.Context, tx database.Tx, lookup models.Lookup) (*models.EntityRef, error) {
	ctx, span := tracing.StartSpan(ctx, "indication.Repository.Create")
	defer span.End()

	id := uuid.New().String()

	ib := database.NewInsertBuilder()
	ib.InsertInto("indications")
	ib.Cols("id", "name", "name_normalized", "created_at")
	ib.Values(id, lookup.Name, normalizers.NormalizeName(lookup.Name), time.Now().UTC())

	query, args := ib.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("name", lookup.Name).Error("Failed to create indication")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create indication")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": id, "name": lookup.Name}).Info("Created indication")
	return &models.EntityRef{ID: id, Name: lookup.Name}, nil
}

// SetExternalKey is a no-op; indications carry no source-system identifier.
func (r *Repository) SetExternalKey(ctx context.Context, tx database.Tx, id, key string) error {
	return nil
}

// Get retrieves an indication by ID.
func (r *Repository) Get(ctx context.Context, id string) (*models.Indication, error) {
	ctx, span := tracing.StartSpan(ctx, "indication.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("id", "name", "mesh_id", "icd10", "description", "created_at")
	sb.From("indications")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var ind models.Indication
	if err := r.db.GetContext(ctx, &ind, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "indication %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithField("id", id).Error("Failed to get indication")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get indication")
	}
	return &ind, nil
}
