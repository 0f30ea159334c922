package target

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

// Repository handles molecular target persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new target repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) EntityType() string {
	return models.EntityTypeTarget
}

// FindByExternalKey is a no-op; targets carry no source-system identifier.
func (r *Repository) FindByExternalKey(ctx context.Context, tx database.Tx, key string) (*models.EntityRef, error) {
	return nil, nil
}

// FindByName returns targets with an exact name match.
func (r *Repository) FindByName(ctx context.Context, tx database.Tx, name string) ([]models.EntityRef, error) {
	return r.findBy(ctx, tx, "name", name)
}

// FindByNormalizedName returns targets whose normalized name matches.
func (r *Repository) FindByNormalizedName(ctx context.Context, tx database.Tx, normalized string) ([]models.EntityRef, error) {
	return r.findBy(ctx, tx, "name_normalized", normalized)
}

func (r *Repository) findBy(ctx context.Context, tx database.Tx, column, value string) ([]models.EntityRef, error) {
	ctx, span := tracing.StartSpan(ctx, "target.Repository.findBy")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("id", "name", "NULL AS external_key")
	sb.From("targets")
	sb.Where(sb.Equal(column, value))
	sb.OrderBy("created_at")

	query, args := sb.Build()
	var refs []models.EntityRef
	if err := tx.SelectContext(ctx, &refs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"column": column, "value": value}).Error("Failed to find targets by name")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find targets")
	}
	return refs, nil
}

// Create inserts a new target and returns its reference.
func (r *Repository) Create(ctx context.Context, tx database.Tx, lookup models.Lookup) (*models.EntityRef, error) {
	ctx, span := tracing.StartSpan(ctx, "target.Repository.Create")
	defer span.End()

	id := uuid.New().String()

	ib := database.NewInsertBuilder()
	ib.InsertInto("targets")
	ib.Cols("id", "name", "name_normalized", "created_at")
	ib.Values(id, lookup.Name, normalizers.NormalizeName(lookup.Name), time.Now().UTC())

	query, args := ib.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("name", lookup.Name).Error("Failed to create target")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create target")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": id, "name": lookup.Name}).Info("Created target")
	return &models.EntityRef{ID: id, Name: lookup.Name}, nil
}

// SetExternalKey is a no-op; targets carry no source-system identifier.
func (r *Repository) SetExternalKey(ctx context.Context, tx database.Tx, id, key string) error {
	return nil
}
