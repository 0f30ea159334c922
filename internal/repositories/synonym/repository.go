package synonym

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/pharmaintel/helix/pkg/database"
	"github.com/pharmaintel/helix/pkg/tracing"
)

// Repository handles synonym persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new synonym repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Find returns the entity ID a name resolves to for a given entity type,
// or nil when the name is unknown.
func (r *Repository) Find(ctx context.Context, tx database.Tx, entityType, name string) (*string, error) {
	return r.findBy(ctx, tx, entityType, "name", name)
}

// FindNormalized returns the entity ID a normalized name resolves to.
func (r *Repository) FindNormalized(ctx context.Context, tx database.Tx, entityType, normalized string) (*string, error) {
	return r.findBy(ctx, tx, entityType, "name_normalized", normalized)
}

func (r *Repository) findBy(ctx context.Context, tx database.Tx, entityType, column, value string) (*string, error) {
	ctx, span := tracing.StartSpan(ctx, "synonym.Repository.findBy")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("entity_id")
	sb.From("synonyms")
	sb.Where(
		sb.Equal("entity_type", entityType),
		sb.Equal(column, value),
	)
	sb.Limit(1)

	query, args := sb.Build()
	var entityID string
	if err := tx.GetContext(ctx, &entityID, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_type": entityType, column: value}).Error("Failed to find synonym")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find synonym")
	}
	return &entityID, nil
}

// Create records a name as a synonym for an entity. Conflicting names are
// left untouched so an existing mapping is never silently rebound.
func (r *Repository) Create(ctx context.Context, tx database.Tx, entityType, entityID, name, normalized string) error {
	ctx, span := tracing.StartSpan(ctx, "synonym.Repository.Create")
	defer span.End()

	ib := database.NewInsertBuilder()
	ib.InsertInto("synonyms")
	ib.Cols("id", "entity_type", "entity_id", "name", "name_normalized", "created_at")
	ib.Values(uuid.New().String(), entityType, entityID, name, normalized, time.Now().UTC())
	ib.OnConflictDoNothing()

	query, args := ib.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_type": entityType, "entity_id": entityID, "name": name}).Error("Failed to create synonym")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create synonym")
	}
	return nil
}
