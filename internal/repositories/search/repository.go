package search

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/pharmaintel/helix/pkg/database"
	"github.com/pharmaintel/helix/pkg/models"
	"github.com/pharmaintel/helix/pkg/tracing"
)

// Repository queries the search materialized view
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new search repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Search runs a full text query over companies, drugs, indications, and
// targets, ranked by relevance.
func (r *Repository) Search(ctx context.Context, terms string, limit int) ([]models.SearchResult, error) {
	ctx, span := tracing.StartSpan(ctx, "search.Repository.Search")
	defer span.End()

	if limit < 1 || limit > 100 {
		limit = 20
	}

	query := `
		SELECT entity_type, entity_id, name, detail,
		       ts_rank(document, websearch_to_tsquery('english', $1)) AS rank
		FROM search_mv
		WHERE document @@ websearch_to_tsquery('english', $1)
		ORDER BY rank DESC
		LIMIT $2
	`

	var results []models.SearchResult
	if err := r.db.SelectContext(ctx, &results, query, terms, limit); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("terms", terms).Error("Failed to run search")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to run search")
	}
	return results, nil
}

// Refresh rebuilds the search materialized view. Called after an ingestion
// run completes so new entities become searchable.
func (r *Repository) Refresh(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "search.Repository.Refresh")
	defer span.End()

	if _, err := r.db.ExecContext(ctx, "REFRESH MATERIALIZED VIEW CONCURRENTLY search_mv"); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to refresh search view")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to refresh search view")
	}

	r.logger.WithContext(ctx).Info("Refreshed search view")
	return nil
}
