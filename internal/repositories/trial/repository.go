package trial

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/pharmaintel/helix/pkg/database"
	"github.com/pharmaintel/helix/pkg/models"
	"github.com/pharmaintel/helix/pkg/tracing"
)

// Phases considered late stage for pipeline views.
var lateStagePhases = []string{models.PhaseTwoThree, models.PhaseThree}

// Repository handles clinical trial persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new trial repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Upsert creates or updates a trial keyed by NCT number. Returns whether the
// row was newly inserted.
func (r *Repository) Upsert(ctx context.Context, tx database.Tx, trial models.Trial) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "trial.Repository.Upsert")
	defer span.End()

	ib := database.NewInsertBuilder()
	ib.InsertInto("trials")
	ib.Cols("id", "title", "phase", "status", "drug_id", "company_id", "enrollment",
		"start_date", "completion_date", "url", "source", "last_updated", "fetched_at", "updated_at")
	ib.Values(trial.ID, trial.Title, trial.Phase, trial.Status, trial.DrugID, trial.CompanyID, trial.Enrollment,
		trial.StartDate, trial.CompletionDate, trial.URL, trial.Source, trial.LastUpdated, trial.FetchedAt, time.Now().UTC())

	ub := ib.OnConflict("id")
	ub.Set(
		ub.Assign("title", database.Excluded("title")),
		ub.Assign("phase", database.Excluded("phase")),
		ub.Assign("status", database.Excluded("status")),
		"drug_id = COALESCE(EXCLUDED.drug_id, trials.drug_id)",
		"company_id = COALESCE(EXCLUDED.company_id, trials.company_id)",
		ub.Assign("enrollment", database.Excluded("enrollment")),
		ub.Assign("start_date", database.Excluded("start_date")),
		ub.Assign("completion_date", database.Excluded("completion_date")),
		ub.Assign("url", database.Excluded("url")),
		ub.Assign("source", database.Excluded("source")),
		ub.Assign("last_updated", database.Excluded("last_updated")),
		ub.Assign("fetched_at", database.Excluded("fetched_at")),
		ub.Assign("updated_at", database.Excluded("updated_at")),
	)
	ib.Returning("(xmax = 0) AS inserted")

	query, args := ib.Build()
	var inserted bool
	if err := tx.GetContext(ctx, &inserted, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("id", trial.ID).Error("Failed to upsert trial")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert trial")
	}
	return inserted, nil
}

// LinkIndication records that a trial studies an indication.
func (r *Repository) LinkIndication(ctx context.Context, tx database.Tx, trialID, indicationID string) error {
	ctx, span := tracing.StartSpan(ctx, "trial.Repository.LinkIndication")
	defer span.End()

	ib := database.NewInsertBuilder()
	ib.InsertInto("trial_indications")
	ib.Cols("trial_id", "indication_id")
	ib.Values(trialID, indicationID)
	ib.OnConflictDoNothing()

	query, args := ib.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"trial_id": trialID, "indication_id": indicationID}).Error("Failed to link trial indication")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to link trial indication")
	}
	return nil
}

// UnlinkIndicationsExcept removes indication links not present in keep, so a
// re-fetched trial ends up linked to exactly the indications it now reports.
// An empty keep clears every link.
func (r *Repository) UnlinkIndicationsExcept(ctx context.Context, tx database.Tx, trialID string, keep []string) error {
	ctx, span := tracing.StartSpan(ctx, "trial.Repository.UnlinkIndicationsExcept")
	defer span.End()

	d := database.NewDeleteBuilder()
	d.DeleteFrom("trial_indications")
	d.Where(d.Equal("trial_id", trialID))
	if len(keep) > 0 {
		d.Where(d.NotIn("indication_id", sqlbuilder.Flatten(keep)...))
	}

	query, args := d.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("trial_id", trialID).Error("Failed to unlink trial indications")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to unlink trial indications")
	}
	return nil
}

// PhaseFunnel counts trials per phase for an indication.
func (r *Repository) PhaseFunnel(ctx context.Context, indicationID string) ([]models.PhaseCount, error) {
	ctx, span := tracing.StartSpan(ctx, "trial.Repository.PhaseFunnel")
	defer span.End()

	query := `
		SELECT t.phase, COUNT(*) AS count
		FROM trials t
		JOIN trial_indications ti ON ti.trial_id = t.id
		WHERE ti.indication_id = $1
		GROUP BY t.phase
		ORDER BY t.phase
	`

	var counts []models.PhaseCount
	if err := r.db.SelectContext(ctx, &counts, query, indicationID); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("indication_id", indicationID).Error("Failed to build phase funnel")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to build phase funnel")
	}
	return counts, nil
}

// LateStageByIndication returns phase 2/3 and beyond trials for an indication,
// most recently updated first.
func (r *Repository) LateStageByIndication(ctx context.Context, indicationID string, limit int) ([]models.Trial, error) {
	ctx, span := tracing.StartSpan(ctx, "trial.Repository.LateStageByIndication")
	defer span.End()

	if limit < 1 || limit > 100 {
		limit = 20
	}

	sb := database.NewSelectBuilder()
	sb.Select("t.id", "t.title", "t.phase", "t.status", "t.drug_id", "t.company_id", "t.enrollment",
		"t.start_date", "t.completion_date", "t.url", "t.source", "t.last_updated", "t.fetched_at", "t.updated_at")
	sb.From("trials t")
	sb.JoinWithOption(sqlbuilder.InnerJoin, "trial_indications ti", "ti.trial_id = t.id")
	sb.Where(
		sb.Equal("ti.indication_id", indicationID),
		sb.In("t.phase", sqlbuilder.Flatten(lateStagePhases)...),
	)
	sb.OrderBy("t.updated_at DESC")
	sb.Limit(limit)

	query, args := sb.Build()
	var trials []models.Trial
	if err := r.db.SelectContext(ctx, &trials, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("indication_id", indicationID).Error("Failed to list late stage trials")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list late stage trials")
	}
	return trials, nil
}
