package indication

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/pharmaintel/helix/internal/repositories/indication"
	"github.com/pharmaintel/helix/internal/repositories/trial"
	"github.com/pharmaintel/helix/pkg/models"
	"github.com/pharmaintel/helix/pkg/tracing"
)

// Register registers indication routes
func Register(g *echo.Group) {
	g.GET("/:id", Funnel)
}

// Funnel returns the development pipeline for one indication: active trial
// counts by phase plus the most recent late stage trials.
func Funnel(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "indication_handler.Funnel")
	defer span.End()

	id := c.Param("id")
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	ctx, indications, err := ectoinject.GetContext[*indication.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	ind, err := indications.Get(ctx, id)
	if err != nil {
		return err
	}

	ctx, trials, err := ectoinject.GetContext[*trial.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	counts, err := trials.PhaseFunnel(ctx, id)
	if err != nil {
		return err
	}

	lateStage, err := trials.LateStageByIndication(ctx, id, limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.IndicationFunnel{
		Indication: *ind,
		PhaseCount: counts,
		LateStage:  lateStage,
	})
}
