package admin

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/pharmaintel/helix/config"
	"github.com/pharmaintel/helix/internal/repositories/execution"
	ctxmiddleware "github.com/pharmaintel/helix/pkg/context"
	"github.com/pharmaintel/helix/pkg/ingest"
	"github.com/pharmaintel/helix/pkg/models"
	"github.com/pharmaintel/helix/pkg/tracing"
)

var validate = validator.New()

// Register registers admin routes
func Register(g *echo.Group) {
	g.POST("/run/:source", Run)
	g.GET("/etl-history", History)
	g.GET("/etl-history/:id", GetExecution)
}

// Run triggers an ingestion run for one source. The run executes in the
// background; the response carries the tracking record.
func Run(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "admin_handler.Run")
	defer span.End()

	source := c.Param("source")
	if !models.ValidSource(source) {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown source %q", source)
	}

	var req models.RunRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(req); err != nil {
			return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}

	triggeredBy := req.TriggeredBy
	if triggeredBy == "" {
		triggeredBy = ctxmiddleware.GetUserID(ctx)
	}
	if triggeredBy == "" {
		triggeredBy = "anonymous"
	}

	ctx, pipeline, err := ectoinject.GetContext[*ingest.Pipeline](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get pipeline")
	}

	exec, err := pipeline.Start(ctx, source, triggeredBy)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusAccepted, models.ExecutionResponse{Execution: *exec})
}

// History returns recent ingestion runs, newest first
func History(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "admin_handler.History")
	defer span.End()

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit < 1 {
		if cfgCtx, cfg, err := ectoinject.GetContext[*config.Config](ctx); err == nil {
			ctx = cfgCtx
			limit = cfg.ETLHistoryPageSize
		}
	}
	if limit < 1 {
		limit = 50
	}

	ctx, repo, err := ectoinject.GetContext[*execution.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	items, err := repo.List(ctx, limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.ExecutionListResponse{
		Items: items,
		Limit: limit,
	})
}

// GetExecution returns a single ingestion run by ID
func GetExecution(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "admin_handler.GetExecution")
	defer span.End()

	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*execution.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	exec, err := repo.Get(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.ExecutionResponse{Execution: *exec})
}
