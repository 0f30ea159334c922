package search

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/pharmaintel/helix/internal/repositories/search"
	"github.com/pharmaintel/helix/pkg/models"
	"github.com/pharmaintel/helix/pkg/tracing"
)

// Register registers search routes
func Register(g *echo.Group) {
	g.GET("", Search)
}

// Search performs a full text search across companies, drugs, indications,
// and trials.
func Search(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "search_handler.Search")
	defer span.End()

	query := strings.TrimSpace(c.QueryParam("q"))
	if len(query) < 2 {
		return httperror.NewHTTPError(http.StatusBadRequest, "q must be at least 2 characters")
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	ctx, repo, err := ectoinject.GetContext[*search.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	results, err := repo.Search(ctx, query, limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.SearchResponse{
		Query:   query,
		Results: results,
	})
}
