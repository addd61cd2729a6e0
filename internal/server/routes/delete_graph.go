package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/schemalens/schemalens/internal/server/middleware"
	"github.com/schemalens/schemalens/pkg/graphcache"
	"github.com/schemalens/schemalens/pkg/logger"
)

// InvalidateGraphHandler retires the current snapshot so the next read
// rebuilds from source.
func InvalidateGraphHandler(c echo.Context) error {
	type invalidateParams struct {
		Mode   string `param:"mode" validate:"required"`
		Source string `query:"source" validate:"required"`
	}

	type invalidateResponse struct {
		Message string `json:"message"`
	}

	params := new(invalidateParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, invalidateResponse{
			Message: "Invalid request",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, invalidateResponse{
			Message: "Invalid request",
		})
	}

	mode, err := graphcache.ParseMode(params.Mode)
	if err != nil {
		return c.JSON(http.StatusBadRequest, invalidateResponse{
			Message: "Unknown graph mode",
		})
	}

	app := c.(*middleware.AppContext).App
	if err := app.Rebuilder.Invalidate(c.Request().Context(), mode, params.Source); err != nil {
		logger.Error("Failed to invalidate graph", "mode", mode, "source", params.Source, "err", err)
		return c.JSON(http.StatusInternalServerError, invalidateResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, invalidateResponse{
		Message: "Graph invalidated",
	})
}
