package routes

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/schemalens/schemalens/internal/server/middleware"
	"github.com/schemalens/schemalens/pkg/graphcache"
	"github.com/schemalens/schemalens/pkg/logger"
	"github.com/schemalens/schemalens/pkg/translate"
)

// GetGraphHandler serves the current graph snapshot, building one on a miss.
func GetGraphHandler(c echo.Context) error {
	type getGraphParams struct {
		Mode       string `param:"mode" validate:"required"`
		Source     string `query:"source" validate:"required"`
		MaxRecords int    `query:"max_records"`
	}

	type getGraphResponse struct {
		Message string            `json:"message,omitempty"`
		Nodes   []translate.Node  `json:"nodes"`
		Edges   []translate.Edge  `json:"edges"`
		Stats   *translate.Stats  `json:"stats,omitempty"`
	}

	params := new(getGraphParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, getGraphResponse{
			Message: "Invalid request",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, getGraphResponse{
			Message: "Invalid request",
		})
	}

	mode, err := graphcache.ParseMode(params.Mode)
	if err != nil {
		return c.JSON(http.StatusBadRequest, getGraphResponse{
			Message: "Unknown graph mode",
		})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	ontology, err := app.Rebuilder.GetOrBuild(ctx, mode, params.Source, params.MaxRecords)
	if err != nil {
		if errors.Is(err, graphcache.ErrRebuildConflict) {
			return c.JSON(http.StatusConflict, getGraphResponse{
				Message: "Rebuild already in progress",
			})
		}
		logger.Error("Failed to load graph", "mode", mode, "source", params.Source, "err", err)
		return c.JSON(http.StatusInternalServerError, getGraphResponse{
			Message: "Internal server error",
		})
	}

	nodes, err := app.Store.ListNodes(ctx, ontology.ID)
	if err != nil {
		logger.Error("Failed to list nodes", "ontology", ontology.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, getGraphResponse{
			Message: "Internal server error",
		})
	}
	edges, err := app.Store.ListEdges(ctx, ontology.ID)
	if err != nil {
		logger.Error("Failed to list edges", "ontology", ontology.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, getGraphResponse{
			Message: "Internal server error",
		})
	}

	payload := translate.Graph(nodes, edges)
	return c.JSON(http.StatusOK, getGraphResponse{
		Nodes: payload.Nodes,
		Edges: payload.Edges,
		Stats: &payload.Stats,
	})
}
