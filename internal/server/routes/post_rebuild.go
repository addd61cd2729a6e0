package routes

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/schemalens/schemalens/internal/queue"
	"github.com/schemalens/schemalens/internal/server/middleware"
	"github.com/schemalens/schemalens/pkg/graphcache"
	"github.com/schemalens/schemalens/pkg/logger"
)

// RebuildGraphHandler forces a rebuild regardless of cache state. With
// async=true the request is queued for the worker instead.
func RebuildGraphHandler(c echo.Context) error {
	type rebuildParams struct {
		Mode       string `param:"mode" validate:"required"`
		Source     string `query:"source" validate:"required"`
		MaxRecords int    `query:"max_records"`
		Async      bool   `query:"async"`
	}

	type rebuildResponse struct {
		Message         string `json:"message"`
		DiscoveredCount int    `json:"discovered_count,omitempty"`
		DiscoveryTimeMs int64  `json:"discovery_time_ms,omitempty"`
		NodeCount       int    `json:"node_count,omitempty"`
		EdgeCount       int    `json:"edge_count,omitempty"`
	}

	params := new(rebuildParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, rebuildResponse{
			Message: "Invalid request",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, rebuildResponse{
			Message: "Invalid request",
		})
	}

	mode, err := graphcache.ParseMode(params.Mode)
	if err != nil {
		return c.JSON(http.StatusBadRequest, rebuildResponse{
			Message: "Unknown graph mode",
		})
	}

	app := c.(*middleware.AppContext).App

	if params.Async {
		msg, err := json.Marshal(queue.RebuildMsg{
			Mode:       string(mode),
			Source:     params.Source,
			MaxRecords: params.MaxRecords,
		})
		if err != nil {
			return c.JSON(http.StatusInternalServerError, rebuildResponse{
				Message: "Internal server error",
			})
		}
		if err := queue.PublishFIFO(app.Queue, queue.RebuildQueue, msg); err != nil {
			logger.Error("Failed to publish rebuild message", "err", err)
			return c.JSON(http.StatusInternalServerError, rebuildResponse{
				Message: "Internal server error",
			})
		}
		return c.JSON(http.StatusAccepted, rebuildResponse{
			Message: "Rebuild queued",
		})
	}

	ctx := c.Request().Context()
	result, err := app.Rebuilder.Rebuild(ctx, mode, params.Source, params.MaxRecords)
	if err != nil {
		if errors.Is(err, graphcache.ErrRebuildConflict) {
			return c.JSON(http.StatusConflict, rebuildResponse{
				Message: "Rebuild already in progress",
			})
		}
		logger.Error("Failed to rebuild graph", "mode", mode, "source", params.Source, "err", err)
		return c.JSON(http.StatusInternalServerError, rebuildResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, rebuildResponse{
		Message:         "Graph rebuilt",
		DiscoveredCount: result.DiscoveredCount,
		DiscoveryTimeMs: result.DiscoveryTime.Milliseconds(),
		NodeCount:       result.NodeCount,
		EdgeCount:       result.EdgeCount,
	})
}
