package routes

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/schemalens/schemalens/internal/server/middleware"
	"github.com/schemalens/schemalens/pkg/analysis"
	"github.com/schemalens/schemalens/pkg/graphcache"
	"github.com/schemalens/schemalens/pkg/logger"
)

// CommunitiesHandler partitions the current snapshot into communities.
func CommunitiesHandler(c echo.Context) error {
	type communitiesRequest struct {
		Source    string `json:"source" validate:"required"`
		Mode      string `json:"mode"`
		Algorithm string `json:"algorithm" validate:"required"`
	}

	type clusterStat struct {
		Count int `json:"count"`
	}

	type communitiesResponse struct {
		Message      string              `json:"message,omitempty"`
		Communities  map[string]int      `json:"communities"`
		ClusterStats map[int]clusterStat `json:"cluster_stats"`
	}

	data := new(communitiesRequest)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, communitiesResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, communitiesResponse{
			Message: "Invalid request body",
		})
	}

	mode := graphcache.ModeSchema
	if data.Mode != "" {
		var err error
		mode, err = graphcache.ParseMode(data.Mode)
		if err != nil {
			return c.JSON(http.StatusBadRequest, communitiesResponse{
				Message: "Unknown graph mode",
			})
		}
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	graph, err := loadAnalysisGraph(ctx, app, mode, data.Source)
	if err != nil {
		if errors.Is(err, graphcache.ErrRebuildConflict) {
			return c.JSON(http.StatusConflict, communitiesResponse{
				Message: "Rebuild already in progress",
			})
		}
		logger.Error("Failed to load graph for communities", "source", data.Source, "err", err)
		return c.JSON(http.StatusInternalServerError, communitiesResponse{
			Message: "Internal server error",
		})
	}

	communities, err := analysis.Communities(graph, data.Algorithm)
	if err != nil {
		if errors.Is(err, analysis.ErrUnknownAlgorithm) {
			return c.JSON(http.StatusBadRequest, communitiesResponse{
				Message: "Unknown algorithm",
			})
		}
		logger.Error("Community detection failed", "algorithm", data.Algorithm, "err", err)
		return c.JSON(http.StatusInternalServerError, communitiesResponse{
			Message: "Internal server error",
		})
	}

	stats := make(map[int]clusterStat, len(communities))
	for _, community := range communities {
		stat := stats[community]
		stat.Count++
		stats[community] = stat
	}

	return c.JSON(http.StatusOK, communitiesResponse{
		Communities:  communities,
		ClusterStats: stats,
	})
}
