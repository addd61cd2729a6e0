package routes

import (
	"context"
	"errors"
	"net/http"
	"sort"

	"github.com/labstack/echo/v4"

	"github.com/schemalens/schemalens/internal/server/middleware"
	"github.com/schemalens/schemalens/pkg/analysis"
	"github.com/schemalens/schemalens/pkg/graphcache"
	"github.com/schemalens/schemalens/pkg/logger"
)

const topScoreCount = 10

// loadAnalysisGraph materializes the current snapshot for an analysis
// request, building it on a miss.
func loadAnalysisGraph(ctx context.Context, app *middleware.App, mode graphcache.Mode, source string) (*analysis.Graph, error) {
	ontology, err := app.Rebuilder.GetOrBuild(ctx, mode, source, 0)
	if err != nil {
		return nil, err
	}
	nodes, err := app.Store.ListNodes(ctx, ontology.ID)
	if err != nil {
		return nil, err
	}
	edges, err := app.Store.ListEdges(ctx, ontology.ID)
	if err != nil {
		return nil, err
	}
	return analysis.NewGraph(nodes, edges), nil
}

// CentralityHandler scores every node of the current snapshot.
func CentralityHandler(c echo.Context) error {
	type centralityRequest struct {
		Source    string `json:"source" validate:"required"`
		Mode      string `json:"mode"`
		Algorithm string `json:"algorithm" validate:"required"`
	}

	type nodeScore struct {
		Node  string  `json:"node"`
		Score float64 `json:"score"`
	}

	type centralityResponse struct {
		Message string             `json:"message,omitempty"`
		Scores  map[string]float64 `json:"scores"`
		Top10   []nodeScore        `json:"top_10"`
	}

	data := new(centralityRequest)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, centralityResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, centralityResponse{
			Message: "Invalid request body",
		})
	}

	mode := graphcache.ModeSchema
	if data.Mode != "" {
		var err error
		mode, err = graphcache.ParseMode(data.Mode)
		if err != nil {
			return c.JSON(http.StatusBadRequest, centralityResponse{
				Message: "Unknown graph mode",
			})
		}
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	graph, err := loadAnalysisGraph(ctx, app, mode, data.Source)
	if err != nil {
		if errors.Is(err, graphcache.ErrRebuildConflict) {
			return c.JSON(http.StatusConflict, centralityResponse{
				Message: "Rebuild already in progress",
			})
		}
		logger.Error("Failed to load graph for centrality", "source", data.Source, "err", err)
		return c.JSON(http.StatusInternalServerError, centralityResponse{
			Message: "Internal server error",
		})
	}

	scores, err := analysis.Centrality(graph, data.Algorithm)
	if err != nil {
		if errors.Is(err, analysis.ErrUnknownAlgorithm) {
			return c.JSON(http.StatusBadRequest, centralityResponse{
				Message: "Unknown algorithm",
			})
		}
		logger.Error("Centrality computation failed", "algorithm", data.Algorithm, "err", err)
		return c.JSON(http.StatusInternalServerError, centralityResponse{
			Message: "Internal server error",
		})
	}

	ranked := make([]nodeScore, 0, len(scores))
	for node, score := range scores {
		ranked = append(ranked, nodeScore{Node: node, Score: score})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Node < ranked[j].Node
	})
	if len(ranked) > topScoreCount {
		ranked = ranked[:topScoreCount]
	}

	return c.JSON(http.StatusOK, centralityResponse{
		Scores: scores,
		Top10:  ranked,
	})
}
