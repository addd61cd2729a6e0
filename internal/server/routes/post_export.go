package routes

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/schemalens/schemalens/internal/server/middleware"
	"github.com/schemalens/schemalens/internal/storage"
	"github.com/schemalens/schemalens/pkg/graphcache"
	"github.com/schemalens/schemalens/pkg/logger"
	"github.com/schemalens/schemalens/pkg/translate"
)

// ExportGraphHandler renders the current snapshot, uploads it as JSON and
// returns a presigned download link.
func ExportGraphHandler(c echo.Context) error {
	type exportParams struct {
		Mode   string `param:"mode" validate:"required"`
		Source string `query:"source" validate:"required"`
	}

	type exportResponse struct {
		Message string `json:"message"`
		Key     string `json:"key,omitempty"`
		URL     string `json:"url,omitempty"`
	}

	params := new(exportParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, exportResponse{
			Message: "Invalid request",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, exportResponse{
			Message: "Invalid request",
		})
	}

	mode, err := graphcache.ParseMode(params.Mode)
	if err != nil {
		return c.JSON(http.StatusBadRequest, exportResponse{
			Message: "Unknown graph mode",
		})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	ontology, err := app.Rebuilder.GetOrBuild(ctx, mode, params.Source, 0)
	if err != nil {
		if errors.Is(err, graphcache.ErrRebuildConflict) {
			return c.JSON(http.StatusConflict, exportResponse{
				Message: "Rebuild already in progress",
			})
		}
		logger.Error("Failed to load graph for export", "source", params.Source, "err", err)
		return c.JSON(http.StatusInternalServerError, exportResponse{
			Message: "Internal server error",
		})
	}

	nodes, err := app.Store.ListNodes(ctx, ontology.ID)
	if err != nil {
		logger.Error("Failed to list nodes", "ontology", ontology.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, exportResponse{
			Message: "Internal server error",
		})
	}
	edges, err := app.Store.ListEdges(ctx, ontology.ID)
	if err != nil {
		logger.Error("Failed to list edges", "ontology", ontology.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, exportResponse{
			Message: "Internal server error",
		})
	}

	rendered, err := json.Marshal(translate.Graph(nodes, edges))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, exportResponse{
			Message: "Internal server error",
		})
	}

	exportID, err := gonanoid.New()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, exportResponse{
			Message: "Internal server error",
		})
	}

	key, err := storage.PutJSON(
		ctx,
		app.S3,
		fmt.Sprintf("graphs/%s/%s", mode, params.Source),
		exportID,
		rendered,
	)
	if err != nil {
		logger.Error("Failed to upload export", "err", err)
		return c.JSON(http.StatusInternalServerError, exportResponse{
			Message: "Internal server error",
		})
	}

	url, err := storage.GenerateDownloadLink(ctx, app.S3, key)
	if err != nil {
		logger.Error("Failed to presign export", "key", key, "err", err)
		return c.JSON(http.StatusInternalServerError, exportResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, exportResponse{
		Message: "Graph exported",
		Key:     key,
		URL:     url,
	})
}
