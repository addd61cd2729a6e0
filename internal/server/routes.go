package server

import (
	"github.com/schemalens/schemalens/internal/server/middleware"
	"github.com/schemalens/schemalens/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)

	// Graph routes
	apiRoutes.GET("/graph/:mode", routes.GetGraphHandler)
	apiRoutes.POST("/graph/:mode/rebuild", routes.RebuildGraphHandler)
	apiRoutes.DELETE("/graph/:mode", routes.InvalidateGraphHandler)
	apiRoutes.POST("/graph/:mode/export", routes.ExportGraphHandler)

	// Analysis routes
	apiRoutes.POST("/graph/centrality", routes.CentralityHandler)
	apiRoutes.POST("/graph/communities", routes.CommunitiesHandler)
}
