package routers

import (
	"discharge-export-service/internal/app/contracts"
	"discharge-export-service/internal/app/delivery/http/middlewares"

	"github.com/go-chi/chi/v5"
)

func attachExportRoutes(router chi.Router, middlewares *middlewares.Middlewares, exportController contracts.ExportController) {
	normalLimiter, apiKeyLimiter := middlewares.CreateRateLimiters()

	router.Use(middlewares.RequireAPIKey)
	router.Use(middlewares.ConditionalRateLimit(normalLimiter, apiKeyLimiter))
	router.Use(middlewares.BodyLimit)

	router.Post("/", exportController.RunExport)
	router.Post("/async", exportController.EnqueueExport)
	router.Post("/batch", exportController.RunBatch)
}
