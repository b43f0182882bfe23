package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"example.com/billsage/backend/internal/handlers"
)

func registerRoutes(
	e *echo.Echo,
	userHandler *handlers.UserHandler,
	billHandler *handlers.BillHandler,
	statsHandler *handlers.StatsHandler,
	notificationHandler *handlers.NotificationHandler,
	metricsHandler http.Handler,
	sessionMiddleware echo.MiddlewareFunc,
	uploadRateLimiter echo.MiddlewareFunc,
) {
	e.GET("/health", handlers.Health)
	e.GET("/metrics", echo.WrapHandler(metricsHandler))

	api := e.Group("/api/v1")

	users := api.Group("/users", sessionMiddleware)
	users.POST("/sync", userHandler.Sync)
	users.GET("/me", userHandler.Me)

	bills := api.Group("/bills", sessionMiddleware)
	bills.POST("/csv/inspect", billHandler.InspectCSV)
	bills.POST("/csv/analyze", billHandler.AnalyzeCSV, uploadRateLimiter)
	bills.POST("/extract", billHandler.Extract, uploadRateLimiter)
	bills.GET("", billHandler.List)
	bills.GET("/:id", billHandler.Get)
	bills.GET("/:id/export/csv", billHandler.ExportCSV)

	stats := api.Group("/stats", sessionMiddleware)
	stats.GET("/dashboard", statsHandler.Dashboard)

	notifications := api.Group("/notifications", sessionMiddleware)
	notifications.GET("/stream", notificationHandler.Stream)
}
