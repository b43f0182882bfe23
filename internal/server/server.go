package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"example.com/billsage/backend/internal/ai"
	"example.com/billsage/backend/internal/analysis"
	"example.com/billsage/backend/internal/auth"
	"example.com/billsage/backend/internal/config"
	"example.com/billsage/backend/internal/files"
	"example.com/billsage/backend/internal/handlers"
	"example.com/billsage/backend/internal/metrics"
	"example.com/billsage/backend/internal/notifications"
	"example.com/billsage/backend/internal/storage"
)

// New собирает HTTP-сервер Echo с роутами и зависимостями.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, store storage.Store) (*echo.Echo, error) {
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewValidator()

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger(logger))

	appMetrics := metrics.New()

	fileStore, err := files.NewStore(cfg.Uploads.Dir)
	if err != nil {
		return nil, fmt.Errorf("init file store: %w", err)
	}

	geminiClient, err := ai.NewGeminiClient(ctx, cfg.AI.APIKey, cfg.AI.Model, cfg.AI.Timeout, cfg.AI.MaxOutputTokens)
	if err != nil {
		return nil, fmt.Errorf("init gemini client: %w", err)
	}

	aiService, err := ai.NewService(geminiClient)
	if err != nil {
		return nil, fmt.Errorf("init ai service: %w", err)
	}

	aiLimiter := rate.NewLimiter(rate.Limit(float64(cfg.AI.RateLimitPerMinute)/60.0), cfg.AI.RateLimitBurst)
	analyzer := analysis.New(aiService, aiLimiter, appMetrics, logger)

	notificationHub := notifications.NewHub()
	verifier := auth.NewVerifier(cfg.Auth.SessionSecret, cfg.Auth.SessionIssuer)

	userHandler := handlers.NewUserHandler(store)
	billHandler := handlers.NewBillHandler(store, fileStore, aiService, analyzer, notificationHub, appMetrics, cfg.Uploads.MaxFileSizeBytes, cfg.Uploads.FreePlanBillLimit)
	statsHandler := handlers.NewStatsHandler(store)
	notificationHandler := handlers.NewNotificationHandler(notificationHub)

	registerRoutes(
		e,
		userHandler,
		billHandler,
		statsHandler,
		notificationHandler,
		appMetrics.Handler(),
		auth.SessionMiddleware(verifier),
		uploadRateLimiter(cfg.AI),
	)

	return e, nil
}

// NewHTTPServer создает net/http сервер с заданными таймаутами.
func NewHTTPServer(cfg config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

func requestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogMethod:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.String("remote_ip", v.RemoteIP),
				slog.Duration("latency", v.Latency),
			}

			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
			}

			msg := "request completed"
			if v.Status >= http.StatusInternalServerError {
				logger.LogAttrs(c.Request().Context(), slog.LevelError, msg, attrs...)
				return nil
			}

			logger.LogAttrs(c.Request().Context(), slog.LevelInfo, msg, attrs...)
			return nil
		},
	})
}

func uploadRateLimiter(cfg config.AIConfig) echo.MiddlewareFunc {
	limit := rate.Limit(float64(cfg.RateLimitPerMinute) / 60.0)
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      limit,
		Burst:     cfg.RateLimitBurst,
		ExpiresIn: time.Minute,
	})

	return middleware.RateLimiter(store)
}
