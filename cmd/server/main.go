package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/tutorias-uni/tutorias-api/internal/config"
	"github.com/tutorias-uni/tutorias-api/internal/database"
	"github.com/tutorias-uni/tutorias-api/internal/handler"
	"github.com/tutorias-uni/tutorias-api/internal/ledger"
	"github.com/tutorias-uni/tutorias-api/internal/middleware"
	"github.com/tutorias-uni/tutorias-api/internal/notify"
	"github.com/tutorias-uni/tutorias-api/internal/observability"
	"github.com/tutorias-uni/tutorias-api/internal/queue"
	"github.com/tutorias-uni/tutorias-api/internal/repository"
	"github.com/tutorias-uni/tutorias-api/internal/router"
	"github.com/tutorias-uni/tutorias-api/internal/session"
	"github.com/tutorias-uni/tutorias-api/internal/token"
)

func main() {
	_ = godotenv.Load() // .env is optional outside development

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "tutorias-api").Logger()
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.EnsureSchema(ctx, db); err != nil {
		logger.Fatal().Err(err).Msg("failed to ensure schema")
	}

	rdb, err := config.NewRedisClient()
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable; rate limiting and cache disabled")
	} else {
		defer rdb.Close()
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	userRepo := repository.NewUserRepo(db)
	codeRepo := repository.NewLoginCodeRepo(db)
	activityRepo := repository.NewActivityRepo(db)

	activity := ledger.New(activityRepo, userRepo, validate, logger)
	publisher := notify.NewPublisher(cfg.AMQPURL, logger)
	guard := session.NewGuard(activity, publisher, logger, session.WithTimeout(cfg.Session.InactivityTimeout))
	codec := token.NewCodec(cfg.JWTSecret, cfg.Session.TokenTTL)

	authHandler := handler.NewAuthHandler(cfg, userRepo, codeRepo, codec, guard, activity, publisher, validate, logger)
	activityHandler := handler.NewActivityHandler(activity)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			logger.Info().
				Str("request_id", v.RequestID).
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	}))

	observability.RegisterMetrics()
	router.RegisterRoutes(e, db)
	router.RegisterAuth(e, authHandler, codec, guard, middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))
	router.RegisterAdmin(e, activityHandler, codec, guard, middleware.NewRedisCache(config.LoadCacheConfig(), rdb))

	go func() {
		if err := queue.StartNotificationConsumer(ctx, cfg.AMQPURL, cfg.NotifyDir, logger); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("notification consumer stopped")
		}
	}()

	addr := ":" + cfg.Port
	go func() {
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Dur("inactivity_timeout", guard.Timeout()).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	logger.Info().Msg("server stopped")
}
