package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/internflow/internflow-api/internal/config"
	"github.com/internflow/internflow-api/internal/database"
	"github.com/internflow/internflow-api/internal/handler"
	"github.com/internflow/internflow-api/internal/middleware"
	"github.com/internflow/internflow-api/internal/models"
	"github.com/internflow/internflow-api/internal/repository"
	"github.com/internflow/internflow-api/internal/router"
	"github.com/internflow/internflow-api/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(&models.User{}, &models.Rating{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	if err := repository.EnsureRatingIndexes(db); err != nil {
		log.Fatalf("failed to create rating indexes: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	} else {
		logger.Warn().Msg("redis url not configured, statistics caching disabled")
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Close()
	} else {
		logger.Warn().Msg("nats url not configured, rating event publishing disabled")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	ratingRepo := repository.NewRatingRepository(db)
	directory := repository.NewUserDirectory(db)

	eligibility := service.NewEligibilityService(directory, logger)
	events := service.NewNATSRatingEventPublisher(natsConn, cfg.NATSEventSubject, logger)
	statsService := service.NewRatingStatsService(ratingRepo, redisClient, cfg.StatsCacheTTL, logger)
	evaluationService := service.NewEvaluationService(ratingRepo, eligibility, validate, events, statsService, logger)

	ratingHandler := handler.NewRatingHandler(evaluationService, validate, logger)
	statsHandler := handler.NewRatingStatsHandler(statsService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, CORSAllowOrigins: cfg.CORSAllowOrigins})
	router.Register(app, cfg, router.Dependencies{
		RatingHandler:      ratingHandler,
		RatingStatsHandler: statsHandler,
		JWTMiddleware:      middleware.JWTProtected(cfg.JWTSecret),
		RequireRole:        middleware.RequireRole,
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
