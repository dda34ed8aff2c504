package main

import (
	"context"
	"fmt"
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

	"github.com/noah-isme/gema-assessment-api/internal/config"
	"github.com/noah-isme/gema-assessment-api/internal/database"
	"github.com/noah-isme/gema-assessment-api/internal/handler"
	"github.com/noah-isme/gema-assessment-api/internal/middleware"
	"github.com/noah-isme/gema-assessment-api/internal/models"
	"github.com/noah-isme/gema-assessment-api/internal/observability"
	"github.com/noah-isme/gema-assessment-api/internal/repository"
	"github.com/noah-isme/gema-assessment-api/internal/router"
	"github.com/noah-isme/gema-assessment-api/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()
	observability.RegisterMetrics()

	db, err := database.ConnectPostgres(cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns:    cfg.DatabaseMaxOpenConns,
		ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
	})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.Student{},
		&models.Assessment{},
		&models.AssessmentQuestion{},
		&models.Submission{},
		&models.SubmissionResponse{},
		&models.ActivityLog{},
	); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(context.Background(), cfg.RedisURL, cfg.AppName)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	} else {
		logger.Warn().Msg("redis disabled: accommodation cache, sweep lock and cross-replica events are off")
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Close()
	}

	probes := []handler.HealthProbe{{Name: "postgres", Check: func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}}}
	if redisClient != nil {
		probes = append(probes, handler.HealthProbe{Name: "redis", Check: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}})
	}
	if natsConn != nil {
		probes = append(probes, handler.HealthProbe{Name: "nats", Check: func(context.Context) error {
			if !natsConn.IsConnected() {
				return fmt.Errorf("nats status %s", natsConn.Status())
			}
			return nil
		}})
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	studentRepo := repository.NewStudentRepository(db)
	assessmentRepo := repository.NewAssessmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)

	events := service.NewSubmissionEvents(redisClient, cfg.RealtimeChannel, natsConn, logger)
	activityService := service.NewActivityService(activityRepo, validate, logger)
	accommodationService := service.NewAccommodationService(studentRepo, redisClient, cfg.AccommodationCacheTTL, cfg.AccommodationMaxMultiplier, validate, logger)
	enforcer := service.NewDeadlineEnforcer(submissionRepo, assessmentRepo, activityService, events, logger)
	assessmentService := service.NewAssessmentService(assessmentRepo, submissionRepo, validate, logger)
	submissionService := service.NewSubmissionService(service.SubmissionDependencies{
		Submissions: submissionRepo,
		Assessments: assessmentRepo,
		Resolver:    accommodationService,
		Answers:     service.NewAnswerStore(submissionRepo),
		Enforcer:    enforcer,
		Events:      events,
		Validator:   validate,
		Logger:      logger,
	})
	gradingService := service.NewGradingService(submissionRepo, assessmentRepo, validate, activityService, events, logger)
	seedService := service.NewSeedService(studentRepo, assessmentRepo, cfg.SeedEnabled, cfg.SeedToken, logger)
	sweeper := service.NewSweeper(enforcer, submissionRepo, assessmentRepo, redisClient, service.SweeperConfig{
		Interval:  cfg.SweepInterval,
		BatchSize: cfg.SweepBatchSize,
	}, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AllowOrigins: cfg.CORSAllowOrigins})
	router.Register(app, cfg, router.Dependencies{
		AssessmentHandler: handler.NewAssessmentHandler(assessmentService, submissionService, logger),
		SubmissionHandler: handler.NewSubmissionHandler(submissionService, gradingService, events, handler.SubmissionHandlerOptions{
			Autosave: middleware.RateLimit("autosave", cfg.AutosavePerMinute, time.Minute),
			Tick:     cfg.RealtimeTick,
		}, logger),
		AccommodationHandler: handler.NewAccommodationHandler(accommodationService, logger),
		ActivityHandler:      handler.NewActivityHandler(activityService, logger),
		SeedHandler:          handler.NewSeedHandler(seedService, logger),
		JWTMiddleware:        middleware.JWTProtected(cfg.JWTSecret),
		HealthProbes:         probes,
	})

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	events.Start(workerCtx)
	go sweeper.Run(workerCtx)

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app, stopWorkers)
}

func waitForShutdown(app *fiber.App, stopWorkers context.CancelFunc) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()
	stopWorkers()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
