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
	"github.com/rs/zerolog"

	"github.com/amanar-edu/carnet-api/internal/config"
	"github.com/amanar-edu/carnet-api/internal/database"
	"github.com/amanar-edu/carnet-api/internal/handler"
	"github.com/amanar-edu/carnet-api/internal/middleware"
	"github.com/amanar-edu/carnet-api/internal/models"
	"github.com/amanar-edu/carnet-api/internal/repository"
	"github.com/amanar-edu/carnet-api/internal/router"
	"github.com/amanar-edu/carnet-api/internal/service"
	"github.com/amanar-edu/carnet-api/pkg/templatestore"
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

	if err := db.AutoMigrate(
		&models.SchoolYear{},
		&models.Student{},
		&models.PromotionRecord{},
		&models.Enrollment{},
		&models.ClassGroup{},
		&models.TeacherClassLink{},
		&models.StaffSupervision{},
		&models.LevelScope{},
		&models.CarnetAssignment{},
		&models.TeacherCompletion{},
		&models.Signature{},
		&models.BypassScope{},
		&models.PromotionArchive{},
		&models.ActivityLog{},
	); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = nats.Connect(cfg.NATSURL, nats.Name(cfg.AppName))
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Drain()
	}

	templates, err := templatestore.New(templatestore.Config{
		BaseURL: cfg.TemplateStoreURL,
		Timeout: cfg.TemplateTimeout,
	}, logger)
	if err != nil {
		log.Fatalf("failed to create template store client: %v", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	schoolYearRepo := repository.NewSchoolYearRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	classRepo := repository.NewClassRepository(db)
	carnetRepo := repository.NewCarnetRepository(db)
	signatureRepo := repository.NewSignatureRepository(db)
	bypassRepo := repository.NewBypassRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)

	ladder := service.DefaultLevelLadder()
	if len(cfg.Levels) > 0 {
		ladder = service.NewLevelLadder(cfg.Levels)
	}

	scoper := service.NewAuthorizationScoper(classRepo, enrollmentRepo, bypassRepo, logger)
	schoolYears := service.NewSchoolYearService(schoolYearRepo, logger)
	ledger := service.NewSignatureLedger(signatureRepo, logger)
	engine := service.NewPromotionEngine(db, ladder, schoolYears, ledger, scoper, logger)
	activityService := service.NewActivityService(activityRepo, logger)

	reviewService := service.NewCarnetReviewService(service.CarnetReviewDeps{
		Carnets:     carnetRepo,
		Students:    studentRepo,
		Classes:     classRepo,
		Scoper:      scoper,
		SchoolYears: schoolYears,
		Ledger:      ledger,
		Engine:      engine,
		Templates:   templates,
		Activity:    activityService,
		Policy: service.GatingPolicy{
			RestrictSignatures: cfg.RestrictSignatures,
			ExemptStandard:     cfg.ExemptStandard,
			ExemptEndOfYear:    cfg.ExemptEndOfYear,
		},
		Validator: validate,
		Redis:     redisClient,
		CacheTTL:  cfg.ReviewCacheTTL,
		NATS:      natsConn,
	}, logger)

	carnetHandler := handler.NewCarnetHandler(reviewService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		CarnetHandler: carnetHandler,
		JWTMiddleware: middleware.JWTProtected(cfg.JWTSecret),
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
