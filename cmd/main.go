package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/shenikar/incident_coordination_system/internal/config"
	v1 "github.com/shenikar/incident_coordination_system/internal/handler/http/v1"
	"github.com/shenikar/incident_coordination_system/internal/repository"
	"github.com/shenikar/incident_coordination_system/internal/scheduler"
	"github.com/shenikar/incident_coordination_system/internal/service"
	"github.com/shenikar/incident_coordination_system/internal/webhook"
	"github.com/shenikar/incident_coordination_system/pkg/logger"
	"github.com/shenikar/incident_coordination_system/pkg/postgres"
	redisclient "github.com/shenikar/incident_coordination_system/pkg/redis"
	"github.com/sirupsen/logrus"

	_ "github.com/shenikar/incident_coordination_system/docs"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title Incident Coordination Core API
// @version 1.0
// @description Real-time incident coordination core: incident event logs, pull-based sync, geofenced public alerts with lazy expiry, consent ledger.
// @host localhost:8080
// @BasePath /api/v1
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
func runMigrations(cfg *config.Config, log *logrus.Logger) error {
	log.Info("Running database migrations...")

	migrationURL := cfg.DatabaseURL
	if !strings.HasPrefix(migrationURL, "pgx5://") {
		migrationURL = strings.Replace(migrationURL, "postgres://", "pgx5://", 1)
	}

	m, err := migrate.New(
		"file://migrations",
		migrationURL,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info("Database migrations applied successfully")
	return nil
}

func main() {
	// Загрузка конфигурации
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	log := logger.New(cfg.LogLevel)

	// Контекст для graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Единое внутрипроцессное хранилище ядра. Ограничение демо:
	// без внешних бэкендов состояние не разделяется между репликами
	memoryStore := repository.NewMemoryStore()

	var incidentRepo service.IncidentRepository = memoryStore
	var alertRepo service.AlertRepository = memoryStore
	var consentRepo service.ConsentRepository = memoryStore

	// Postgres (опционально): общее хранилище инцидентов, событий,
	// оповещений и аудита
	if cfg.DatabaseURL != "" {
		if err := runMigrations(cfg, log); err != nil {
			log.Fatalf("Failed to run database migrations: %v", err)
		}

		dbpool, err := postgres.NewPostgresDB(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to PostgreSQL: %v", err)
		}
		defer dbpool.Close()
		log.Info("Successfully connected to PostgreSQL")

		pgStore := repository.NewPostgresStore(dbpool)
		incidentRepo = pgStore
		alertRepo = pgStore
	}

	// Redis (опционально): реестр согласий и очередь вещания
	var publisher webhook.Publisher = webhook.NewNoopPublisher()
	if cfg.RedisAddr != "" {
		redisClient, err := redisclient.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		log.Info("Successfully connected to Redis")

		consentRepo = repository.NewRedisConsentStore(redisClient)
		publisher = webhook.NewRedisPublisher(redisClient)

		// Воркер доставки вещания
		worker := webhook.NewWorker(redisClient, log, cfg)
		worker.Start(ctx)
	}

	// Инициализация сервисов
	incidentService := service.NewIncidentService(incidentRepo, log, cfg)
	alertService := service.NewAlertService(alertRepo, log, publisher)
	consentService := service.NewConsentService(consentRepo, log, cfg)

	// Опциональный фоновый свипер просроченных оповещений.
	// По умолчанию выключен: канонический механизм - ленивый
	// перевод в expired при чтении
	if cfg.ExpirySweepCron != "" {
		sweeper := scheduler.New(alertService, log, cfg.ExpirySweepCron)
		if err := sweeper.Start(ctx); err != nil {
			log.Fatalf("Failed to start expiry sweeper: %v", err)
		}
		defer sweeper.Stop()
	}

	// Инициализация хэндлеров
	handler := v1.NewHandler(incidentService, alertService, consentService, log, cfg)

	// Настройка Gin роутера
	router := gin.Default()
	api := router.Group("/api/v1")
	handler.RegisterRoutes(api)

	// Добавление маршрута для Swagger UI
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Запуск HTTP-сервера
	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)

	srv := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	// Запуск сервера в горутине
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Error starting HTTP server: %v", err)
		}
	}()
	log.Infof("HTTP server started on port %s", cfg.HTTPPort)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Received shutdown signal, shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Info("Server gracefully stopped")
}
