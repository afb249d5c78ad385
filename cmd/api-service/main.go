package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/cuongbtq/gwo-trainer/internal/api/handler"
	"github.com/cuongbtq/gwo-trainer/internal/api/router"
	"github.com/cuongbtq/gwo-trainer/internal/artifact"
	"github.com/cuongbtq/gwo-trainer/internal/bus"
	"github.com/cuongbtq/gwo-trainer/internal/cache"
	"github.com/cuongbtq/gwo-trainer/internal/config"
	"github.com/cuongbtq/gwo-trainer/internal/lifecycle"
	"github.com/cuongbtq/gwo-trainer/internal/metrics"
	"github.com/cuongbtq/gwo-trainer/internal/storage"
	"github.com/cuongbtq/gwo-trainer/shared/logger"
	"github.com/cuongbtq/gwo-trainer/shared/postgresql"
	"github.com/cuongbtq/gwo-trainer/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var sink metrics.Sink = metrics.NewNoopSink()
	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		sink = metrics.NewPrometheusSink(registry, appLogger.Logger)
		metricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
	}

	// Initialize PostgreSQL client
	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	appLogger.Info("Database connection established")

	// Dispatch events are published on a connection opened per send
	publisher := bus.NewProducer(
		rabbitmq.NewProducer(rabbitConfig(&cfg.RabbitMQ), appLogger.Logger),
		sink,
		appLogger.Logger,
	)

	// Predictions read the artifacts the worker wrote
	artifacts, err := artifact.New(context.Background(), artifact.Config{
		Backend:      cfg.Artifacts.Backend,
		BaseDir:      cfg.Artifacts.BaseDir,
		Bucket:       cfg.Artifacts.Bucket,
		Region:       cfg.Artifacts.Region,
		Endpoint:     cfg.Artifacts.Endpoint,
		UsePathStyle: cfg.Artifacts.UsePathStyle,
	}, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize artifact store: %w", err)
	}

	// Summary cache
	var summaryCache cache.SummaryCache = cache.NoopCache{}
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		summaryCache = cache.NewRedisCache(redisClient, cfg.Redis.TTL, appLogger.Logger)
		appLogger.Info("Summary cache enabled", slog.String("addr", cfg.Redis.Addr))
	}

	lifecycleConfig := lifecycle.Config{
		Origin:                cfg.Training.Origin,
		TrainChannel:          cfg.RabbitMQ.Channels.TrainModel,
		DefaultEpochs:         cfg.Training.DefaultEpochs,
		DefaultPopulationSize: cfg.Training.DefaultPopulationSize,
		MinimalAge:            cfg.Training.MinimalAge,
	}

	// Every request gets its own session
	services := func() (handler.Service, func()) {
		session := dbClient.Session().OnRetry(sink.StoreRetry)
		manager := lifecycle.NewManager(lifecycleConfig, lifecycle.Dependencies{
			Models:    storage.NewModelRepository(session, appLogger.Logger),
			Histories: storage.NewHistoryRepository(session, appLogger.Logger),
			Publisher: publisher,
			Artifacts: artifacts,
			Cache:     summaryCache,
			Metrics:   sink,
			Logger:    appLogger.Logger,
		})
		return manager, func() { _ = session.Close() }
	}

	// Initialize router
	r := initRouter(cfg.App.Environment, &handler.Dependencies{
		Logger:         appLogger.Logger,
		Services:       services,
		HealthCheck:    dbClient.HealthCheck,
		MetricsHandler: metricsHandler,
		ServiceName:    cfg.App.Name,
	})

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	appLogger.Info("Starting HTTP server",
		slog.String("address", addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
	)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	appLogger.Info("API service is running",
		slog.String("address", addr),
	)

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Shutting down server...", slog.String("signal", sig.String()))
	case err := <-serverErr:
		appLogger.Error("Server failed to start", slog.Any("error", err))
		return err
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
		NoColor:      cfg.NoColor,
	}

	return logger.New(loggerCfg)
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		Schema:          cfg.Schema,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		RetryAttempts:   cfg.RetryAttempts,
		RetryBackoff:    cfg.RetryBackoff,
	}

	return postgresql.NewClient(dbConfig, logger)
}

// rabbitConfig maps the RabbitMQ section onto the client configuration
func rabbitConfig(cfg *config.RabbitMQConfig) *rabbitmq.Config {
	return &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PrefetchCount:      cfg.Consumer.PrefetchCount,
		ConsumerTag:        cfg.Consumer.Tag,
	}
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(environment string, deps *handler.Dependencies) *gin.Engine {
	// Set Gin mode based on environment
	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	return router.SetupRouter(deps)
}
