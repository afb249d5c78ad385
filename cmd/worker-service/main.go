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

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/cuongbtq/gwo-trainer/internal/artifact"
	"github.com/cuongbtq/gwo-trainer/internal/bus"
	"github.com/cuongbtq/gwo-trainer/internal/cache"
	"github.com/cuongbtq/gwo-trainer/internal/config"
	"github.com/cuongbtq/gwo-trainer/internal/lifecycle"
	"github.com/cuongbtq/gwo-trainer/internal/metrics"
	"github.com/cuongbtq/gwo-trainer/internal/preprocessing"
	"github.com/cuongbtq/gwo-trainer/internal/reconciler"
	"github.com/cuongbtq/gwo-trainer/internal/storage"
	"github.com/cuongbtq/gwo-trainer/internal/training"
	"github.com/cuongbtq/gwo-trainer/internal/worker"
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
	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var sink metrics.Sink = metrics.NewNoopSink()
	if cfg.Metrics.Enabled {
		sink = metrics.NewPrometheusSink(registry, appLogger.Logger)
	}

	// Initialize PostgreSQL client
	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	appLogger.Info("Database connection established")

	artifacts, err := artifact.New(ctx, artifact.Config{
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

	var summaryCache cache.SummaryCache = cache.NoopCache{}
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		summaryCache = cache.NewRedisCache(redisClient, cfg.Redis.TTL, appLogger.Logger)
	}

	rabbitCfg := rabbitConfig(&cfg.RabbitMQ)

	// The training loop, the heartbeat and the reconciler each hold their own session
	trainingSession := dbClient.Session().OnRetry(sink.StoreRetry)
	defer trainingSession.Close()
	heartbeatSession := dbClient.Session().OnRetry(sink.StoreRetry)
	defer heartbeatSession.Close()

	histories := storage.NewHistoryRepository(trainingSession, appLogger.Logger)
	properties := preprocessing.NewPropertyClient(preprocessing.PropertyClientConfig{
		BaseURL:        cfg.Dataset.PropertyAPIURL,
		RetryAttempts:  cfg.Dataset.RetryAttempts,
		RetryInterval:  cfg.Dataset.RetryInterval,
		RequestTimeout: cfg.Dataset.RequestTimeout,
	}, appLogger.Logger)

	manager := lifecycle.NewManager(lifecycle.Config{
		Origin:                cfg.Training.Origin,
		TrainChannel:          cfg.RabbitMQ.Channels.TrainModel,
		DefaultEpochs:         cfg.Training.DefaultEpochs,
		DefaultPopulationSize: cfg.Training.DefaultPopulationSize,
		MinimalAge:            cfg.Training.MinimalAge,
	}, lifecycle.Dependencies{
		Models:    storage.NewModelRepository(trainingSession, appLogger.Logger),
		Histories: histories,
		Publisher: bus.NewProducer(rabbitmq.NewProducer(rabbitCfg, appLogger.Logger), sink, appLogger.Logger),
		Preparer:  preprocessing.NewPreprocessor(properties, cfg.Training.TestSize, cfg.Training.Seed, appLogger.Logger),
		Trainer: training.NewDriver(
			training.NewGreyWolf(cfg.Training.Seed),
			training.NewMLPLearner(cfg.Training.Seed),
			histories,
			sink,
			appLogger.Logger,
		),
		Artifacts: artifacts,
		Cache:     summaryCache,
		Metrics:   sink,
		Logger:    appLogger.Logger,
	})

	handlers := worker.NewRegistry()
	callback := worker.NewTrainModelCallback(
		manager,
		storage.NewModelRepository(heartbeatSession, appLogger.Logger),
		cfg.Worker.HeartbeatInterval,
		appLogger.Logger,
	)
	if err := handlers.Register(cfg.RabbitMQ.Channels.TrainModel, callback); err != nil {
		return fmt.Errorf("failed to register handler: %w", err)
	}

	// Create worker instance
	workerInstance := worker.NewWorker(&worker.Config{
		Logger:            appLogger.Logger,
		Source:            rabbitmq.NewConsumer(rabbitCfg, appLogger.Logger),
		Registry:          handlers,
		Metrics:           sink,
		ReconnectInterval: cfg.Worker.ReconnectInterval,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return workerInstance.Start(gctx)
	})

	if cfg.Reconciler.Enabled {
		reconcilerSession := dbClient.Session().OnRetry(sink.StoreRetry)
		defer reconcilerSession.Close()

		sweeper := reconciler.New(reconciler.Config{
			Schedule:  cfg.Reconciler.Schedule,
			Threshold: cfg.Reconciler.Threshold,
			BatchSize: cfg.Reconciler.BatchSize,
		}, storage.NewModelRepository(reconcilerSession, appLogger.Logger), sink, appLogger.Logger)

		g.Go(func() error {
			return sweeper.Run(gctx)
		})
	}

	if cfg.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
		metricsServer := &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler: metricsMux,
		}

		g.Go(func() error {
			appLogger.Info("Metrics server listening",
				slog.String("address", metricsServer.Addr),
				slog.String("path", cfg.Metrics.Path),
			)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server failed: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return metricsServer.Shutdown(shutdownCtx)
		})
	}

	appLogger.Info("Worker service started successfully",
		slog.String("channel", cfg.RabbitMQ.Channels.TrainModel),
	)

	<-gctx.Done()
	appLogger.Info("Shutting down worker service...")

	// A model in training is aborted and marked ERROR before Start returns
	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			appLogger.Error("Worker error", slog.Any("error", err))
			return err
		}
		appLogger.Info("Worker stopped gracefully")
	case <-time.After(cfg.Worker.ShutdownTimeout):
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	appLogger.Info("Worker service shutdown complete")
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
