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

	"github.com/cuongbtq/applytrack/internal/api/router"
	"github.com/cuongbtq/applytrack/internal/apiclient"
	"github.com/cuongbtq/applytrack/internal/background"
	"github.com/cuongbtq/applytrack/internal/bus"
	"github.com/cuongbtq/applytrack/internal/config"
	"github.com/cuongbtq/applytrack/internal/kvstore"
	"github.com/cuongbtq/applytrack/internal/pending"
	"github.com/cuongbtq/applytrack/internal/syncqueue"
	"github.com/cuongbtq/applytrack/shared/logger"
	"github.com/cuongbtq/applytrack/shared/rabbitmq"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("SYNC_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/sync-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateSyncConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting sync service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kv, err := initStorage(ctx, &cfg.Storage, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer kv.Close()

	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	backend := apiclient.New(kv, &apiclient.Config{
		ProductionURL:  cfg.Backend.ProductionURL,
		DevelopmentURL: cfg.Backend.DevelopmentURL,
		Timeout:        cfg.Backend.Timeout,
		VerifyToken:    cfg.Backend.VerifyToken,
	}, appLogger.WithAttrs(slog.String("component", "apiclient")).Logger)

	notifier := background.NewNotifier(appLogger.Logger)
	queue := syncqueue.New(&syncqueue.Config{
		Deliverer: backend,
		Failed:    syncqueue.NewFailedStore(kv),
		Metrics:   syncqueue.NewMetrics(registry),
		Logger:    appLogger.WithAttrs(slog.String("component", "syncqueue")).Logger,
		Observer:  notifier,
		Interval:  cfg.Sync.Interval,
	})
	defer queue.Wait()

	badge := background.NewBadge(appLogger.Logger)
	busRouter := bus.NewRouter(appLogger.WithAttrs(slog.String("component", "bus")).Logger)
	background.NewHandlers(queue, backend, badge, notifier, appLogger.Logger).Register(busRouter)

	consumerTag := cfg.RabbitMQ.Consumer.Tag
	if consumerTag == "" {
		consumerTag = "sync-service"
	}
	server := bus.NewAMQPServer(rabbitClient, busRouter, consumerTag, appLogger.Logger)

	reconciler := background.NewReconciler(cfg.Sync.ReconcileSchedule, pending.NewStore(kv, appLogger.Logger), badge, appLogger.Logger)
	if err := reconciler.Start(ctx); err != nil {
		return err
	}
	defer reconciler.Stop()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      initRouter(cfg.App.Environment, appLogger.Logger, rabbitClient, registry),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Start(gctx)
	})

	g.Go(func() error {
		appLogger.Info("Starting HTTP server", slog.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		select {
		case <-gctx.Done():
		case amqpErr, ok := <-rabbitClient.Closed():
			if ok && amqpErr != nil {
				stop()
				return fmt.Errorf("rabbitmq connection lost: %w", amqpErr)
			}
		}

		appLogger.Info("Shutting down sync service...")
		server.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	appLogger.Info("Sync service is running")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	appLogger.Info("Sync service shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableSource,
		NoColor:      cfg.NoColor,
		TimeFormat:   time.RFC3339,
	})
}

// initStorage opens the durable key/value store
func initStorage(ctx context.Context, cfg *config.StorageConfig, logger *slog.Logger) (kvstore.Store, error) {
	return kvstore.Open(ctx, &kvstore.Config{
		Driver:           cfg.Driver,
		RedisURL:         cfg.RedisURL,
		RedisDialTimeout: cfg.DialTimeout,
		RedisPoolSize:    cfg.PoolSize,
		KeyPrefix:        cfg.KeyPrefix,
		SQLitePath:       cfg.SQLitePath,
	}, logger)
}

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	return rabbitmq.NewClient(&rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}, logger)
}

// initRouter serves health and metrics
func initRouter(environment string, logger *slog.Logger, rabbitClient *rabbitmq.Client, registry *prometheus.Registry) *gin.Engine {
	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(router.LoggerMiddleware(logger))

	r.GET("/health", func(c *gin.Context) {
		status, code := "healthy", http.StatusOK
		if !rabbitClient.IsConnected() {
			status, code = "unhealthy", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":  status,
			"service": "applytrack-sync-service",
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	return r
}
