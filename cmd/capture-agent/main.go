package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/applytrack/internal/apiclient"
	"github.com/cuongbtq/applytrack/internal/background"
	"github.com/cuongbtq/applytrack/internal/bus"
	"github.com/cuongbtq/applytrack/internal/capture"
	"github.com/cuongbtq/applytrack/internal/config"
	"github.com/cuongbtq/applytrack/internal/kvstore"
	"github.com/cuongbtq/applytrack/internal/pending"
	"github.com/cuongbtq/applytrack/internal/platform"
	"github.com/cuongbtq/applytrack/internal/syncqueue"
	"github.com/cuongbtq/applytrack/shared/logger"
	"github.com/cuongbtq/applytrack/shared/rabbitmq"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
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

	defaultConfigPath := os.Getenv("CAPTURE_AGENT_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/capture-agent/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	eventsPath := flag.String("events", "-", "Page event stream (JSON lines), - for stdin")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateCaptureConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting capture agent",
		slog.String("app", cfg.App.Name),
		slog.String("transport", cfg.Capture.Transport),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kv, err := initStorage(ctx, &cfg.Storage, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer kv.Close()

	transport, closeTransport, err := initTransport(cfg, kv, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize message bus: %w", err)
	}
	defer closeTransport()

	controller := capture.NewController(
		bus.NewClient(transport, cfg.Capture.RequestTimeout),
		pending.NewStore(kv, appLogger.Logger),
		appLogger.WithAttrs(slog.String("component", "capture")).Logger,
	)

	driver := capture.NewDriver(&capture.DriverConfig{
		Registry:   platform.NewRegistry(appLogger.Logger),
		Controller: controller,
		Logger:     appLogger.Logger,
		Timeout:    cfg.Capture.CompletionTimeout,
	})

	events, err := openEvents(*eventsPath)
	if err != nil {
		return err
	}
	defer events.Close()

	if err := driver.Run(ctx, events); err != nil && ctx.Err() == nil {
		return err
	}

	appLogger.Info("Capture agent finished")
	return nil
}

// initTransport connects to the background over RabbitMQ, or hosts the
// background in-process for the local transport
func initTransport(cfg *config.Config, kv kvstore.Store, logger *slog.Logger) (bus.Transport, func(), error) {
	if cfg.Capture.Transport == config.TransportLocal {
		backend := apiclient.New(kv, &apiclient.Config{
			ProductionURL:  cfg.Backend.ProductionURL,
			DevelopmentURL: cfg.Backend.DevelopmentURL,
			Timeout:        cfg.Backend.Timeout,
			VerifyToken:    cfg.Backend.VerifyToken,
		}, logger)

		notifier := background.NewNotifier(logger)
		queue := syncqueue.New(&syncqueue.Config{
			Deliverer: backend,
			Failed:    syncqueue.NewFailedStore(kv),
			Metrics:   syncqueue.NewMetrics(prometheus.NewRegistry()),
			Logger:    logger,
			Observer:  notifier,
			Interval:  cfg.Sync.Interval,
		})

		router := bus.NewRouter(logger)
		background.NewHandlers(queue, backend, background.NewBadge(logger), notifier, logger).Register(router)

		local := bus.NewLocal(router)
		return local, func() {
			local.Stop()
			queue.Wait()
		}, nil
	}

	rabbitClient, err := rabbitmq.NewClient(&rabbitmq.Config{
		Host:               cfg.RabbitMQ.Host,
		Port:               cfg.RabbitMQ.Port,
		User:               cfg.RabbitMQ.User,
		Password:           cfg.RabbitMQ.Password,
		VHost:              cfg.RabbitMQ.VHost,
		ExchangeName:       cfg.RabbitMQ.Exchange.Name,
		ExchangeType:       cfg.RabbitMQ.Exchange.Type,
		ExchangeDurable:    cfg.RabbitMQ.Exchange.Durable,
		ExchangeAutoDelete: cfg.RabbitMQ.Exchange.AutoDelete,
		QueueName:          cfg.RabbitMQ.Queue.Name,
		QueueDurable:       cfg.RabbitMQ.Queue.Durable,
		QueueAutoDelete:    cfg.RabbitMQ.Queue.AutoDelete,
		QueueExclusive:     cfg.RabbitMQ.Queue.Exclusive,
		RoutingKey:         cfg.RabbitMQ.RoutingKey,
		RetryAttempts:      cfg.RabbitMQ.Connection.RetryAttempts,
		RetryInterval:      cfg.RabbitMQ.Connection.RetryInterval,
		Heartbeat:          cfg.RabbitMQ.Connection.Heartbeat,
		ConnectionTimeout:  cfg.RabbitMQ.Connection.ConnectionTimeout,
		PublishRetries:     cfg.RabbitMQ.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.RabbitMQ.Publish.RetryInterval,
		PublishBackoffMult: cfg.RabbitMQ.Publish.BackoffMultiplier,
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	client, err := bus.NewAMQPClient(rabbitClient, logger)
	if err != nil {
		rabbitClient.Close()
		return nil, nil, err
	}

	return client, func() {
		client.Close()
		rabbitClient.Close()
	}, nil
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

func openEvents(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open events: %w", err)
	}
	return f, nil
}
