package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	appIngest "github.com/codedrop-io/codedrop/internal/application/ingest"
	"github.com/codedrop-io/codedrop/internal/infrastructure/config"
	"github.com/codedrop-io/codedrop/internal/infrastructure/ingest"
	"github.com/codedrop-io/codedrop/internal/infrastructure/pubsub"
	"github.com/codedrop-io/codedrop/internal/shared/logger"
)

func main() {
	// Parse environment from command line or env variable
	env := "development"
	if len(os.Args) > 1 {
		env = os.Args[1]
	}
	if envVar := os.Getenv("ENV"); envVar != "" {
		env = envVar
	}

	// Load configuration
	cfg, err := config.Load(env)
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Init(&cfg.Logger, cfg.Server.Mode); err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger()
	log.Infow("starting feed ingest worker",
		"environment", env,
		"brokers", cfg.Ingest.KafkaBrokers,
		"topic", cfg.Ingest.KafkaTopic)

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.GetAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	// Test Redis connection
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = redisClient.Ping(pingCtx).Err()
	pingCancel()
	if err != nil {
		log.Fatalw("failed to connect to redis", "error", err)
	}
	log.Infow("redis connection established", "address", cfg.Redis.GetAddr())

	consumer := ingest.NewKafkaFeedConsumer(cfg.Ingest, log.Named("kafka"))
	defer func() {
		if err := consumer.Close(); err != nil {
			log.Warnw("failed to close kafka consumer", "error", err)
		}
	}()

	bus := pubsub.NewRedisIngestBus(redisClient, log.Named("ingest-bus"))
	relay := appIngest.NewRelay(consumer, bus, log.Named("relay"))

	// Cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := relay.Run(ctx); err != nil {
		log.Errorw("feed relay failed", "error", err)
		os.Exit(1)
	}

	log.Infow("feed ingest worker stopped")
}
