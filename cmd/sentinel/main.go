package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/aman-churiwal/api-sentinel/internal/config"
	"github.com/aman-churiwal/api-sentinel/internal/server"
	"github.com/aman-churiwal/api-sentinel/internal/storage"
)

func main() {
	// Load env if it exists
	godotenv.Load()

	cfg, err := config.Load("config.json")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Server.Environment)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	store := newCounterStore(cfg, logger)
	defer store.Close()

	postgres, err := storage.NewPostgres(cfg.Postgres.DSN)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer postgres.Close()

	if err := postgres.AutoMigrate(); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	srv := server.New(cfg, store, postgres, logger)

	if email, password := os.Getenv("ADMIN_EMAIL"), os.Getenv("ADMIN_PASSWORD"); email != "" && password != "" {
		if err := srv.BootstrapAdmin(context.Background(), email, password); err != nil {
			logger.Fatal("failed to bootstrap admin account", zap.Error(err))
		}
	}

	go func() {
		addr := ":" + cfg.Server.Port
		if err := srv.Run(addr); err != nil {
			logger.Fatal("server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}

func newLogger(environment string) (*zap.Logger, error) {
	if environment == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// newCounterStore connects to redis, falling back to the in-memory store
// so the service can run in development without a redis instance.
func newCounterStore(cfg *config.Config, logger *zap.Logger) storage.CounterStore {
	redis, err := storage.NewRedis(
		cfg.Redis.GetRedisAddr(),
		cfg.Redis.Password,
		cfg.Redis.DB,
	)
	if err != nil {
		if cfg.Server.Environment == "production" {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		logger.Warn("redis unavailable, using in-memory counters", zap.Error(err))
		return storage.NewMemoryStore()
	}

	logger.Info("connected to redis", zap.String("addr", cfg.Redis.GetRedisAddr()))
	return redis
}
