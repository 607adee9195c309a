package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"study-planner/api"
	"study-planner/config"
	"study-planner/storage"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file (default $CONFIG_FILE)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := log.New()
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
		logger.SetLevel(log.DebugLevel)
	}
	if cfg.LogFormat == config.LogFormatJSON {
		log.SetFormatter(&log.JSONFormatter{})
		logger.SetFormatter(&log.JSONFormatter{})
	}

	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.WithError(err).Warn("tracer provider shutdown failed")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var backend storage.Backend
	switch cfg.StorageBackend {
	case config.BackendTable:
		client, err := storage.NewTableClient(cfg.StorageConnectionString, cfg.RecordsTable)
		if err != nil {
			log.Fatalf("table client: %v", err)
		}
		backend = storage.TableBackend(client)
	default:
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			log.Fatalf("data dir: %v", err)
		}
		backend = storage.DiskBackend(cfg.DataDir)
	}
	store, err := storage.New(ctx, backend, logger)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	logger.WithFields(log.Fields{"backend": cfg.StorageBackend, "data_dir": cfg.DataDir}).Info("storage opened")

	var feed *storage.ChangeFeed
	if cfg.ChangeQueue != "" {
		queue, err := storage.NewQueueClient(cfg.StorageConnectionString, cfg.ChangeQueue)
		if err != nil {
			log.Fatalf("change queue: %v", err)
		}
		feed = storage.NewChangeFeed(queue, storage.ChangeFeedConfig{
			Workers: cfg.ChangeFeedWorkers,
			Buffer:  cfg.ChangeFeedBuffer,
			Timeout: cfg.ChangeFeedTimeout,
		}, logger)
		store.WithChangeFeed(feed)
	}
	defer feed.Close()

	var deduper api.Deduper
	if cfg.RedisConnectionString != "" {
		rc := redis.NewClient(redisOptions(cfg.RedisConnectionString))
		defer rc.Close()
		deduper = api.NewRedisDeduper(rc, cfg.DeduperTTL)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.CORSAllowOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, "Idempotency-Key"},
	}))
	e.Use(middleware.Decompress())
	e.Use(middleware.BodyLimit("64K"))

	api.Register(e, store, deduper, logger)

	go func() {
		if err := e.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("server shutdown failed")
	}
}

// redisOptions accepts either a redis:// URL or the Azure style
// "host:port,password=...,ssl=True" connection string.
func redisOptions(conn string) *redis.Options {
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts := &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}
