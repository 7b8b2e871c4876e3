package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"taskboard/api"
	"taskboard/cache"
	"taskboard/storage"
	"taskboard/workflow"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("load .env: %v", err)
	}
	cfg, err := loadConfig(os.Getenv)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := log.New()
	if cfg.Debug {
		logger.SetLevel(log.DebugLevel)
	}

	store, err := newEntityStore(cfg, logger)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	var (
		backend cache.Backend  = cache.NewMemory()
		guard   workflow.Guard = workflow.NewMemoryGuard()
	)
	if cfg.RedisConnectionString != "" {
		redisOpts, _ := parseRedisOptions(cfg.RedisConnectionString)
		rc := redis.NewClient(redisOpts)
		defer rc.Close()
		backend = cache.NewRedis(rc, "taskboard:cache:", cfg.CacheTTL)
		guard = workflow.NewRedisGuard(rc, "taskboard:", cfg.AdvanceGuardTTL)
	}
	cacheClient := cache.New(backend, logger)

	var activity workflow.ActivityPublisher = storage.LogActivity{Logger: logger}
	if cfg.ActivityQueue != "" {
		q, err := storage.NewQueueActivity(cfg.StorageConnectionString, cfg.ActivityQueue)
		if err != nil {
			log.Fatalf("activity queue: %v", err)
		}
		activity = q
	}

	model := workflow.NewModel(store, cacheClient,
		workflow.WithGuard(guard),
		workflow.WithLogger(logger),
		workflow.WithActivity(activity),
	)

	auth, err := newAuth(cfg)
	if err != nil {
		log.Fatalf("auth: %v", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.JSONSerializer = api.SonicSerializer{}
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, echo.HeaderContentEncoding},
	}))
	e.Use(api.GzipRequestMiddleware(1 << 20))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessions := api.NewSessions(model, cfg.SessionIdle)
	go sessions.Run(ctx, time.Minute, logger)
	api.Register(e, model, sessions, auth, cacheClient, logger)

	go func() {
		if err := e.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server stopped")
		}
	}()
	logger.WithField("addr", cfg.ListenAddr).Info("taskboard listening")

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("shutdown")
	}
}

func newEntityStore(cfg Config, logger *log.Logger) (workflow.EntityStore, error) {
	if !cfg.UseTables() {
		return storage.NewHTTPStore(cfg.EntityStoreURL, cfg.EntityStoreToken, nil), nil
	}
	return storage.NewTableStore(cfg.StorageConnectionString, cfg.TasksTable, cfg.UsersTable, cfg.ProjectsTable, logger)
}

func newAuth(cfg Config) (*api.Auth, error) {
	opts := api.AuthOptions{LocalMode: cfg.LocalAuthMode, LocalSecret: cfg.LocalAuthSecret, KeyCacheTTL: cfg.JWKSCacheTTL}
	if cfg.LocalAuthMode != "" {
		return api.NewAuth(nil, "", "", opts)
	}
	jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", cfg.Auth0Domain)
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
	if err != nil {
		return nil, fmt.Errorf("jwks: %w", err)
	}
	return api.NewAuth(jwks, cfg.Auth0Audience, "https://"+cfg.Auth0Domain+"/", opts)
}
