package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/park285/goban-server/internal/config"
	"github.com/park285/goban-server/internal/engine"
	"github.com/park285/goban-server/internal/exercise"
	"github.com/park285/goban-server/internal/fetch"
	"github.com/park285/goban-server/internal/gamelog"
	"github.com/park285/goban-server/internal/httpapi"
	"github.com/park285/goban-server/internal/obslog"
	"github.com/park285/goban-server/internal/session"
	"github.com/redis/go-redis/v9"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.Init(cfg.Log); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()
	logger := obslog.Named("main")

	levels, err := engine.LoadLevels(cfg.LevelsFile)
	if err != nil {
		logger.Fatal("levels_load_failed", zap.Error(err))
	}

	var launcher engine.Launcher
	if cfg.EngineConfigured() {
		launcher = engine.NewKataGo(engine.Config{
			EnginePath:     cfg.EnginePath,
			ModelPath:      cfg.ModelPath,
			GameConfig:     cfg.GTPConfigPath,
			AnalysisConfig: cfg.AnalysisConfig,
			QuitGrace:      cfg.EngineQuitGrace,
			Stderr:         os.Stderr,
		}, levels)
	} else {
		logger.Warn("engine_not_configured", zap.String("mode", "placeholder"))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo := openGameLog(ctx, cfg, logger)
	defer repo.Close()

	store, closeStore := openExerciseStore(ctx, cfg, logger)
	defer closeStore()

	mgr := session.New(session.Options{
		ConcurrencyPerClient: cfg.ConcurrencyPerClient,
		GameTTL:              cfg.GameTTL,
		ReviewTTL:            cfg.ReviewTTL,
		SweepInterval:        cfg.SweepInterval,
		AnalysisTimeout:      cfg.AnalysisTimeout,
		ScratchDir:           cfg.ScratchDir,
	}, launcher, repo)

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		mgr.Run(sweepCtx)
	}()

	api := httpapi.New(httpapi.Deps{
		Manager:   mgr,
		Exercises: store,
		GameLog:   repo,
		Fetcher: fetch.NewClient(
			fetch.WithTimeout(cfg.RemoteFetchTimeout),
			fetch.WithMaxBytes(cfg.RemoteSGFMaxBytes),
		),
		StaticDir:      cfg.StaticDir,
		RequestTimeout: cfg.AnalysisTimeout + 10*time.Second,
	})
	srv := &fasthttp.Server{
		Handler:            api.Handler(),
		Name:               "goban-server",
		ReadTimeout:        30 * time.Second,
		WriteTimeout:       cfg.AnalysisTimeout + 30*time.Second,
		MaxRequestBodySize: cfg.RemoteSGFMaxBytes + 64<<10,
	}

	addr := ":" + strconv.Itoa(cfg.Port)
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server_start", zap.String("addr", addr), zap.Bool("engine", launcher != nil))
		serveErr <- srv.ListenAndServe(addr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown_signal")
	case err := <-serveErr:
		if err != nil {
			logger.Error("server_failed", zap.Error(err))
		}
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.ShutdownWithContext(sctx); err != nil {
		logger.Warn("http_shutdown_failed", zap.Error(err))
	}
	stopSweep()
	<-sweepDone
	if err := mgr.Shutdown(sctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("engine_shutdown_incomplete", zap.Error(err))
	}
	logger.Info("shutdown_complete")
}

func openGameLog(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) gamelog.Repository {
	if cfg.DatabaseURL == "" {
		return gamelog.NewMemoryRepository()
	}
	repo, err := gamelog.NewPostgresRepository(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Warn("game_log_fallback_memory", zap.Error(err))
		return gamelog.NewMemoryRepository()
	}
	return repo
}

func openExerciseStore(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (exercise.Store, func()) {
	if cfg.RedisURL == "" {
		return exercise.NewMemoryStore(), func() {}
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Warn("exercise_store_fallback_memory", zap.Error(err))
		return exercise.NewMemoryStore(), func() {}
	}
	rdb := redis.NewClient(opts)
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		logger.Warn("exercise_store_fallback_memory", zap.Error(err))
		return exercise.NewMemoryStore(), func() {}
	}
	return exercise.NewRedisStore(rdb, cfg.ExerciseTTL), func() { _ = rdb.Close() }
}
