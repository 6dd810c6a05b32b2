package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"courierloc/config"
	"courierloc/internal/cache"
	"courierloc/internal/database"
	"courierloc/internal/logger"
	"courierloc/internal/router"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config", zap.Error(err))
	}
	log := logger.New(cfg.Log)
	defer log.Sync()

	db, err := database.NewDB(&cfg.Database)
	if err != nil {
		log.Fatal("database", zap.Error(err))
	}
	if err := database.AutoMigrate(db); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}
	created, err := database.SeedManager(db, cfg.Server.SeedEmail, cfg.Server.SeedPassword)
	if err != nil {
		log.Fatal("seed manager", zap.Error(err))
	}
	if created {
		log.Info("seeded manager account", zap.String("email", cfg.Server.SeedEmail))
	}
	if err := database.SeedSettings(db, &cfg.Map); err != nil {
		log.Fatal("seed settings", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	locCache := cache.New(cfg.Redis, cfg.Map.ListCacheTTL, log)
	engine := router.Setup(ctx, cfg, db, locCache, log)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", zap.Error(err))
		os.Exit(1)
	}
	log.Info("server stopped")
}
