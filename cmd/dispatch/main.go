package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"courierloc/config"
	"courierloc/internal/backend"
	"courierloc/internal/dispatch"
	"courierloc/internal/logger"
	"courierloc/internal/mapsurface"
	"courierloc/internal/reconciler"
	"courierloc/internal/ws"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// remountDelay spaces mount attempts while no viewer shows the map.
const remountDelay = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config", zap.Error(err))
	}
	log := logger.New(cfg.Log)
	defer log.Sync()

	client, err := backend.NewClient(cfg.Dispatch.BackendURL, cfg.Dispatch.Token, cfg.Dispatch.CallTimeout)
	if err != nil {
		log.Fatal("backend client", zap.Error(err))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	display := ws.NewDisplay()
	surface := mapsurface.New(display, client, mapsurface.Options{
		Center:         mapsurface.LatLon{Lat: cfg.Map.CenterLat, Lon: cfg.Map.CenterLon},
		Zoom:           cfg.Map.DefaultZoom,
		FrameInterval:  cfg.Dispatch.FrameInterval,
		FrameBudget:    cfg.Dispatch.FrameBudget,
		InitAttempts:   cfg.Dispatch.InitAttempts,
		InitRetryDelay: cfg.Dispatch.InitRetryDelay,
		Logger:         log,
	})
	rec := reconciler.New(client, surface, reconciler.NewMetrics(reg), log, cfg.Dispatch.CallTimeout)
	view := dispatch.NewMapView(surface, rec, cfg.Dispatch.RefreshInterval, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              cfg.Dispatch.Addr,
		Handler:           dispatch.NewConsoleRouter(&cfg.JWT, display, client, reg, log),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("dispatch console listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	go mountUntilReady(ctx, view, log)

	<-ctx.Done()
	log.Info("shutting down")
	view.Unmount()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", zap.Error(err))
	}
}

// mountUntilReady keeps trying to mount the map until a viewer shows it or ctx ends.
func mountUntilReady(ctx context.Context, view *dispatch.MapView, log *zap.Logger) {
	for {
		err := view.Mount(ctx)
		if err == nil || ctx.Err() != nil {
			return
		}
		log.Info("map not mounted, waiting for a viewer", zap.Error(err), zap.Duration("retry_in", remountDelay))
		select {
		case <-ctx.Done():
			return
		case <-time.After(remountDelay):
		}
	}
}
