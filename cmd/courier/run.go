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
	"courierloc/internal/agent"
	"courierloc/internal/backend"
	"courierloc/internal/geolocation"
	"courierloc/internal/logger"
	"courierloc/internal/tracker"
	"courierloc/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRunCmd() *cobra.Command {
	var start bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the agent until interrupted",
		Long: `Run the agent until interrupted.

The agent reads NMEA sentences from tracker.device_path and forwards fixes to
tracker.backend_url. Reporting resumes automatically when it was on before the
last shutdown. SIGCONT re-arms the receiver immediately.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, start)
		},
	}
	cmd.Flags().BoolVar(&start, "start", false, "turn reporting on at launch")
	return cmd
}

func run(parent context.Context, cfg *config.Config, start bool) error {
	log := logger.New(cfg.Log)
	defer log.Sync()

	store, err := openIntentStore(cfg, log)
	if err != nil {
		return err
	}
	client, err := backend.NewClient(cfg.Tracker.BackendURL, cfg.Tracker.Token, cfg.Tracker.CallTimeout)
	if err != nil {
		return err
	}
	if !client.Secure() {
		log.Warn("backend is not reached over HTTPS, reporting stays disabled",
			zap.String("backend_url", cfg.Tracker.BackendURL))
	}
	source := &geolocation.NMEASource{
		Path:      cfg.Tracker.DevicePath,
		Timeout:   cfg.Tracker.WatchTimeout,
		LineDelay: cfg.Tracker.LineDelay,
		Logger:    log.Named("nmea"),
	}

	reg := prometheus.NewRegistry()
	t := tracker.Shared(func() *tracker.Tracker {
		return tracker.New(source, client, store, tracker.Options{
			PingInterval: cfg.Tracker.PingInterval,
			RetryBackoff: cfg.Tracker.RetryBackoff,
			CallTimeout:  cfg.Tracker.CallTimeout,
			Logger:       log,
			Metrics:      tracker.NewMetrics(reg),
		})
	})
	defer t.Close()

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stream := ws.NewStream()
	var last tracker.Status
	view := tracker.NewView(t, func(s tracker.Status) {
		if err := stream.Publish(s); err != nil {
			log.Debug("publish status", zap.Error(err))
		}
		if s.State != last.State || s.Error != last.Error {
			log.Info("tracking status",
				zap.Bool("running", s.Running),
				zap.String("state", string(s.State)),
				zap.String("reason", s.Reason),
				zap.String("error", s.Error),
			)
		}
		last = s
	})
	view.Mount(ctx)
	defer view.Unmount()
	if start {
		view.Start(ctx)
	}

	var srv *http.Server
	if cfg.Tracker.StatusAddr != "" {
		if cfg.Server.Env == "production" {
			gin.SetMode(gin.ReleaseMode)
		}
		srv = &http.Server{
			Addr:              cfg.Tracker.StatusAddr,
			Handler:           agent.NewStatusRouter(t, view, stream, reg, log),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info("status server listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("status server", zap.Error(err))
			}
		}()
	}

	cont := make(chan os.Signal, 1)
	signal.Notify(cont, syscall.SIGCONT)
	defer signal.Stop(cont)

	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			if srv != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				_ = srv.Shutdown(shutdownCtx)
				cancel()
			}
			return nil
		case <-cont:
			log.Debug("resumed, re-arming receiver")
			t.Resume()
		}
	}
}
