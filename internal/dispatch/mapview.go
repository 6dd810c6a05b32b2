// Package dispatch wires the manager map: a surface plus a reconciler bound to one
// mount/unmount lifecycle.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"courierloc/internal/reconciler"

	"go.uber.org/zap"
)

// Surface is the lifecycle half of mapsurface.Surface.
type Surface interface {
	Init(ctx context.Context) error
	Teardown()
}

// Refresher is the polling half of reconciler.Reconciler.
type Refresher interface {
	Refresh(ctx context.Context) bool
	Run(ctx context.Context, interval time.Duration)
	Reset()
}

var _ Refresher = (*reconciler.Reconciler)(nil)

var ErrMounted = errors.New("map view already mounted")

type MapView struct {
	surface  Surface
	rec      Refresher
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	mounted bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewMapView(surface Surface, rec Refresher, interval time.Duration, logger *zap.Logger) *MapView {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MapView{surface: surface, rec: rec, interval: interval, logger: logger.Named("mapview")}
}

// Mount initializes the surface and starts polling. It blocks until the map is ready
// or initialization fails; on failure nothing is left running.
func (v *MapView) Mount(ctx context.Context) error {
	v.mu.Lock()
	if v.mounted {
		v.mu.Unlock()
		return ErrMounted
	}
	v.mounted = true
	runCtx, cancel := context.WithCancel(context.Background())
	v.cancel = cancel
	v.mu.Unlock()

	initCtx, stopInit := context.WithCancel(ctx)
	defer stopInit()
	go func() {
		select {
		case <-runCtx.Done():
			stopInit()
		case <-initCtx.Done():
		}
	}()

	if err := v.surface.Init(initCtx); err != nil {
		v.logger.Error("map init failed", zap.Error(err))
		v.mu.Lock()
		v.mounted = false
		v.cancel = nil
		v.mu.Unlock()
		cancel()
		v.surface.Teardown()
		return err
	}

	done := make(chan struct{})
	v.mu.Lock()
	if runCtx.Err() != nil {
		// unmounted while initializing
		v.mu.Unlock()
		v.surface.Teardown()
		return context.Canceled
	}
	v.done = done
	v.mu.Unlock()

	v.logger.Info("map ready", zap.Duration("refresh_interval", v.interval))
	go func() {
		defer close(done)
		v.rec.Run(runCtx, v.interval)
	}()
	return nil
}

// Unmount stops polling, waits for the running refresh and tears the map down.
// Safe to call when not mounted.
func (v *MapView) Unmount() {
	v.mu.Lock()
	cancel, done := v.cancel, v.done
	v.mounted = false
	v.cancel, v.done = nil, nil
	v.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	v.surface.Teardown()
	v.rec.Reset()
}
