// Package mapsurface drives a map SDK: loading, waiting for a visible container,
// instantiating the map and exposing marker primitives.
package mapsurface

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultPreset is the placemark icon used for couriers.
const DefaultPreset = "islands#blueAutoIcon"

var (
	ErrContainerNotVisible = errors.New("map container is not visible or has zero size")
	ErrNotReady            = errors.New("map surface not ready")
)

// loadMu serializes SDK loading across every surface in the process.
var loadMu sync.Mutex

type Options struct {
	Center         LatLon
	Zoom           int
	FrameInterval  time.Duration
	FrameBudget    int
	InitAttempts   int
	InitRetryDelay time.Duration
	Preset         string
	Logger         *zap.Logger
}

func (o *Options) setDefaults() {
	if o.Center == (LatLon{}) {
		o.Center = LatLon{Lat: 41.3111, Lon: 69.2797}
	}
	if o.Zoom == 0 {
		o.Zoom = 11
	}
	if o.FrameInterval <= 0 {
		o.FrameInterval = 16 * time.Millisecond
	}
	if o.FrameBudget <= 0 {
		o.FrameBudget = 600
	}
	if o.InitAttempts <= 0 {
		o.InitAttempts = 5
	}
	if o.InitRetryDelay < 0 {
		o.InitRetryDelay = 0
	}
	if o.Preset == "" {
		o.Preset = DefaultPreset
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

type Surface struct {
	sdk    SDK
	keys   KeyFetcher
	opts   Options
	logger *zap.Logger

	mu           sync.Mutex
	m            Map
	detachResize func()
	cancelInit   context.CancelFunc
	initDone     chan struct{}
}

func New(sdk SDK, keys KeyFetcher, opts Options) *Surface {
	opts.setDefaults()
	return &Surface{sdk: sdk, keys: keys, opts: opts, logger: opts.Logger.Named("mapsurface")}
}

// Init fetches the key, loads the SDK if needed, waits for a visible container and
// creates the map. A container that never becomes visible is retried InitAttempts times
// before ErrContainerNotVisible is returned. Key and SDK failures are returned at once.
func (s *Surface) Init(ctx context.Context) error {
	s.mu.Lock()
	if s.m != nil {
		s.mu.Unlock()
		return nil
	}
	if s.initDone != nil {
		s.mu.Unlock()
		return errors.New("map surface init already in progress")
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancelInit = cancel
	s.initDone = done
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		s.cancelInit, s.initDone = nil, nil
		s.mu.Unlock()
		close(done)
	}()

	for attempt := 1; ; attempt++ {
		err := s.attempt(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrContainerNotVisible) || attempt >= s.opts.InitAttempts {
			return err
		}
		s.logger.Debug("map container not visible, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", s.opts.InitRetryDelay),
		)
		timer := time.NewTimer(s.opts.InitRetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (s *Surface) attempt(ctx context.Context) error {
	key, err := s.keys.TrackingKey(ctx)
	if err != nil {
		return fmt.Errorf("fetch map key: %w", err)
	}
	if err := s.load(ctx, key); err != nil {
		return fmt.Errorf("load map sdk: %w", err)
	}
	c, err := s.waitForContainer(ctx)
	if err != nil {
		return err
	}
	m, err := s.sdk.NewMap(c, MapOptions{Center: s.opts.Center, Zoom: s.opts.Zoom})
	if err != nil {
		return fmt.Errorf("create map: %w", err)
	}
	m.FitToViewport()

	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() != nil {
		// torn down while the map was being created
		m.Destroy()
		return ctx.Err()
	}
	s.m = m
	s.detachResize = c.OnResize(func() {
		s.mu.Lock()
		cur := s.m
		s.mu.Unlock()
		if cur != nil {
			cur.FitToViewport()
		}
	})
	return nil
}

func (s *Surface) load(ctx context.Context, key string) error {
	loadMu.Lock()
	defer loadMu.Unlock()
	if s.sdk.Loaded() {
		return nil
	}
	return s.sdk.Load(ctx, key)
}

// waitForContainer polls once per frame until the container has a non-zero size.
func (s *Surface) waitForContainer(ctx context.Context) (Container, error) {
	ticker := time.NewTicker(s.opts.FrameInterval)
	defer ticker.Stop()
	for i := 0; i < s.opts.FrameBudget; i++ {
		if c := s.sdk.Container(); c != nil && c.Present() {
			if c.Size().Height == 0 {
				c.ApplyStyle(FallbackStyle)
			}
			if sz := c.Size(); sz.Width > 0 && sz.Height > 0 {
				return c, nil
			}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
	return nil, ErrContainerNotVisible
}

func (s *Surface) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m != nil
}

// AddMarker places a courier marker on the map.
func (s *Surface) AddMarker(pos LatLon, props Properties) (Marker, error) {
	s.mu.Lock()
	m := s.m
	s.mu.Unlock()
	if m == nil {
		return nil, ErrNotReady
	}
	return m.AddPlacemark(pos, props, s.opts.Preset)
}

// Teardown cancels a running Init and waits for it, detaches the resize listener and
// destroys the map. It is safe to call at any time and more than once.
func (s *Surface) Teardown() {
	s.mu.Lock()
	cancel, done := s.cancelInit, s.initDone
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.detachResize != nil {
		s.detachResize()
		s.detachResize = nil
	}
	if s.m != nil {
		s.m.Destroy()
		s.m = nil
	}
}
