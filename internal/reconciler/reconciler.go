// Package reconciler keeps the map's courier markers in line with the server's
// location list.
package reconciler

import (
	"context"
	"sync"
	"time"

	"courierloc/internal/dto"
	"courierloc/internal/mapsurface"

	"go.uber.org/zap"
)

// Lister returns the current courier locations.
type Lister interface {
	ListCourierLocations(ctx context.Context) ([]dto.CourierLocation, error)
}

// Surface is the part of the map the reconciler draws on.
type Surface interface {
	Ready() bool
	AddMarker(pos mapsurface.LatLon, props mapsurface.Properties) (mapsurface.Marker, error)
}

type entry struct {
	marker mapsurface.Marker
	label  string
}

type Reconciler struct {
	lister  Lister
	surface Surface
	metrics *Metrics
	logger  *zap.Logger
	timeout time.Duration

	// mu guards entries and is held for a whole refresh.
	mu      sync.Mutex
	entries map[uint]*entry
}

// New builds a reconciler. metrics and logger may be nil; timeout bounds each list call
// and defaults to 10s.
func New(lister Lister, surface Surface, metrics *Metrics, logger *zap.Logger, timeout time.Duration) *Reconciler {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Reconciler{
		lister:  lister,
		surface: surface,
		metrics: metrics,
		logger:  logger.Named("reconciler"),
		timeout: timeout,
		entries: make(map[uint]*entry),
	}
}

// Label is the balloon text of a courier marker.
func Label(l dto.CourierLocation) string {
	if l.LastUpdate != nil && *l.LastUpdate != "" {
		return l.Name + " (" + *l.LastUpdate + ")"
	}
	return l.Name
}

// Refresh fetches the location list and applies the difference to the markers.
// It returns false without doing anything when another refresh is running or the
// surface is not ready. A failed fetch leaves the markers untouched.
func (r *Reconciler) Refresh(ctx context.Context) bool {
	if !r.mu.TryLock() {
		r.metrics.refreshes.WithLabelValues("skipped").Inc()
		return false
	}
	defer r.mu.Unlock()

	if !r.surface.Ready() {
		r.metrics.refreshes.WithLabelValues("not_ready").Inc()
		return false
	}

	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	list, err := r.lister.ListCourierLocations(cctx)
	if err != nil {
		r.metrics.refreshes.WithLabelValues("error").Inc()
		r.logger.Warn("list courier locations failed", zap.Error(err))
		return false
	}

	active := make(map[uint]dto.CourierLocation, len(list))
	order := make([]uint, 0, len(list))
	for _, l := range list {
		if !l.Active() {
			continue
		}
		if _, dup := active[l.CourierID]; !dup {
			order = append(order, l.CourierID)
		}
		active[l.CourierID] = l
	}

	for id, e := range r.entries {
		if _, ok := active[id]; ok {
			continue
		}
		e.marker.Remove()
		delete(r.entries, id)
		r.metrics.operations.WithLabelValues("remove").Inc()
	}

	for _, id := range order {
		l := active[id]
		pos := mapsurface.LatLon{Lat: *l.Lat, Lon: *l.Lon}
		props := mapsurface.Properties{BalloonContent: Label(l), HintContent: l.Name, IconCaption: l.Name}

		if e, ok := r.entries[id]; ok {
			e.marker.SetCoordinates(pos)
			e.marker.SetProperties(props)
			e.label = props.BalloonContent
			r.metrics.operations.WithLabelValues("update").Inc()
			continue
		}
		m, err := r.surface.AddMarker(pos, props)
		if err != nil {
			r.logger.Warn("add marker failed", zap.Uint("courier_id", id), zap.Error(err))
			continue
		}
		r.entries[id] = &entry{marker: m, label: props.BalloonContent}
		r.metrics.operations.WithLabelValues("create").Inc()
	}

	r.metrics.markers.Set(float64(len(r.entries)))
	r.metrics.refreshes.WithLabelValues("ok").Inc()
	return true
}

// Run refreshes immediately and then every interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	r.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Refresh(ctx)
		}
	}
}

// Reset forgets every entry without touching the map. Used after the map itself is gone.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[uint]*entry)
	r.metrics.markers.Set(0)
}

// Labels returns the cached label per displayed courier.
func (r *Reconciler) Labels() map[uint]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[uint]string, len(r.entries))
	for id, e := range r.entries {
		out[id] = e.label
	}
	return out
}
