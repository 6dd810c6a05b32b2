package agent

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"courierloc/internal/dto"
	"courierloc/internal/geolocation"
	"courierloc/internal/tracker"
	"courierloc/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type offlineBackend struct {
	mu      sync.Mutex
	updates int
}

func (b *offlineBackend) Secure() bool { return true }
func (b *offlineBackend) TrackingState(context.Context) (*dto.TrackingState, error) {
	return nil, errors.New("offline")
}
func (b *offlineBackend) StartTracking(context.Context) error { return nil }
func (b *offlineBackend) StopTracking(context.Context) error  { return nil }
func (b *offlineBackend) Ping(context.Context, dto.PingRequest) error {
	return nil
}
func (b *offlineBackend) UpdateLocation(context.Context, dto.LocationUpdate) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.updates++
	return nil
}

type memIntent struct {
	mu sync.Mutex
	on bool
}

func (m *memIntent) Load() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.on
}

func (m *memIntent) Save(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.on = on
}

// idleDevice never produces a sentence until the watch is closed.
type idleDevice struct {
	closed chan struct{}
	once   sync.Once
}

func (d *idleDevice) Read([]byte) (int, error) {
	<-d.closed
	return 0, errors.New("closed")
}

func (d *idleDevice) Close() error {
	d.once.Do(func() { close(d.closed) })
	return nil
}

func openIdle() (io.ReadCloser, error) {
	return &idleDevice{closed: make(chan struct{})}, nil
}

func setup(t *testing.T) (*gin.Engine, *tracker.Tracker, *memIntent, *ws.Stream) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	intent := &memIntent{}
	reg := prometheus.NewRegistry()
	tr := tracker.New(&geolocation.NMEASource{
		Open:    openIdle,
		Timeout: time.Minute,
	}, &offlineBackend{}, intent, tracker.Options{Metrics: tracker.NewMetrics(reg)})
	t.Cleanup(tr.Close)

	stream := ws.NewStream()
	view := tracker.NewView(tr, func(s tracker.Status) { _ = stream.Publish(s) })
	view.Mount(context.Background())
	t.Cleanup(view.Unmount)

	return NewStatusRouter(tr, view, stream, reg, nil), tr, intent, stream
}

func do(t *testing.T, r http.Handler, method, path string) tracker.Status {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var s tracker.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &s))
	return s
}

func TestStatusRouter_StartStop(t *testing.T) {
	r, _, intent, _ := setup(t)

	s := do(t, r, http.MethodGet, "/status")
	assert.False(t, s.Running)
	assert.Equal(t, tracker.Idle, s.State)

	s = do(t, r, http.MethodPost, "/start")
	assert.True(t, s.Running)
	assert.Equal(t, tracker.Starting, s.State, "no fix yet")
	assert.True(t, intent.Load())

	s = do(t, r, http.MethodPost, "/resume")
	assert.True(t, s.Running)

	s = do(t, r, http.MethodPost, "/stop")
	assert.False(t, s.Running)
	assert.Equal(t, tracker.Stopped, s.State)
	assert.False(t, intent.Load())
}

func TestStatusRouter_Metrics(t *testing.T) {
	r, _, _, _ := setup(t)
	do(t, r, http.MethodPost, "/start")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "courierloc_tracker_watch_active 1"))
}

func TestStatusRouter_StreamPublishesChanges(t *testing.T) {
	r, tr, _, stream := setup(t)
	require.Eventually(t, func() bool { return !tr.Status().Running }, time.Second, time.Millisecond)

	c := ws.NewClient(0, "")
	stream.Join(c)
	defer c.Close()

	var first tracker.Status
	require.NoError(t, json.Unmarshal(<-c.Send, &first))
	assert.False(t, first.Running)

	do(t, r, http.MethodPost, "/start")
	require.Eventually(t, func() bool {
		select {
		case data := <-c.Send:
			var s tracker.Status
			return json.Unmarshal(data, &s) == nil && s.Running
		default:
			return false
		}
	}, time.Second, time.Millisecond)
}

func TestStatusRouter_RefusesCrossSiteControls(t *testing.T) {
	r, tr, intent, _ := setup(t)

	// a plain cross-site form post
	req := httptest.NewRequest(http.MethodPost, "/start", strings.NewReader("a=1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)

	// bodiless post with no content type
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/start", nil))
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/start", nil)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	assert.False(t, tr.Status().Running)
	assert.False(t, intent.Load())

	req = httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Origin", "http://"+req.Host)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code, "same origin is allowed")
}
