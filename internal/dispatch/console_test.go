package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"courierloc/config"
	"courierloc/internal/auth"
	"courierloc/internal/backend"
	"courierloc/internal/domain"
	"courierloc/internal/dto"
	"courierloc/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testJWT = &config.JWTConfig{AccessSecret: "console-secret", AccessExpiry: time.Hour}

type fakeRoutes struct {
	url string
	err error
	got dto.RouteRequest
}

func (f *fakeRoutes) BuildRoute(_ context.Context, req dto.RouteRequest) (string, error) {
	f.got = req
	return f.url, f.err
}

func postRoute(t *testing.T, r http.Handler, role string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/route", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		tok, err := auth.GenerateAccessToken(testJWT, 1, "m@example.com", role)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestConsoleRouter_Route(t *testing.T) {
	gin.SetMode(gin.TestMode)
	routes := &fakeRoutes{url: "https://yandex.uz/maps/?rtext=1,2~3,4&rtt=auto"}
	r := NewConsoleRouter(testJWT, ws.NewDisplay(), routes, prometheus.NewRegistry(), nil)

	body := dto.RouteRequest{
		Start:        dto.Point{Lat: 1, Lon: 2},
		Destinations: []dto.Point{{Lat: 3, Lon: 4}},
	}

	w := postRoute(t, r, "", body)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = postRoute(t, r, domain.RoleCourier, body)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = postRoute(t, r, domain.RoleManager, dto.RouteRequest{Start: dto.Point{Lat: 1, Lon: 2}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postRoute(t, r, domain.RoleManager, body)
	require.Equal(t, http.StatusOK, w.Code)
	var resp dto.RouteResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, routes.url, resp.URL)
	assert.Equal(t, body, routes.got)
}

func TestConsoleRouter_RouteErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	routes := &fakeRoutes{err: &backend.APIError{StatusCode: http.StatusBadRequest, Message: "no destinations"}}
	r := NewConsoleRouter(testJWT, ws.NewDisplay(), routes, nil, nil)
	body := dto.RouteRequest{Destinations: []dto.Point{{Lat: 3, Lon: 4}}}

	w := postRoute(t, r, domain.RoleManager, body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "no destinations")

	routes.err = errors.New("connection refused")
	w = postRoute(t, r, domain.RoleManager, body)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestConsoleRouter_Health(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := NewConsoleRouter(testJWT, ws.NewDisplay(), &fakeRoutes{}, prometheus.NewRegistry(), nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","viewers":0}`, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
