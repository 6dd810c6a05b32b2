package dispatch

import (
	"context"
	"errors"
	"net/http"

	"courierloc/config"
	"courierloc/internal/backend"
	"courierloc/internal/dto"
	"courierloc/internal/logger"
	"courierloc/internal/middleware"
	"courierloc/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// RouteBuilder turns a start point and stops into a route link.
type RouteBuilder interface {
	BuildRoute(ctx context.Context, req dto.RouteRequest) (string, error)
}

// NewConsoleRouter serves the map viewer socket and manager helpers of the dispatch
// console. The route endpoint requires a manager token like the viewer socket.
func NewConsoleRouter(jwt *config.JWTConfig, display *ws.Display, routes RouteBuilder, gatherer prometheus.Gatherer, log *zap.Logger) *gin.Engine {
	log = logger.OrNop(log)
	r := gin.New()
	r.Use(middleware.RequestID(), logger.GinMiddleware(log), logger.Recovery(log))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "viewers": display.ViewerCount()})
	})
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	r.GET("/ws/map", ws.ServeDisplay(jwt, display, log))
	r.POST("/route", middleware.AuthRequired(jwt), middleware.ManagerRequired(), func(c *gin.Context) {
		var req dto.RouteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		url, err := routes.BuildRoute(c.Request.Context(), req)
		if err != nil {
			var apiErr *backend.APIError
			if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusBadRequest {
				c.JSON(http.StatusBadRequest, gin.H{"error": apiErr.Message})
				return
			}
			logger.FromContext(c).Warn("build route failed", zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "route service unavailable"})
			return
		}
		c.JSON(http.StatusOK, dto.RouteResponse{URL: url})
	})
	return r
}
