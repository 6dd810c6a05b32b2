// Package agent exposes the courier device agent's local control surface.
package agent

import (
	"net/http"
	"net/url"
	"strings"

	"courierloc/internal/logger"
	"courierloc/internal/tracker"
	"courierloc/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewStatusRouter serves the tracker status and start/stop controls on the local
// status address. Status changes are streamed on /ws. Browser pages of other origins
// are refused, and controls only accept JSON requests so a cross-site form cannot
// reach them.
func NewStatusRouter(t *tracker.Tracker, view *tracker.View, stream *ws.Stream, gatherer prometheus.Gatherer, log *zap.Logger) *gin.Engine {
	log = logger.OrNop(log)
	r := gin.New()
	r.Use(logger.GinMiddleware(log), logger.Recovery(log), sameOrigin())

	r.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, t.Status())
	})
	controls := r.Group("", jsonOnly())
	controls.POST("/start", func(c *gin.Context) {
		view.Start(c.Request.Context())
		c.JSON(http.StatusOK, t.Status())
	})
	controls.POST("/stop", func(c *gin.Context) {
		view.Stop(c.Request.Context())
		c.JSON(http.StatusOK, t.Status())
	})
	controls.POST("/resume", func(c *gin.Context) {
		t.Resume()
		c.JSON(http.StatusOK, t.Status())
	})
	r.GET("/ws", ws.ServeStream(stream, log))
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	return r
}

// sameOrigin rejects requests that carry an Origin header for another host.
func sameOrigin() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}
		u, err := url.Parse(origin)
		if err != nil || !strings.EqualFold(u.Host, c.Request.Host) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "cross-origin request refused"})
			return
		}
		c.Next()
	}
}

func jsonOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.ContentType() != gin.MIMEJSON {
			c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, gin.H{"error": "content type must be application/json"})
			return
		}
		c.Next()
	}
}
