package handler

import (
	"errors"
	"net/http"

	"courierloc/config"
	"courierloc/internal/dto"
	"courierloc/internal/service"
	"courierloc/pkg/route"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// LocationHandler serves the manager side: the live list, the map key and route links.
type LocationHandler struct {
	svc    *service.TrackingService
	cfg    *config.Config
	logger *zap.Logger
}

func NewLocationHandler(svc *service.TrackingService, cfg *config.Config, logger *zap.Logger) *LocationHandler {
	return &LocationHandler{svc: svc, cfg: cfg, logger: logger}
}

func (h *LocationHandler) List(c *gin.Context) {
	list, err := h.svc.ListLocations(c.Request.Context())
	if err != nil {
		h.logger.Error("list locations failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *LocationHandler) MapKey(c *gin.Context) {
	key, err := h.svc.MapKey()
	if errors.Is(err, service.ErrMapKeyMissing) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.logger.Error("map key lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "map key lookup failed"})
		return
	}
	c.JSON(http.StatusOK, dto.MapKeyResponse{Key: key})
}

func (h *LocationHandler) YandexRoute(c *gin.Context) {
	var req dto.RouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	dests := make([]route.Point, 0, len(req.Destinations))
	for _, d := range req.Destinations {
		dests = append(dests, route.Point{Lat: d.Lat, Lon: d.Lon})
	}
	url, err := route.YandexURL(h.cfg.Map.RouteBaseURL, route.Point{Lat: req.Start.Lat, Lon: req.Start.Lon}, dests)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.RouteResponse{URL: url})
}
