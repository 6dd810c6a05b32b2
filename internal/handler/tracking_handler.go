package handler

import (
	"errors"
	"io"
	"net/http"

	"courierloc/internal/dto"
	"courierloc/internal/middleware"
	"courierloc/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TrackingHandler serves the courier device endpoints under /me.
type TrackingHandler struct {
	svc    *service.TrackingService
	logger *zap.Logger
}

func NewTrackingHandler(svc *service.TrackingService, logger *zap.Logger) *TrackingHandler {
	return &TrackingHandler{svc: svc, logger: logger}
}

func (h *TrackingHandler) State(c *gin.Context) {
	st, err := h.svc.State(middleware.GetUserID(c))
	if err != nil {
		h.internalError(c, "tracking state", err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *TrackingHandler) Start(c *gin.Context) {
	if err := h.svc.Start(c.Request.Context(), middleware.GetUserID(c)); err != nil {
		h.internalError(c, "start tracking", err)
		return
	}
	c.JSON(http.StatusOK, dto.OKResponse{OK: true})
}

func (h *TrackingHandler) Stop(c *gin.Context) {
	if err := h.svc.Stop(c.Request.Context(), middleware.GetUserID(c)); err != nil {
		h.internalError(c, "stop tracking", err)
		return
	}
	c.JSON(http.StatusOK, dto.OKResponse{OK: true})
}

// Ping accepts an empty body as a plain heartbeat.
func (h *TrackingHandler) Ping(c *gin.Context) {
	var req dto.PingRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := h.svc.Ping(c.Request.Context(), middleware.GetUserID(c), req)
	if errors.Is(err, service.ErrInvalidGPSStatus) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.internalError(c, "ping", err)
		return
	}
	c.JSON(http.StatusOK, dto.OKResponse{OK: true})
}

func (h *TrackingHandler) UpdateLocation(c *gin.Context) {
	var req dto.LocationUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.svc.UpdateLocation(c.Request.Context(), middleware.GetUserID(c), req); err != nil {
		h.internalError(c, "update location", err)
		return
	}
	c.JSON(http.StatusOK, dto.OKResponse{OK: true})
}

func (h *TrackingHandler) internalError(c *gin.Context, op string, err error) {
	h.logger.Error(op+" failed", zap.Uint("user_id", middleware.GetUserID(c)), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": op + " failed"})
}
