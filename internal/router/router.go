package router

import (
	"context"
	"net/http"
	"time"

	"courierloc/config"
	"courierloc/internal/cache"
	"courierloc/internal/handler"
	"courierloc/internal/logger"
	"courierloc/internal/middleware"
	"courierloc/internal/repository"
	"courierloc/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Setup wires repositories, services and handlers into the backend API.
// ctx bounds background helpers such as the rate limiter cleanup.
func Setup(ctx context.Context, cfg *config.Config, db *gorm.DB, locCache cache.LocationCache, log *zap.Logger) *gin.Engine {
	log = logger.OrNop(log)
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(middleware.RequestID(), logger.GinMiddleware(log), logger.Recovery(log))

	// Repositories
	userRepo := repository.NewUserRepository(db)
	courierRepo := repository.NewCourierRepository(db)
	settingRepo := repository.NewSettingRepository(db)

	// Services
	authSvc := service.NewAuthService(cfg, userRepo)
	trackingSvc := service.NewTrackingService(cfg, courierRepo, settingRepo, locCache, log)

	// Handlers
	authHandler := handler.NewAuthHandler(authSvc, log)
	trackingHandler := handler.NewTrackingHandler(trackingSvc, log)
	locationHandler := handler.NewLocationHandler(trackingSvc, cfg, log)

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	limiter := middleware.NewInMemoryRateLimiter(ctx, cfg.Server.RateLimit, 60*time.Second)
	authMW := middleware.AuthRequired(&cfg.JWT)
	activeMW := middleware.ActiveUser(userRepo)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/auth/login", middleware.RateLimit(limiter), authHandler.Login)
		v1.POST("/auth/register", authMW, activeMW, middleware.ManagerRequired(), authHandler.Register)

		manager := v1.Group("", authMW, activeMW, middleware.ManagerRequired(), middleware.RateLimit(limiter))
		manager.GET("/map/key", locationHandler.MapKey)
		manager.GET("/locations", locationHandler.List)
		manager.POST("/routes/yandex", locationHandler.YandexRoute)

		me := v1.Group("/me", authMW, activeMW, middleware.CourierRequired(), middleware.RateLimit(limiter))
		me.GET("/tracking", trackingHandler.State)
		me.POST("/tracking/start", trackingHandler.Start)
		me.POST("/tracking/stop", trackingHandler.Stop)
		me.POST("/tracking/ping", trackingHandler.Ping)
		me.POST("/location", trackingHandler.UpdateLocation)
	}
	return r
}
