package service

import (
	"context"
	"errors"
	"time"

	"courierloc/config"
	"courierloc/internal/cache"
	"courierloc/internal/domain"
	"courierloc/internal/dto"
	"courierloc/internal/models"
	"courierloc/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrInvalidGPSStatus = errors.New("invalid gps_status")
	ErrMapKeyMissing    = errors.New("map api key is not configured")
)

// TrackingService owns the server side of courier tracking: intent, heartbeats,
// positions and the manager location list.
type TrackingService struct {
	cfg         *config.Config
	courierRepo *repository.CourierRepository
	settingRepo *repository.SettingRepository
	cache       cache.LocationCache
	logger      *zap.Logger
	now         func() time.Time
}

func NewTrackingService(cfg *config.Config, courierRepo *repository.CourierRepository, settingRepo *repository.SettingRepository, locCache cache.LocationCache, logger *zap.Logger) *TrackingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TrackingService{
		cfg:         cfg,
		courierRepo: courierRepo,
		settingRepo: settingRepo,
		cache:       locCache,
		logger:      logger.Named("tracking"),
		now:         time.Now,
	}
}

func (s *TrackingService) State(userID uint) (*dto.TrackingState, error) {
	c, err := s.courierRepo.GetOrCreateByUserID(userID)
	if err != nil {
		return nil, err
	}
	return &dto.TrackingState{
		IsTracking:    c.IsTracking,
		GPSStatus:     c.GPSStatus,
		LastUpdate:    formatTime(c.LastUpdate),
		LastHeartbeat: formatTime(c.LastHeartbeat),
	}, nil
}

// Start records tracking intent. GPS condition is unknown until the device reports.
func (s *TrackingService) Start(ctx context.Context, userID uint) error {
	c, err := s.courierRepo.GetOrCreateByUserID(userID)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	c.IsTracking = true
	c.LastHeartbeat = &now
	c.GPSStatus = domain.GPSStatusUnknown
	clearError(c)
	return s.save(ctx, c)
}

// Stop clears tracking intent. The app is still alive, so the heartbeat is refreshed and
// the GPS condition goes back to unknown.
func (s *TrackingService) Stop(ctx context.Context, userID uint) error {
	c, err := s.courierRepo.GetOrCreateByUserID(userID)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	c.IsTracking = false
	c.LastHeartbeat = &now
	c.GPSStatus = domain.GPSStatusUnknown
	return s.save(ctx, c)
}

// Ping is the liveness heartbeat. It optionally carries a GPS diagnostic.
func (s *TrackingService) Ping(ctx context.Context, userID uint, req dto.PingRequest) error {
	if req.GPSStatus != "" && !domain.ValidGPSStatus(req.GPSStatus) {
		return ErrInvalidGPSStatus
	}
	c, err := s.courierRepo.GetOrCreateByUserID(userID)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	c.LastHeartbeat = &now
	if req.GPSStatus != "" {
		c.GPSStatus = req.GPSStatus
	}
	if req.ErrorCode != nil {
		code := *req.ErrorCode
		c.LastErrorCode = &code
	}
	if req.ErrorMessage != "" {
		c.LastErrorMessage = truncate(req.ErrorMessage, domain.MaxErrorMessageLen)
	}
	if req.GPSStatus == domain.GPSStatusDenied || req.GPSStatus == domain.GPSStatusUnavailable {
		s.logger.Info("courier gps problem",
			zap.Uint("user_id", userID),
			zap.String("gps_status", req.GPSStatus),
			zap.String("error", c.LastErrorMessage),
		)
	}
	return s.save(ctx, c)
}

// UpdateLocation stores a fix. A fix proves both GPS health and intent, so it also
// re-arms tracking and clears previous errors.
func (s *TrackingService) UpdateLocation(ctx context.Context, userID uint, upd dto.LocationUpdate) error {
	c, err := s.courierRepo.GetOrCreateByUserID(userID)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	lat, lon, acc := upd.Latitude, upd.Longitude, upd.AccuracyM
	c.LastLatitude = &lat
	c.LastLongitude = &lon
	c.LastAccuracyM = &acc
	c.LastSpeedMps = copyFloat(upd.SpeedMps)
	c.LastHeading = copyFloat(upd.Heading)
	c.LastUpdate = &now
	c.LastHeartbeat = &now
	c.GPSStatus = domain.GPSStatusOK
	c.IsTracking = true
	clearError(c)
	return s.save(ctx, c)
}

// ListLocations returns tracked couriers with coordinates, served from cache when fresh.
func (s *TrackingService) ListLocations(ctx context.Context) ([]dto.CourierLocation, error) {
	if list, err := s.cache.Get(ctx); err == nil {
		return list, nil
	} else if !errors.Is(err, cache.ErrMiss) {
		s.logger.Warn("location cache read failed", zap.Error(err))
	}
	couriers, err := s.courierRepo.ListTrackedWithCoordinates()
	if err != nil {
		return nil, err
	}
	now := s.now()
	list := make([]dto.CourierLocation, 0, len(couriers))
	for i := range couriers {
		c := &couriers[i]
		list = append(list, dto.CourierLocation{
			CourierID:      c.ID,
			Name:           c.User.DisplayName(),
			Lat:            copyFloat(c.LastLatitude),
			Lon:            copyFloat(c.LastLongitude),
			LastUpdate:     formatTime(c.LastUpdate),
			TrackingStatus: c.TrackingStatus(now),
			GPSStatus:      c.GPSStatus,
			LastHeartbeat:  formatTime(c.LastHeartbeat),
		})
	}
	if err := s.cache.Set(ctx, list); err != nil {
		s.logger.Warn("location cache write failed", zap.Error(err))
	}
	return list, nil
}

// MapKey returns the map provider key, preferring the system setting over configuration.
func (s *TrackingService) MapKey() (string, error) {
	key, err := s.settingRepo.Get(domain.SettingMapAPIKey)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}
	if key == "" {
		key = s.cfg.Map.APIKey
	}
	if key == "" {
		return "", ErrMapKeyMissing
	}
	return key, nil
}

func (s *TrackingService) save(ctx context.Context, c *models.Courier) error {
	if err := s.courierRepo.Save(c); err != nil {
		return err
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("location cache invalidate failed", zap.Error(err))
	}
	return nil
}

func clearError(c *models.Courier) {
	c.LastErrorCode = nil
	c.LastErrorMessage = ""
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(dto.TimeLayout)
	return &s
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
