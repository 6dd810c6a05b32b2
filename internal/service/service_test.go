package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"courierloc/config"
	"courierloc/internal/cache"
	"courierloc/internal/database"
	"courierloc/internal/domain"
	"courierloc/internal/dto"
	"courierloc/internal/models"
	"courierloc/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db       *gorm.DB
	cfg      *config.Config
	users    *repository.UserRepository
	couriers *repository.CourierRepository
	settings *repository.SettingRepository
	auth     *AuthService
	tracking *TrackingService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.NewDB(&config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))

	cfg := &config.Config{
		JWT: config.JWTConfig{AccessSecret: "s", AccessExpiry: time.Hour, Issuer: "test"},
		Map: config.MapConfig{APIKey: "cfg-key"},
	}
	f := &fixture{
		db:       db,
		cfg:      cfg,
		users:    repository.NewUserRepository(db),
		couriers: repository.NewCourierRepository(db),
		settings: repository.NewSettingRepository(db),
	}
	f.auth = NewAuthService(cfg, f.users)
	f.tracking = NewTrackingService(cfg, f.couriers, f.settings, cache.NewMemoryLocationCache(time.Minute), nil)
	return f
}

func (f *fixture) courier(t *testing.T, email, name string) *models.User {
	t.Helper()
	u, _, err := f.auth.Register(email, name, "pw", domain.RoleCourier)
	require.NoError(t, err)
	return u
}

func TestAuthService_RegisterAndLogin(t *testing.T) {
	f := newFixture(t)

	u, token, err := f.auth.Register(" Courier@X.uz ", "Ali", "secret", domain.RoleCourier)
	require.NoError(t, err)
	assert.Equal(t, "courier@x.uz", u.Email)
	assert.NotEmpty(t, token)

	_, _, err = f.auth.Register("courier@x.uz", "Ali", "secret", domain.RoleCourier)
	assert.ErrorIs(t, err, ErrEmailExists)

	_, _, err = f.auth.Register("x@x.uz", "X", "secret", "ADMIN")
	assert.ErrorIs(t, err, ErrInvalidRole)

	logged, token, err := f.auth.Login("courier@x.uz", "secret")
	require.NoError(t, err)
	assert.Equal(t, u.ID, logged.ID)
	assert.NotEmpty(t, token)

	_, _, err = f.auth.Login("courier@x.uz", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCreds)
	_, _, err = f.auth.Login("nobody@x.uz", "secret")
	assert.ErrorIs(t, err, ErrInvalidCreds)
}

func TestTrackingService_StartStopState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.courier(t, "c@x.uz", "Ali")
	clock := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	f.tracking.now = func() time.Time { return clock }

	st, err := f.tracking.State(u.ID)
	require.NoError(t, err)
	assert.False(t, st.IsTracking)
	assert.Nil(t, st.LastHeartbeat)

	require.NoError(t, f.tracking.Start(ctx, u.ID))
	st, err = f.tracking.State(u.ID)
	require.NoError(t, err)
	assert.True(t, st.IsTracking)
	assert.Equal(t, domain.GPSStatusUnknown, st.GPSStatus)
	assert.NotNil(t, st.LastHeartbeat)

	code := 1
	require.NoError(t, f.tracking.Ping(ctx, u.ID, dto.PingRequest{GPSStatus: domain.GPSStatusDenied, ErrorCode: &code}))
	before := *st.LastHeartbeat

	clock = clock.Add(2 * time.Second)
	require.NoError(t, f.tracking.Stop(ctx, u.ID))
	st, err = f.tracking.State(u.ID)
	require.NoError(t, err)
	assert.False(t, st.IsTracking)
	assert.Equal(t, domain.GPSStatusUnknown, st.GPSStatus, "stop resets a denied gps status")
	require.NotNil(t, st.LastHeartbeat)
	assert.NotEqual(t, before, *st.LastHeartbeat, "stop refreshes the heartbeat")
}

func TestTrackingService_PingDiagnostics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.courier(t, "c@x.uz", "Ali")

	assert.ErrorIs(t, f.tracking.Ping(ctx, u.ID, dto.PingRequest{GPSStatus: "broken"}), ErrInvalidGPSStatus)

	code := 1
	long := strings.Repeat("é", 600)
	require.NoError(t, f.tracking.Ping(ctx, u.ID, dto.PingRequest{
		GPSStatus:    domain.GPSStatusDenied,
		ErrorCode:    &code,
		ErrorMessage: long,
	}))
	c, err := f.couriers.GetByUserID(u.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.GPSStatusDenied, c.GPSStatus)
	require.NotNil(t, c.LastErrorCode)
	assert.Equal(t, 1, *c.LastErrorCode)
	assert.Equal(t, domain.MaxErrorMessageLen, len([]rune(c.LastErrorMessage)))
	assert.NotNil(t, c.LastHeartbeat)

	// plain heartbeat keeps the diagnostic
	require.NoError(t, f.tracking.Ping(ctx, u.ID, dto.PingRequest{}))
	c, err = f.couriers.GetByUserID(u.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.GPSStatusDenied, c.GPSStatus)
}

func TestTrackingService_UpdateLocationClearsErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.courier(t, "c@x.uz", "Ali")

	code := 2
	require.NoError(t, f.tracking.Ping(ctx, u.ID, dto.PingRequest{GPSStatus: domain.GPSStatusUnavailable, ErrorCode: &code, ErrorMessage: "no fix"}))

	speed := 4.5
	require.NoError(t, f.tracking.UpdateLocation(ctx, u.ID, dto.LocationUpdate{Latitude: 41.3, Longitude: 69.2, AccuracyM: 8, SpeedMps: &speed}))

	c, err := f.couriers.GetByUserID(u.ID)
	require.NoError(t, err)
	assert.True(t, c.IsTracking)
	assert.Equal(t, domain.GPSStatusOK, c.GPSStatus)
	assert.Nil(t, c.LastErrorCode)
	assert.Empty(t, c.LastErrorMessage)
	require.NotNil(t, c.LastSpeedMps)
	assert.InDelta(t, 4.5, *c.LastSpeedMps, 1e-9)
	assert.Nil(t, c.LastHeading)
}

func TestTrackingService_ListLocations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ali := f.courier(t, "a@x.uz", "Ali")
	bobur := f.courier(t, "b@x.uz", "")
	idle := f.courier(t, "d@x.uz", "Dilshod")

	require.NoError(t, f.tracking.UpdateLocation(ctx, ali.ID, dto.LocationUpdate{Latitude: 41.3, Longitude: 69.2}))
	require.NoError(t, f.tracking.UpdateLocation(ctx, bobur.ID, dto.LocationUpdate{Latitude: 41.4, Longitude: 69.3}))
	require.NoError(t, f.tracking.Start(ctx, idle.ID))

	list, err := f.tracking.ListLocations(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Ali", list[0].Name)
	assert.Equal(t, "b@x.uz", list[1].Name, "email stands in for an empty name")
	assert.Equal(t, domain.TrackingStatusTracking, list[0].TrackingStatus)
	assert.True(t, list[0].Active())
	require.NotNil(t, list[0].LastUpdate)

	require.NoError(t, f.tracking.Stop(ctx, bobur.ID))
	list, err = f.tracking.ListLocations(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1, "writes invalidate the cached list")
}

func TestTrackingService_MapKey(t *testing.T) {
	f := newFixture(t)

	key, err := f.tracking.MapKey()
	require.NoError(t, err)
	assert.Equal(t, "cfg-key", key)

	require.NoError(t, f.settings.Set(domain.SettingMapAPIKey, "setting-key"))
	key, err = f.tracking.MapKey()
	require.NoError(t, err)
	assert.Equal(t, "setting-key", key)

	require.NoError(t, f.settings.Delete(domain.SettingMapAPIKey))
	f.cfg.Map.APIKey = ""
	_, err = f.tracking.MapKey()
	assert.ErrorIs(t, err, ErrMapKeyMissing)
}
