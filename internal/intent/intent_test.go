package intent

import (
	"testing"

	"courierloc/config"
	"courierloc/internal/database"
	"courierloc/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (*Store, *repository.SettingRepository) {
	t.Helper()
	db, err := database.NewDB(&config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, database.MigrateSettings(db))
	settings := repository.NewSettingRepository(db)
	return NewStore(settings, nil), settings
}

func TestStore_DefaultsOff(t *testing.T) {
	s, _ := newStore(t)
	assert.False(t, s.Load())
}

func TestStore_RoundTrip(t *testing.T) {
	s, settings := newStore(t)

	s.Save(true)
	assert.True(t, s.Load())
	raw, err := settings.Get(Key)
	require.NoError(t, err)
	assert.Equal(t, "1", raw)

	s.Save(false)
	assert.False(t, s.Load())
	raw, err = settings.Get(Key)
	require.NoError(t, err)
	assert.Equal(t, "0", raw)
}

func TestStore_Clear(t *testing.T) {
	s, _ := newStore(t)
	s.Save(true)
	require.NoError(t, s.Clear())
	assert.False(t, s.Load())
}

func TestStore_UnexpectedValueIsOff(t *testing.T) {
	s, settings := newStore(t)
	require.NoError(t, settings.Set(Key, "yes"))
	assert.False(t, s.Load())
}
