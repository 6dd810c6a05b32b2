// Package intent persists whether the courier wants location reporting on.
package intent

import (
	"errors"

	"courierloc/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Key is the settings key holding the flag as "1" or "0".
const Key = "courierloc.intent"

// Store reads and writes the tracking intent. Storage failures never reach callers:
// a failed read means "off", a failed write is logged.
type Store struct {
	settings *repository.SettingRepository
	logger   *zap.Logger
}

func NewStore(settings *repository.SettingRepository, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{settings: settings, logger: logger.Named("intent")}
}

func (s *Store) Load() bool {
	v, err := s.settings.Get(Key)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Warn("read intent failed", zap.Error(err))
		}
		return false
	}
	return v == "1"
}

func (s *Store) Save(on bool) {
	v := "0"
	if on {
		v = "1"
	}
	if err := s.settings.Set(Key, v); err != nil {
		s.logger.Warn("persist intent failed", zap.Bool("intent", on), zap.Error(err))
	}
}

// Clear removes the flag entirely, as if the agent was freshly installed.
func (s *Store) Clear() error {
	return s.settings.Delete(Key)
}
