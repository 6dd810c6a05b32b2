package database

import (
	"errors"
	"fmt"

	"courierloc/config"
	"courierloc/internal/domain"
	"courierloc/internal/models"
	"courierloc/internal/repository"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func NewDB(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Error), // Only log errors, not every SQL query
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.Driver == "sqlite" {
		// sqlite allows a single writer; one connection avoids "database is locked".
		sqlDB.SetMaxOpenConns(1)
		return db, nil
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return db, nil
}

// AutoMigrate runs Gorm auto-migration for all server models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Courier{},
		&models.SystemSetting{},
	)
}

// MigrateSettings migrates only the key/value table. The courier agent uses it for local state.
func MigrateSettings(db *gorm.DB) error {
	return db.AutoMigrate(&models.SystemSetting{})
}

// SeedManager creates the initial manager account when no user with that email exists.
// It returns true when an account was created.
func SeedManager(db *gorm.DB, email, password string) (bool, error) {
	if email == "" || password == "" {
		return false, nil
	}
	var existing models.User
	err := db.Where("email = ?", email).First(&existing).Error
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return false, err
	}
	u := &models.User{Email: email, Name: "Manager", PasswordHash: string(hash), Role: domain.RoleManager}
	if err := db.Create(u).Error; err != nil {
		return false, err
	}
	return true, nil
}

// SeedSettings stores configured defaults as system settings unless they already exist.
// A key edited in the database keeps its value across restarts.
func SeedSettings(db *gorm.DB, mapCfg *config.MapConfig) error {
	defaults := map[string]string{}
	if mapCfg.APIKey != "" {
		defaults[domain.SettingMapAPIKey] = mapCfg.APIKey
	}
	if len(defaults) == 0 {
		return nil
	}
	return repository.NewSettingRepository(db).SeedDefaults(defaults)
}
