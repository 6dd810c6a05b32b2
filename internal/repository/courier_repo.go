package repository

import (
	"errors"

	"courierloc/internal/domain"
	"courierloc/internal/models"

	"gorm.io/gorm"
)

type CourierRepository struct {
	db *gorm.DB
}

func NewCourierRepository(db *gorm.DB) *CourierRepository {
	return &CourierRepository{db: db}
}

func (r *CourierRepository) Save(c *models.Courier) error {
	return r.db.Save(c).Error
}

func (r *CourierRepository) GetByUserID(userID uint) (*models.Courier, error) {
	var c models.Courier
	err := r.db.Where("user_id = ?", userID).First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetOrCreateByUserID returns the courier record of a user, creating an idle one on first use.
func (r *CourierRepository) GetOrCreateByUserID(userID uint) (*models.Courier, error) {
	c, err := r.GetByUserID(userID)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	c = &models.Courier{UserID: userID, GPSStatus: domain.GPSStatusUnknown}
	if err := r.db.Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

// ListTrackedWithCoordinates returns couriers with tracking intent on and a known position,
// including stale and offline ones so managers can see where a connection dropped.
func (r *CourierRepository) ListTrackedWithCoordinates() ([]models.Courier, error) {
	var list []models.Courier
	err := r.db.Preload("User").
		Where("is_tracking = ? AND last_latitude IS NOT NULL AND last_longitude IS NOT NULL", true).
		Order("id ASC").
		Find(&list).Error
	return list, err
}
