package models

import (
	"time"

	"courierloc/internal/domain"

	"gorm.io/gorm"
)

// Courier holds the live tracking record of one courier user.
// IsTracking is the intent announced by the device (start pressed, stop not pressed).
type Courier struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	UserID           uint           `gorm:"uniqueIndex;not null" json:"user_id"`
	IsTracking       bool           `gorm:"default:false;index" json:"is_tracking"`
	LastLatitude     *float64       `gorm:"type:decimal(10,7)" json:"last_latitude"`
	LastLongitude    *float64       `gorm:"type:decimal(10,7)" json:"last_longitude"`
	LastAccuracyM    *float64       `json:"last_accuracy_m"`
	LastSpeedMps     *float64       `json:"last_speed_mps"`
	LastHeading      *float64       `json:"last_heading"`
	LastUpdate       *time.Time     `gorm:"index" json:"last_update"`
	LastHeartbeat    *time.Time     `gorm:"index" json:"last_heartbeat"`
	GPSStatus        string         `gorm:"size:20;not null;default:'unknown';index" json:"gps_status"`
	LastErrorCode    *int           `json:"last_error_code"`
	LastErrorMessage string         `gorm:"size:512" json:"last_error_message"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}

func (Courier) TableName() string { return "couriers" }

// IsOnline reports whether the courier app sent a heartbeat within the cutoff.
func (c *Courier) IsOnline(now time.Time) bool {
	return c.LastHeartbeat != nil && !c.LastHeartbeat.Before(now.Add(-domain.HeartbeatCutoff))
}

// TrackingStatus derives the status managers see on the map.
func (c *Courier) TrackingStatus(now time.Time) string {
	switch {
	case !c.IsTracking:
		return domain.TrackingStatusStopped
	case !c.IsOnline(now):
		return domain.TrackingStatusOffline
	case c.GPSStatus == domain.GPSStatusUnavailable || c.GPSStatus == domain.GPSStatusDenied:
		return domain.TrackingStatusGPSOff
	case c.LastUpdate == nil || c.LastUpdate.Before(now.Add(-domain.FixCutoff)):
		return domain.TrackingStatusStale
	default:
		return domain.TrackingStatusTracking
	}
}
