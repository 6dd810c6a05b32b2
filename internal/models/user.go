package models

import (
	"time"

	"courierloc/internal/domain"

	"gorm.io/gorm"
)

type User struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Email        string         `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Name         string         `gorm:"size:128;not null;default:''" json:"name"`
	PasswordHash string         `gorm:"size:255" json:"-"`
	Role         string         `gorm:"size:20;not null;index" json:"role"` // COURIER | MANAGER
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`

	Courier *Courier `gorm:"foreignKey:UserID" json:"courier,omitempty"`
}

func (u *User) IsCourier() bool { return u.Role == domain.RoleCourier }
func (u *User) IsManager() bool { return u.Role == domain.RoleManager }

// DisplayName falls back to the email when no name was set.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}
