package middleware

import (
	"errors"
	"net/http"

	"courierloc/internal/logger"
	"courierloc/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// UserLookup loads an account by id.
type UserLookup interface {
	GetByID(id uint) (*models.User, error)
}

// ActiveUser rejects tokens whose account was deleted or whose role changed since the
// token was issued. It must run after AuthRequired.
func ActiveUser(users UserLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, err := users.GetByID(GetUserID(c))
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "account no longer exists"})
			return
		}
		if err != nil {
			logger.FromContext(c).Error("load user failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if role, _ := c.Get("role"); role != u.Role {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "role changed, sign in again"})
			return
		}
		c.Next()
	}
}
