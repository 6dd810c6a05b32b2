package middleware

import (
	"net/http"

	"courierloc/internal/domain"

	"github.com/gin-gonic/gin"
)

// ManagerRequired checks that the authenticated user has the MANAGER role.
func ManagerRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get("role")
		if !exists || role.(string) != domain.RoleManager {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "manager access required"})
			return
		}
		c.Next()
	}
}

// CourierRequired checks that the authenticated user has the COURIER role.
func CourierRequired() gin.HandlerFunc {
	return RequireRole(domain.RoleCourier)
}
