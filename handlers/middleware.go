package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/elite-business/case-tools-new-sub005/db"
	"github.com/elite-business/case-tools-new-sub005/services"
)

// AuthMiddleware validates the bearer token and stores the user identity on
// the gin context
func AuthMiddleware(authService *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := authService.ExtractTokenFromHeader(c.GetHeader("Authorization"))
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing or malformed authorization header"})
			c.Abort()
			return
		}

		claims, err := authService.ValidateToken(token)
		if err != nil {
			log.Printf("Token validation failed: %v", err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("user_email", claims.Email)
		c.Set("user_role", claims.Role)
		c.Next()
	}
}

// RequireRole rejects requests whose authenticated role is not in the allow list.
// Admin always passes.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString("user_role")
		if role == db.RoleAdmin {
			c.Next()
			return
		}
		for _, allowed := range roles {
			if role == allowed {
				c.Next()
				return
			}
		}
		c.JSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
		c.Abort()
	}
}

// currentUserID reads the authenticated user id set by AuthMiddleware
func currentUserID(c *gin.Context) string {
	return c.GetString("user_id")
}
