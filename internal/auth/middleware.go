package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	ContextAddress   = "authAddress"
	ContextOrganizer = "authOrganizer"
)

func JWTMiddleware(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}
		token := strings.TrimSpace(authz[7:])
		claims, err := svc.Parse(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(ContextAddress, claims.Address)
		c.Set(ContextOrganizer, claims.Organizer)
		c.Next()
	}
}

// RequireOrganizer guards organizer-only routes. It must run after
// JWTMiddleware.
func RequireOrganizer() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool(ContextOrganizer) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "organizer access required"})
			return
		}
		c.Next()
	}
}

// CallerAddress returns the authenticated wallet address set by
// JWTMiddleware, normalized lowercase.
func CallerAddress(c *gin.Context) string {
	return c.GetString(ContextAddress)
}
