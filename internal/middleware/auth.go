package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/identity"
)

// AuthMiddleware validates the Authorization header and stores the identity
// claims in the request context.
func AuthMiddleware(provider identity.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		claims, err := provider.Verify(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		SetClaims(c, claims)
		c.Next()
	}
}

// SetClaims stores identity claims on the gin context.
func SetClaims(c *gin.Context, claims identity.Claims) {
	c.Set("userID", claims.UserID)
	c.Set("displayName", claims.DisplayName)
	c.Set("email", claims.Email)
}

// ClaimsFromContext rebuilds the identity claims stored by AuthMiddleware.
func ClaimsFromContext(c *gin.Context) identity.Claims {
	return identity.Claims{
		UserID:      c.GetString("userID"),
		DisplayName: c.GetString("displayName"),
		Email:       c.GetString("email"),
	}
}
