package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/openwebui-monitor/server/internal/security"
)

// bearerToken extracts a Bearer credential from the Authorization header.
func bearerToken(c *gin.Context) string {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return header
}

// APIKeyAuthMiddleware authenticates the upstream gateway on billing
// endpoints with the shared API key.
func APIKeyAuthMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.TrimSpace(apiKey) == "" {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "API key not configured"})
			return
		}
		if bearerToken(c) != apiKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
			return
		}
		c.Next()
	}
}

// PanelAuthMiddleware authenticates panel requests with either the shared
// access token or a JWT session previously minted from it.
func PanelAuthMiddleware(accessToken, jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.TrimSpace(accessToken) == "" {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Access token not configured"})
			return
		}
		credential := bearerToken(c)
		if credential == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing credentials"})
			return
		}
		if credential == accessToken {
			c.Next()
			return
		}
		if _, errParse := security.ParsePanelToken(jwtSecret, credential); errParse != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}
		c.Next()
	}
}
