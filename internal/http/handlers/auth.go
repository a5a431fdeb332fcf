package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openwebui-monitor/server/internal/security"
)

// AuthHandler exchanges the panel access token for a session JWT.
type AuthHandler struct {
	accessToken string
	jwtSecret   string
	jwtExpiry   time.Duration
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(accessToken, jwtSecret string, jwtExpiry time.Duration) *AuthHandler {
	return &AuthHandler{accessToken: accessToken, jwtSecret: jwtSecret, jwtExpiry: jwtExpiry}
}

// tokenRequest is the session exchange payload.
type tokenRequest struct {
	AccessToken string `json:"access_token"`
}

// Token validates the shared access token and mints a panel session JWT.
func (h *AuthHandler) Token(c *gin.Context) {
	var body tokenRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if h.accessToken == "" || body.AccessToken != h.accessToken {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid access token"})
		return
	}

	token, errGenerate := security.GeneratePanelToken(h.jwtSecret, h.jwtExpiry)
	if errGenerate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "generate token failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_in": int64(h.jwtExpiry.Seconds()),
	})
}
