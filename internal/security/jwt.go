package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWT validation errors.
var (
	// ErrInvalidToken indicates a token is malformed or fails validation.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken indicates a token has expired.
	ErrExpiredToken = errors.New("token expired")
)

// PanelClaims defines JWT claims for panel sessions.
type PanelClaims struct {
	Panel bool `json:"panel"`
	jwt.RegisteredClaims
}

// GeneratePanelToken signs a panel session JWT with the configured expiry.
func GeneratePanelToken(secret string, expiry time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := PanelClaims{
		Panel: true,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParsePanelToken validates a panel session JWT.
func ParsePanelToken(secret, tokenString string) (*PanelClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &PanelClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*PanelClaims)
	if !ok || !token.Valid || !claims.Panel {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
