package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"auction-engine/internal/biddingerrors"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// ContextUserKey is the gin context key holding the authenticated user id
const ContextUserKey = "user_id"

// Middleware verifies an HS256 bearer token and stores its subject as the caller's user id.
// Requests without a valid token are rejected with 401.
func Middleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := ParseToken(secret, bearerToken(c.GetHeader("Authorization")))
		if err != nil {
			utils.Warn("auth: rejected request", map[string]any{
				"path":  c.FullPath(),
				"error": err.Error(),
			})
			utils.AbortWithError(c, http.StatusUnauthorized, biddingerrors.ErrUnauthorized, "Authentication required")
			return
		}
		c.Set(ContextUserKey, userID)
		c.Next()
	}
}

// UserID returns the authenticated caller set by Middleware
func UserID(c *gin.Context) (string, bool) {
	id := c.GetString(ContextUserKey)
	return id, id != ""
}

// ParseToken validates the token and returns its subject
func ParseToken(secret []byte, raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("auth: %w - missing bearer token", biddingerrors.ErrUnauthorized)
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("auth: %w - %w", biddingerrors.ErrUnauthorized, err)
	}
	if !token.Valid || claims.Subject == "" {
		return "", fmt.Errorf("auth: %w - token has no subject", biddingerrors.ErrUnauthorized)
	}
	return claims.Subject, nil
}

// IssueToken signs a token for userID valid for ttl. Used by tests and local tooling;
// issuing identities is left to an external provider.
func IssueToken(secret []byte, userID string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("auth: empty user id")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
