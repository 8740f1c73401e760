// Package auth implements the §6 HTTP authentication surface: bearer JWT
// verification against a primary/previous key pair (so keys can rotate
// without invalidating live sessions), a revoked-credential blocklist, and
// the internal-service token check for the internal API family. Grounded on
// the EHR repo's JWT middleware shape, translated from echo to gin and from
// JWKS to the service's own HMAC key pair (§6 config: primary_key,
// previous_key, old_key_expiry).
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/ilindan-dev/notifyhub/internal/config"
	"github.com/rs/zerolog"
)

const userIDContextKey = "auth.user_id"

// Claims is the bearer credential's payload.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"userId"`
}

// Blocklist checks whether a token's jti has been revoked (logout,
// credential rotation, account suspension), backed by Redis in production.
type Blocklist interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Middleware is the gin auth layer.
type Middleware struct {
	cfg       config.AuthConfig
	blocklist Blocklist
	logger    zerolog.Logger
}

// New builds the auth middleware.
func New(cfg config.AuthConfig, blocklist Blocklist, logger *zerolog.Logger) *Middleware {
	return &Middleware{
		cfg:       cfg,
		blocklist: blocklist,
		logger:    logger.With().Str("component", "auth_middleware").Logger(),
	}
}

// Authenticate verifies the bearer token against the primary key, falling
// back to the previous key whenever one is configured, checks the blocklist,
// and stores the resolved user ID on the gin context for handlers to read via
// UserID. OldKeyExpiry is not consulted: a token signed with the previous key
// is accepted for as long as PreviousKey is set.
func (m *Middleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or malformed authorization header"})
			return
		}

		claims, err := m.verify(tokenStr)
		if err != nil {
			m.logger.Warn().Err(err).Msg("token verification failed")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		if m.blocklist != nil && claims.ID != "" {
			revoked, err := m.blocklist.IsRevoked(c.Request.Context(), claims.ID)
			if err != nil {
				m.logger.Error().Err(err).Msg("blocklist check failed, failing closed")
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "auth temporarily unavailable"})
				return
			}
			if revoked {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "credential revoked"})
				return
			}
		}

		c.Set(userIDContextKey, claims.UserID)
		c.Next()
	}
}

// RequireInternalService gates the /api/internal/* surface behind a static
// shared-secret header, for service-to-service calls (§6).
func (m *Middleware) RequireInternalService() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.cfg.InternalToken == "" || c.GetHeader("X-Internal-Token") != m.cfg.InternalToken {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "internal service token required"})
			return
		}
		c.Next()
	}
}

func (m *Middleware) verify(tokenStr string) (*Claims, error) {
	claims, err := parseWithKey(tokenStr, m.cfg.PrimaryKey)
	if err == nil {
		return claims, nil
	}
	if m.cfg.PreviousKey == "" {
		return nil, err
	}
	return parseWithKey(tokenStr, m.cfg.PreviousKey)
}

func parseWithKey(tokenStr, key string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("auth: unexpected signing method")
		}
		return []byte(key), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("auth: token not valid")
	}
	if claims.UserID == "" {
		return nil, errors.New("auth: token missing userId claim")
	}
	return claims, nil
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// UserID extracts the authenticated user ID set by Authenticate.
func UserID(c *gin.Context) (string, bool) {
	v, ok := c.Get(userIDContextKey)
	if !ok {
		return "", false
	}
	userID, ok := v.(string)
	return userID, ok
}
