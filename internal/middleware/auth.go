package middleware

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/vanpelt/livesync/internal/logger"
	"github.com/vanpelt/livesync/internal/models"
)

// Locals keys set by RequireAuth
const (
	ClaimsLocal = "claims"
	EditorLocal = "editor"
)

// TokenCookie is the cookie a browser may carry the token in
const TokenCookie = "livesync_token"

// Claims identify an editor. Subject is the editor id.
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Editor maps the claims onto the identity used for presence
func (c *Claims) Editor() models.Editor {
	return models.Editor{ID: c.Subject, Name: c.Name}
}

type AuthMiddleware struct {
	secret []byte
}

// NewAuthMiddleware returns nil when secret is empty, which disables auth
func NewAuthMiddleware(secret string) *AuthMiddleware {
	if secret == "" {
		return nil
	}
	return &AuthMiddleware{
		secret: []byte(secret),
	}
}

// RequireAuth resolves the caller's identity and stores it in Locals. With
// auth disabled the identity comes from the editor query parameter, or a
// generated anonymous id.
func (am *AuthMiddleware) RequireAuth(c *fiber.Ctx) error {
	if c.Path() == "/health" {
		return c.Next()
	}

	if am == nil {
		c.Locals(EditorLocal, anonymousEditor(c))
		return c.Next()
	}

	token := extractToken(c)
	if token == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "authentication required",
		})
	}

	claims, err := am.ValidateToken(token)
	if err != nil {
		logger.Debugf("Auth failed: %v", err)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "invalid or expired token",
		})
	}

	c.Locals(ClaimsLocal, claims)
	c.Locals(EditorLocal, claims.Editor())
	return c.Next()
}

// EditorFrom returns the identity RequireAuth attached to the request
func EditorFrom(c *fiber.Ctx) models.Editor {
	if editor, ok := c.Locals(EditorLocal).(models.Editor); ok {
		return editor
	}
	return anonymousEditor(c)
}

func anonymousEditor(c *fiber.Ctx) models.Editor {
	// Copied: fiber reuses query buffers once the handler returns
	if id := strings.Clone(strings.TrimSpace(c.Query("editor"))); id != "" {
		return models.Editor{ID: id, Name: id}
	}
	return models.Editor{ID: "anon-" + uuid.NewString()[:8]}
}

// extractToken tries to get the token from various sources
func extractToken(c *fiber.Ctx) string {
	// 1. Authorization header
	authHeader := c.Get("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
			return parts[1]
		}
	}

	// 2. Cookie
	if cookie := c.Cookies(TokenCookie); cookie != "" {
		return cookie
	}

	// 3. Query parameter, since browsers cannot set headers on a websocket upgrade
	if token := c.Query("token"); token != "" {
		return token
	}

	return ""
}

// ValidateToken checks signature, algorithm and expiry of an HS256 token
func (am *AuthMiddleware) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return am.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

// GenerateToken mints a token for editor valid for duration
func GenerateToken(secret string, editor models.Editor, duration time.Duration) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("auth secret not set")
	}
	if editor.ID == "" {
		return "", fmt.Errorf("editor id is required")
	}

	now := time.Now()
	claims := Claims{
		Name: editor.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   editor.ID,
			Issuer:    "livesync",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
