package middleware

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/fenilmodi00/ipogains-backend/shared"
)

// Claims is the JWT payload issued on login. Authorization decisions are
// made from the claims alone, without a database round trip.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

const (
	localUserID = "auth_user_id"
	localRole   = "auth_role"
)

// GenerateToken signs a JWT for the given user.
func GenerateToken(userID, role, secret string, expiry time.Duration) (string, error) {
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func parseToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

func bearerToken(c *fiber.Ctx) string {
	header := c.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

// Protected rejects requests without a valid bearer token.
func Protected(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := bearerToken(c)
		if tokenString == "" {
			return AuthError(c, "Missing authorization token")
		}
		claims, err := parseToken(tokenString, secret)
		if err != nil {
			return AuthError(c, "Invalid or expired token")
		}
		c.Locals(localUserID, claims.UserID)
		c.Locals(localRole, claims.Role)
		return c.Next()
	}
}

// AdminOnly requires a valid token carrying the admin role. Must run after
// Protected in the handler chain, but also works standalone.
func AdminOnly(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if Role(c) == "" {
			tokenString := bearerToken(c)
			if tokenString == "" {
				return AuthError(c, "Missing authorization token")
			}
			claims, err := parseToken(tokenString, secret)
			if err != nil {
				return AuthError(c, "Invalid or expired token")
			}
			c.Locals(localUserID, claims.UserID)
			c.Locals(localRole, claims.Role)
		}
		if Role(c) != "admin" {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"success": false,
				"error":   "Admin access required",
			})
		}
		return c.Next()
	}
}

// OptionalAuth decodes a token when present but never rejects the request.
// Handlers can then branch on whether UserID(c) is empty.
func OptionalAuth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if tokenString := bearerToken(c); tokenString != "" {
			if claims, err := parseToken(tokenString, secret); err == nil {
				c.Locals(localUserID, claims.UserID)
				c.Locals(localRole, claims.Role)
			}
		}
		return c.Next()
	}
}

// UserID returns the authenticated user id, or "" when unauthenticated.
func UserID(c *fiber.Ctx) string {
	if v, ok := c.Locals(localUserID).(string); ok {
		return v
	}
	return ""
}

// Role returns the authenticated role, or "" when unauthenticated.
func Role(c *fiber.Ctx) string {
	if v, ok := c.Locals(localRole).(string); ok {
		return v
	}
	return ""
}

// AuthError writes the standard 401 envelope.
func AuthError(c *fiber.Ctx, message string) error {
	err := shared.NewAuthError(message)
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"success": false,
		"error":   err.Message,
	})
}
