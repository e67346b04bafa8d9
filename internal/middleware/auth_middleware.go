package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/railconnect/route-finder/pkg/jwt"
	"github.com/sirupsen/logrus"
)

// OperatorContextKey is the key used to store the token claims in Gin context
const OperatorContextKey = "operator"

// AuthMiddleware creates a middleware that validates bearer tokens
// and requires every listed role
func AuthMiddleware(jwtService *jwt.Service, logger *logrus.Logger, roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.WithFields(logrus.Fields{
			"path": c.Request.URL.Path,
			"ip":   c.ClientIP(),
		})

		// Get Authorization header
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			log.Warn("AUTH FAILED: Missing authorization header")
			abort(c, http.StatusUnauthorized, "unauthorized", "Authorization header is required", "MISSING_AUTH_HEADER")
			return
		}

		// Check Bearer token format
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			log.Warn("AUTH FAILED: Invalid auth format")
			abort(c, http.StatusUnauthorized, "unauthorized", "Invalid authorization header format. Expected: Bearer <token>", "INVALID_AUTH_FORMAT")
			return
		}
		tokenString := strings.TrimSpace(parts[1])

		// Validate token
		claims, err := jwtService.ValidateToken(tokenString)
		if err != nil {
			if jwtService.IsTokenExpired(tokenString) {
				log.WithError(err).Warn("AUTH FAILED: Token expired")
				abort(c, http.StatusUnauthorized, "token_expired", "Access token has expired", "TOKEN_EXPIRED")
			} else {
				log.WithError(err).Warn("AUTH FAILED: Invalid token")
				abort(c, http.StatusUnauthorized, "invalid_token", "Invalid access token", "INVALID_TOKEN")
			}
			return
		}

		for _, role := range roles {
			if !claims.HasRole(role) {
				log.WithField("operator_id", claims.OperatorID).Warn("AUTH FAILED: Missing role " + role)
				abort(c, http.StatusForbidden, "forbidden", "Insufficient permissions", "INSUFFICIENT_ROLE")
				return
			}
		}

		c.Set(OperatorContextKey, claims)
		c.Next()
	}
}

// GetOperator retrieves the token claims set by AuthMiddleware
func GetOperator(c *gin.Context) (*jwt.Claims, bool) {
	value, exists := c.Get(OperatorContextKey)
	if !exists {
		return nil, false
	}
	claims, ok := value.(*jwt.Claims)
	return claims, ok
}

func abort(c *gin.Context, status int, errCode, message, code string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error":   errCode,
		"message": message,
		"code":    code,
	})
}
