package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// ──────────────────────────────────────────────────────────────────
// Operator Bearer Token Authentication
//
// Alert review endpoints change alert lifecycle state, so they require:
// Authorization: Bearer <operator token>. Read-only endpoints stay public.
// ──────────────────────────────────────────────────────────────────

// OperatorAuth returns a middleware that validates the operator token.
// An empty configured token allows all requests (dev mode); this is logged
// loudly since in production it leaves the review workflow open.
func OperatorAuth(token string, logger zerolog.Logger) gin.HandlerFunc {
	if token == "" {
		logger.Warn().Msg("operator token not set; alert review endpoints are unauthenticated")
	}

	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}

		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Missing Authorization header",
				"hint":  "Use: Authorization: Bearer <operator token>",
			})
			c.Abort()
			return
		}

		parts := strings.SplitN(auth, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusForbidden, gin.H{"error": "Invalid Authorization header format"})
			c.Abort()
			return
		}

		// Constant-time comparison prevents timing-based token enumeration.
		if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(token)) != 1 {
			c.JSON(http.StatusForbidden, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		c.Next()
	}
}
