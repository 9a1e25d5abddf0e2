package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"collegenetwork/internal/services"
)

// ClaimsKey: ключ, под которым в gin.Context лежат *services.VerificationClaims.
const ClaimsKey = "otp_claims"

type tokenParser interface {
	Parse(token string) (*services.VerificationClaims, error)
}

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": msg})
}

// RequireVerification пропускает только запросы с валидным verification-токеном.
func RequireVerification(tokens tokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		// пропускаем preflight
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}
		if tokens == nil {
			unauthorized(c, "verification tokens are disabled")
			return
		}

		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			unauthorized(c, "Missing or invalid Authorization header")
			return
		}
		tokenStr := strings.TrimSpace(parts[1])
		if tokenStr == "" {
			unauthorized(c, "Missing or invalid Authorization header")
			return
		}

		claims, err := tokens.Parse(tokenStr)
		if err != nil {
			unauthorized(c, "Invalid or expired token")
			return
		}

		c.Set(ClaimsKey, claims)
		c.Next()
	}
}
