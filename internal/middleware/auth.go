// File: internal/middleware/auth.go
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"lingualearn_backend/internal/common"
	"lingualearn_backend/internal/firebase"
)

// AuthMiddleware creates a Gin middleware that authenticates requests with a
// Firebase ID token and stores the provider UID in the request context.
func AuthMiddleware(fb *firebase.Service, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader(common.AuthorizationHeader)
		if authHeader == "" {
			logger.Debug("Authorization header missing")
			common.RespondWithError(c, common.ErrUnauthorized.WithDetails("Authorization header is required."))
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || !strings.EqualFold(parts[0], common.AuthorizationTypeBearer) {
			logger.Debug("Authorization header format invalid", zap.String("header", authHeader))
			common.RespondWithError(c, common.ErrUnauthorized.WithDetails("Authorization header format must be 'Bearer <token>'."))
			return
		}

		token, err := fb.VerifyIDToken(c.Request.Context(), parts[1])
		if err != nil {
			logger.Warn("ID token verification failed", zap.Error(err))
			common.RespondWithError(c, common.ErrUnauthorized.WithDetails("Invalid or expired session token."))
			return
		}

		c.Set(common.UserUIDKey, token.UID)
		if email, ok := token.Claims["email"].(string); ok {
			c.Set(common.UserEmailKey, email)
		}

		logger.Debug("Request authenticated", zap.String("uid", token.UID))
		c.Next()
	}
}
