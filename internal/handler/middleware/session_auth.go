package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/SaddoSenpai/LMArenaBridge/internal/ierr"
	"github.com/SaddoSenpai/LMArenaBridge/internal/service"
)

const (
	// SessionCookieName carries the session id for browser clients.
	SessionCookieName = "session_id"
	// SessionHeaderName carries the session id for API clients.
	SessionHeaderName = "X-Session-ID"

	adminUserContextKey = "adminUser"
)

// SessionAuthMiddleware gates admin-only routes on a valid session taken from
// the cookie or the header.
func SessionAuthMiddleware(sessions *service.SessionService, logger *zap.Logger) gin.HandlerFunc {
	log := logger.Named("SessionAuthMiddleware")
	return func(c *gin.Context) {
		sessionID := SessionIDFromRequest(c)
		if sessionID == "" {
			log.Debug("Session id missing from request")
			_ = c.Error(fmt.Errorf("%w: session required", ierr.ErrSessionInvalid))
			c.Abort()
			return
		}

		username, err := sessions.Validate(sessionID)
		if err != nil {
			log.Debug("Session validation failed", zap.Error(err))
			_ = c.Error(err)
			c.Abort()
			return
		}

		c.Set(adminUserContextKey, username)
		c.Next()
	}
}

// SessionIDFromRequest extracts the session id, preferring the cookie.
func SessionIDFromRequest(c *gin.Context) string {
	if cookie, err := c.Cookie(SessionCookieName); err == nil && cookie != "" {
		return cookie
	}
	return c.GetHeader(SessionHeaderName)
}

// CurrentUsername returns the authenticated admin username, if any.
func CurrentUsername(c *gin.Context) string {
	value, exists := c.Get(adminUserContextKey)
	if !exists {
		return ""
	}
	username, ok := value.(string)
	if !ok {
		return ""
	}
	return username
}
