package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/SaddoSenpai/LMArenaBridge/internal/handler/middleware"
	"github.com/SaddoSenpai/LMArenaBridge/internal/service"
)

type AuthHandler struct {
	sessions *service.SessionService
	logger   *zap.Logger
}

func NewAuthHandler(sessions *service.SessionService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		sessions: sessions,
		logger:   logger.Named("AuthHandler"),
	}
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Failed to bind login request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username and password are required"})
		return
	}

	session, err := h.sessions.Login(req.Username, req.Password)
	if err != nil {
		_ = c.Error(err)
		return
	}

	maxAge := int(time.Until(session.ExpiresAt).Seconds())
	c.SetCookie(middleware.SessionCookieName, session.ID, maxAge, "/", "", false, true)

	h.logger.Info("Admin session issued", zap.String("username", session.Username))
	c.JSON(http.StatusOK, LoginResponse{
		SessionID: session.ID,
		ExpiresAt: session.ExpiresAt,
	})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	if sessionID := middleware.SessionIDFromRequest(c); sessionID != "" {
		h.sessions.Logout(sessionID)
	}

	c.SetCookie(middleware.SessionCookieName, "", -1, "/", "", false, true)
	c.Status(http.StatusNoContent)
}
