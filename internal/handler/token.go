package handler

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/SaddoSenpai/LMArenaBridge/internal/domain/token"
	"github.com/SaddoSenpai/LMArenaBridge/internal/handler/dto"
	"github.com/SaddoSenpai/LMArenaBridge/internal/handler/middleware"
	"github.com/SaddoSenpai/LMArenaBridge/internal/ierr"
	"github.com/SaddoSenpai/LMArenaBridge/internal/service"
)

type TokenHandler struct {
	tokens *service.TokenService
	logger *zap.Logger
}

func NewTokenHandler(tokens *service.TokenService, logger *zap.Logger) *TokenHandler {
	return &TokenHandler{
		tokens: tokens,
		logger: logger.Named("TokenHandler"),
	}
}

// Create issues a new token. The response carries the full secret; it is not
// retrievable afterwards.
func (h *TokenHandler) Create(c *gin.Context) {
	var req dto.CreateTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Failed to bind create token request", zap.Error(err))
		_ = c.Error(fmt.Errorf("%w: %v", ierr.ErrValidation, err))
		return
	}

	created, id, err := h.tokens.Create(c.Request.Context(), token.UserInfo{Name: req.Name, Email: req.Email})
	if err != nil {
		_ = c.Error(err)
		return
	}

	h.logger.Info("Token created via handler",
		zap.String("token_id", id),
		zap.String("admin", middleware.CurrentUsername(c)),
	)
	c.JSON(http.StatusCreated, dto.CreateTokenResponse{
		Token:     created.Secret,
		TokenID:   id,
		CreatedAt: created.CreatedAt,
	})
}

// List returns every token with masked secrets, newest first.
func (h *TokenHandler) List(c *gin.Context) {
	all := h.tokens.List(c.Request.Context())

	responses := make([]*dto.AdminTokenResponse, 0, len(all))
	for id, t := range all {
		responses = append(responses, dto.NewAdminTokenResponse(id, t))
	}
	sort.Slice(responses, func(i, j int) bool {
		return responses[i].CreatedAt.After(responses[j].CreatedAt)
	})

	c.JSON(http.StatusOK, responses)
}

// Info is the public self-lookup keyed by the presented secret.
func (h *TokenHandler) Info(c *gin.Context) {
	secret := c.Param("token")

	t, _, err := h.tokens.Info(c.Request.Context(), secret)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.NewTokenInfoResponse(t))
}

func (h *TokenHandler) Revoke(c *gin.Context) {
	id := c.Param("id")
	if err := h.tokens.Revoke(c.Request.Context(), id); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *TokenHandler) Activate(c *gin.Context) {
	id := c.Param("id")
	if err := h.tokens.Activate(c.Request.Context(), id); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *TokenHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.tokens.Delete(c.Request.Context(), id); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
