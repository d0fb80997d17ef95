package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/SaddoSenpai/LMArenaBridge/internal/handler/dto"
	"github.com/SaddoSenpai/LMArenaBridge/internal/ierr"
	"github.com/SaddoSenpai/LMArenaBridge/internal/service"
)

type UsageHandler struct {
	usage  *service.UsageService
	logger *zap.Logger
}

func NewUsageHandler(usage *service.UsageService, logger *zap.Logger) *UsageHandler {
	return &UsageHandler{
		usage:  usage,
		logger: logger.Named("UsageHandler"),
	}
}

// Record ingests one usage event from the request-serving path. Whether the
// event was attributed or dropped is deliberately not revealed.
func (h *UsageHandler) Record(c *gin.Context) {
	var req dto.RecordUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Failed to bind usage event", zap.Error(err))
		_ = c.Error(fmt.Errorf("%w: %v", ierr.ErrValidation, err))
		return
	}

	if err := h.usage.Record(c.Request.Context(), req.Token, req.Model, req.TokensUsed, req.IP); err != nil {
		_ = c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}

// Stats is the public global stats snapshot.
func (h *UsageHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.usage.Stats(c.Request.Context()))
}

// Timeline answers usage-per-day over the last N days, optionally scoped to
// the token whose secret is supplied.
func (h *UsageHandler) Timeline(c *gin.Context) {
	var req dto.TimelineRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Warn("Failed to bind timeline query", zap.Error(err))
		_ = c.Error(fmt.Errorf("%w: %v", ierr.ErrValidation, err))
		return
	}

	c.JSON(http.StatusOK, h.usage.Timeline(c.Request.Context(), req.Token, req.Days))
}

// Recent returns the newest usage log entries (admin only).
func (h *UsageHandler) Recent(c *gin.Context) {
	var req dto.RecentUsageRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Warn("Failed to bind recent usage query", zap.Error(err))
		_ = c.Error(fmt.Errorf("%w: %v", ierr.ErrValidation, err))
		return
	}

	c.JSON(http.StatusOK, h.usage.Recent(c.Request.Context(), req.Limit))
}
