package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/SaddoSenpai/LMArenaBridge/internal/storage/jsonfile"
)

type HealthHandler struct {
	store  *jsonfile.Store
	logger *zap.Logger
}

func NewHealthHandler(store *jsonfile.Store, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		store:  store,
		logger: logger,
	}
}

func (h *HealthHandler) Check(c *gin.Context) {
	stats := h.store.GlobalStats()
	c.JSON(http.StatusOK, gin.H{
		"status":        "healthy",
		"active_tokens": stats.ActiveTokens,
	})
}
