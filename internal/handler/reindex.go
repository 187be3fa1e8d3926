package handler

import (
	"context"
	"net/http"
	"strconv"

	"policychat/internal/logger"
	"policychat/internal/model"

	"github.com/gin-gonic/gin"
)

// IndexSyncer rebuilds the policy index from the policy table
type IndexSyncer interface {
	Sync(ctx context.Context, force bool) (model.ReindexResponse, error)
}

// ReindexHandler handles index maintenance requests
type ReindexHandler struct {
	syncer IndexSyncer
	log    *logger.Logger
}

// NewReindexHandler creates a new reindex handler
func NewReindexHandler(syncer IndexSyncer, log *logger.Logger) *ReindexHandler {
	return &ReindexHandler{
		syncer: syncer,
		log:    log.With("handler", "reindex"),
	}
}

// Reindex handles POST /api/v1/policies/reindex[?force=true]
func (h *ReindexHandler) Reindex(c *gin.Context) {
	force := false
	if raw := c.Query("force"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid force flag"})
			return
		}
		force = v
	}

	res, err := h.syncer.Sync(c.Request.Context(), force)
	if err != nil {
		h.log.Error("Index sync failed", "force", force, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Reindex failed: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, res)
}
