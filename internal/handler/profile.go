package handler

import (
	"context"
	"net/http"
	"strconv"

	"policychat/internal/logger"
	"policychat/internal/model"

	"github.com/gin-gonic/gin"
)

// ProfileService looks up stored user profiles
type ProfileService interface {
	GetProfile(ctx context.Context, userID int64) (*model.ProfileResponse, error)
}

// ProfileHandler handles profile-related HTTP requests
type ProfileHandler struct {
	profiles ProfileService
	log      *logger.Logger
}

// NewProfileHandler creates a new profile handler
func NewProfileHandler(profiles ProfileService, log *logger.Logger) *ProfileHandler {
	return &ProfileHandler{
		profiles: profiles,
		log:      log.With("handler", "profile"),
	}
}

// Get handles GET /api/v1/users/:id/profile
func (h *ProfileHandler) Get(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || userID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	profile, err := h.profiles.GetProfile(c.Request.Context(), userID)
	if err != nil {
		h.log.Error("Failed to get profile", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get profile: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, profile)
}
