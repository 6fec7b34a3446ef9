package handler

import (
	"net/http"

	"github.com/aman-churiwal/api-sentinel/internal/models"
	"github.com/aman-churiwal/api-sentinel/internal/service"
	"github.com/gin-gonic/gin"
)

type ProfileHandler struct {
	service *service.ProfileService
}

func NewProfileHandler(service *service.ProfileService) *ProfileHandler {
	return &ProfileHandler{service: service}
}

func (h *ProfileHandler) Get(c *gin.Context) {
	userID := c.Param("id")

	profile, err := h.service.Get(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if profile == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Profile not found"})
		return
	}

	c.JSON(http.StatusOK, profile)
}

func (h *ProfileHandler) Update(c *gin.Context) {
	var req struct {
		Tier         string            `json:"tier" binding:"required"`
		CustomLimits map[string]int    `json:"custom_limits"`
		Whitelist    bool              `json:"whitelist"`
		Blacklist    bool              `json:"blacklist"`
		Metadata     map[string]string `json:"metadata"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	profile := &models.UserRateLimitProfile{
		UserID:       c.Param("id"),
		Tier:         req.Tier,
		CustomLimits: req.CustomLimits,
		Whitelist:    req.Whitelist,
		Blacklist:    req.Blacklist,
		Metadata:     req.Metadata,
	}

	if err := h.service.Update(c.Request.Context(), profile); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, profile)
}
