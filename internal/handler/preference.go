package handler

import (
	"net/http"

	"github.com/aman-churiwal/api-sentinel/internal/models"
	"github.com/aman-churiwal/api-sentinel/internal/repository"
	"github.com/gin-gonic/gin"
)

type PreferenceHandler struct {
	repo *repository.PreferenceRepository
}

func NewPreferenceHandler(repo *repository.PreferenceRepository) *PreferenceHandler {
	return &PreferenceHandler{repo: repo}
}

func (h *PreferenceHandler) Get(c *gin.Context) {
	pref, err := h.repo.UserPreference(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if pref == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No notification preference set"})
		return
	}

	c.JSON(http.StatusOK, pref)
}

func (h *PreferenceHandler) Put(c *gin.Context) {
	var pref models.NotificationPreference
	if err := c.ShouldBindJSON(&pref); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pref.UserID = c.Param("id")
	for _, ch := range pref.Channels {
		if _, err := models.ParseChannelType(string(ch.Type)); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if _, err := models.ParseSeverity(string(ch.MinSeverity)); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	if err := h.repo.Save(c.Request.Context(), &pref); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, pref)
}
