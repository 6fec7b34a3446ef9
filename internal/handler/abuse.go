package handler

import (
	"net/http"

	"github.com/aman-churiwal/api-sentinel/internal/abuse"
	"github.com/aman-churiwal/api-sentinel/internal/models"
	"github.com/gin-gonic/gin"
)

// AbuseHandler lets trusted upstream services report abuse signals the
// gateway cannot see itself (failed logins, malicious payloads caught by a
// WAF).
type AbuseHandler struct {
	tracker *abuse.Tracker
}

func NewAbuseHandler(tracker *abuse.Tracker) *AbuseHandler {
	return &AbuseHandler{tracker: tracker}
}

func (h *AbuseHandler) Record(c *gin.Context) {
	var req struct {
		IP       string            `json:"ip" binding:"required"`
		Pattern  string            `json:"pattern" binding:"required"`
		Evidence map[string]string `json:"evidence"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.tracker.Record(c.Request.Context(), req.IP, models.AbusePatternType(req.Pattern), req.Evidence); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"message": "Recorded"})
}
