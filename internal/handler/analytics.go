package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/aman-churiwal/api-sentinel/internal/analytics"
	"github.com/aman-churiwal/api-sentinel/internal/breach"
	"github.com/gin-gonic/gin"
)

// Read-time aggregation is proportional to the metric volume in the window,
// so the admin API refuses unbounded windows.
const maxAnalyticsWindow = 7 * 24 * time.Hour

type AnalyticsHandler struct {
	aggregator *analytics.Aggregator
	breaches   *breach.Classifier
}

func NewAnalyticsHandler(aggregator *analytics.Aggregator, breaches *breach.Classifier) *AnalyticsHandler {
	return &AnalyticsHandler{aggregator: aggregator, breaches: breaches}
}

func (h *AnalyticsHandler) Summary(c *gin.Context) {
	window := time.Hour
	if q := c.Query("window"); q != "" {
		parsed, err := time.ParseDuration(q)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "window must be a positive duration like 15m or 24h"})
			return
		}
		window = parsed
	}
	if window > maxAnalyticsWindow {
		c.JSON(http.StatusBadRequest, gin.H{"error": "window too large"})
		return
	}

	summary, err := h.aggregator.GetAnalytics(c.Request.Context(), window)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (h *AnalyticsHandler) BreachHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	breaches, err := h.breaches.GetBreachHistory(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"breaches": breaches, "count": len(breaches)})
}
