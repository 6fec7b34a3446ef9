package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/aman-churiwal/api-sentinel/internal/ipblock"
	"github.com/aman-churiwal/api-sentinel/internal/models"
	"github.com/gin-gonic/gin"
)

type BlockHandler struct {
	registry *ipblock.Registry
}

func NewBlockHandler(registry *ipblock.Registry) *BlockHandler {
	return &BlockHandler{registry: registry}
}

func (h *BlockHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	records, err := h.registry.ListBlocked(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"blocked": records, "count": len(records)})
}

func (h *BlockHandler) Block(c *gin.Context) {
	var req struct {
		IP       string            `json:"ip" binding:"required"`
		Reason   string            `json:"reason" binding:"required"`
		Severity string            `json:"severity"`
		Evidence map[string]string `json:"evidence"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	severity := models.SeverityMedium
	if req.Severity != "" {
		var err error
		severity, err = models.ParseSeverity(req.Severity)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	rec, err := h.registry.Block(c.Request.Context(), req.IP, req.Reason, severity, false, req.Evidence)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, rec)
}

func (h *BlockHandler) Unblock(c *gin.Context) {
	ip := c.Param("ip")

	removed, err := h.registry.Unblock(c.Request.Context(), ip)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, gin.H{"error": "IP is not blocked"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Unblocked", "ip": ip})
}

func (h *BlockHandler) Check(c *gin.Context) {
	ip := c.Param("ip")

	rec, err := h.registry.IsBlocked(c.Request.Context(), ip)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ip": ip, "blocked": rec != nil, "record": rec})
}

func (h *BlockHandler) Whitelist(c *gin.Context) {
	var req struct {
		IP string `json:"ip" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.registry.Whitelist(c.Request.Context(), req.IP); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Whitelisted", "ip": req.IP})
}

func (h *BlockHandler) Unwhitelist(c *gin.Context) {
	ip := c.Param("ip")

	if err := h.registry.RemoveWhitelist(c.Request.Context(), ip); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Removed from whitelist", "ip": ip})
}

func (h *BlockHandler) WhitelistEntries(c *gin.Context) {
	entries, err := h.registry.WhitelistEntries(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"whitelist": entries})
}

func (h *BlockHandler) AuditLog(c *gin.Context) {
	day := time.Now().UTC()
	if q := c.Query("day"); q != "" {
		parsed, err := time.Parse("2006-01-02", q)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "day must be YYYY-MM-DD"})
			return
		}
		day = parsed
	}

	entries, err := h.registry.AuditLog(c.Request.Context(), day)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"day": day.Format("2006-01-02"), "entries": entries})
}
