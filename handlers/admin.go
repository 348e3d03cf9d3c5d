package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/elite-business/case-tools-new-sub005/services"
)

type AdminHandler struct {
	Settings     *services.SettingsService
	AlertHistory *services.AlertHistoryService
	Grafana      *services.GrafanaService
}

func NewAdminHandler(settings *services.SettingsService, alertHistory *services.AlertHistoryService, grafana *services.GrafanaService) *AdminHandler {
	return &AdminHandler{Settings: settings, AlertHistory: alertHistory, Grafana: grafana}
}

// GET /admin/settings
func (h *AdminHandler) ListSettings(c *gin.Context) {
	settings, err := h.Settings.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": settings})
}

type updateSettingRequest struct {
	Value string `json:"value" binding:"required"`
}

// PUT /admin/settings/:key
func (h *AdminHandler) UpdateSetting(c *gin.Context) {
	var req updateSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	key := c.Param("key")
	if err := h.Settings.Set(key, req.Value, currentUserID(c)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}

	h.Settings.LogEvent("info", "admin", "setting "+key+" updated", currentUserID(c))
	c.JSON(http.StatusOK, gin.H{"key": key, "value": req.Value})
}

// GET /admin/logs
func (h *AdminHandler) ListLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	logs, err := h.Settings.ListLogs(c.Query("level"), c.Query("source"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs, "total": len(logs)})
}

// GET /admin/alert-history
func (h *AdminHandler) ListAlertHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	alerts, err := h.AlertHistory.List(c.Query("rule_uid"), c.Query("outcome"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts, "total": len(alerts)})
}

// GET /admin/grafana/health
func (h *AdminHandler) GrafanaHealth(c *gin.Context) {
	if h.Grafana == nil || !h.Grafana.IsConfigured() {
		c.JSON(http.StatusOK, gin.H{"configured": false})
		return
	}
	if err := h.Grafana.Health(); err != nil {
		c.JSON(http.StatusOK, gin.H{"configured": true, "healthy": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"configured": true, "healthy": true})
}
