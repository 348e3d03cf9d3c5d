package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/elite-business/case-tools-new-sub005/db"
	"github.com/elite-business/case-tools-new-sub005/services"
)

type RuleAssignmentHandler struct {
	Service *services.RuleAssignmentService
	Grafana *services.GrafanaService
}

func NewRuleAssignmentHandler(service *services.RuleAssignmentService, grafana *services.GrafanaService) *RuleAssignmentHandler {
	return &RuleAssignmentHandler{Service: service, Grafana: grafana}
}

// GET /rule-assignments
func (h *RuleAssignmentHandler) List(c *gin.Context) {
	activeOnly := c.Query("active") == "true"
	assignments, err := h.Service.List(activeOnly)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rule_assignments": assignments, "total": len(assignments)})
}

// POST /rule-assignments
func (h *RuleAssignmentHandler) Create(c *gin.Context) {
	var req db.CreateRuleAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ra, err := h.Service.Create(req, currentUserID(c))
	if err != nil {
		msg := err.Error()
		switch {
		case strings.Contains(msg, "already has"):
			c.JSON(http.StatusConflict, gin.H{"error": msg})
		case strings.Contains(msg, "required"), strings.Contains(msg, "requires"):
			c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		}
		return
	}
	c.JSON(http.StatusCreated, ra)
}

// GET /rule-assignments/:id
func (h *RuleAssignmentHandler) Get(c *gin.Context) {
	ra, err := h.Service.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "rule assignment not found"})
		return
	}
	c.JSON(http.StatusOK, ra)
}

// PATCH /rule-assignments/:id
func (h *RuleAssignmentHandler) Update(c *gin.Context) {
	var req db.UpdateRuleAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ra, err := h.Service.Update(c.Param("id"), req)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, ra)
}

// DELETE /rule-assignments/:id
func (h *RuleAssignmentHandler) Delete(c *gin.Context) {
	if err := h.Service.Delete(c.Param("id")); err != nil {
		if strings.Contains(err.Error(), "not found") {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /rule-assignments/sync refreshes rule names from the Grafana API
func (h *RuleAssignmentHandler) SyncFromGrafana(c *gin.Context) {
	if h.Grafana == nil || !h.Grafana.IsConfigured() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "grafana API not configured"})
		return
	}

	updated, err := h.Grafana.SyncRuleNames()
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

// GET /rule-assignments/rules lists alert rules available in Grafana
func (h *RuleAssignmentHandler) ListGrafanaRules(c *gin.Context) {
	if h.Grafana == nil || !h.Grafana.IsConfigured() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "grafana API not configured"})
		return
	}

	rules, err := h.Grafana.ListAlertRules()
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rules": rules, "total": len(rules)})
}
