package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/elite-business/case-tools-new-sub005/db"
	"github.com/elite-business/case-tools-new-sub005/services"
)

type CaseHandler struct {
	Service      *services.CaseService
	AlertHistory *services.AlertHistoryService
}

func NewCaseHandler(service *services.CaseService, alertHistory *services.AlertHistoryService) *CaseHandler {
	return &CaseHandler{Service: service, AlertHistory: alertHistory}
}

// GET /cases
func (h *CaseHandler) ListCases(c *gin.Context) {
	var filters db.CaseListFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cases, total, err := h.Service.ListCases(filters)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"cases":  cases,
		"total":  total,
		"limit":  filters.Limit,
		"offset": filters.Offset,
	})
}

// POST /cases
func (h *CaseHandler) CreateCase(c *gin.Context) {
	var req db.CreateCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := h.Service.CreateCase(req, currentUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, created)
}

// GET /cases/:id
func (h *CaseHandler) GetCase(c *gin.Context) {
	resp, err := h.Service.GetCase(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "case not found"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// PATCH /cases/:id
func (h *CaseHandler) UpdateCase(c *gin.Context) {
	var req db.UpdateCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := h.Service.UpdateCase(c.Param("id"), req, currentUserID(c))
	if err != nil {
		status := statusForCaseError(err)
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, updated)
}

// POST /cases/:id/acknowledge
func (h *CaseHandler) AcknowledgeCase(c *gin.Context) {
	resp, err := h.Service.Acknowledge(c.Param("id"), currentUserID(c))
	if err != nil {
		c.JSON(statusForCaseError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// POST /cases/:id/assign
func (h *CaseHandler) AssignCase(c *gin.Context) {
	var req db.AssignCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.Service.Assign(c.Param("id"), req, currentUserID(c))
	if err != nil {
		c.JSON(statusForCaseError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// POST /cases/:id/start
func (h *CaseHandler) StartProgress(c *gin.Context) {
	resp, err := h.Service.StartProgress(c.Param("id"), currentUserID(c))
	if err != nil {
		c.JSON(statusForCaseError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// POST /cases/:id/pending
func (h *CaseHandler) SetPending(c *gin.Context) {
	resp, err := h.Service.SetPending(c.Param("id"), currentUserID(c))
	if err != nil {
		c.JSON(statusForCaseError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// POST /cases/:id/resolve
func (h *CaseHandler) ResolveCase(c *gin.Context) {
	var req db.ResolveCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.Service.Resolve(c.Param("id"), req, currentUserID(c))
	if err != nil {
		c.JSON(statusForCaseError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// POST /cases/:id/close
func (h *CaseHandler) CloseCase(c *gin.Context) {
	resp, err := h.Service.Close(c.Param("id"), currentUserID(c))
	if err != nil {
		c.JSON(statusForCaseError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

type reopenRequest struct {
	Reason string `json:"reason"`
}

// POST /cases/:id/reopen
func (h *CaseHandler) ReopenCase(c *gin.Context) {
	var req reopenRequest
	c.ShouldBindJSON(&req)

	resp, err := h.Service.Reopen(c.Param("id"), currentUserID(c), req.Reason)
	if err != nil {
		c.JSON(statusForCaseError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

type escalateRequest struct {
	Reason string `json:"reason"`
}

// POST /cases/:id/escalate
func (h *CaseHandler) EscalateCase(c *gin.Context) {
	var req escalateRequest
	c.ShouldBindJSON(&req)

	resp, err := h.Service.Escalate(c.Param("id"), currentUserID(c), req.Reason)
	if err != nil {
		c.JSON(statusForCaseError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// POST /cases/:id/notes
func (h *CaseHandler) AddNote(c *gin.Context) {
	var req db.AddCaseNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	note, err := h.Service.AddNote(c.Param("id"), req, currentUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusCreated, note)
}

// GET /cases/:id/notes
func (h *CaseHandler) ListNotes(c *gin.Context) {
	notes, err := h.Service.ListNotes(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"notes": notes, "total": len(notes)})
}

// GET /cases/:id/events
func (h *CaseHandler) ListEvents(c *gin.Context) {
	events, err := h.Service.ListEvents(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "total": len(events)})
}

// GET /cases/:id/alerts
func (h *CaseHandler) ListCaseAlerts(c *gin.Context) {
	alerts, err := h.AlertHistory.ListForCase(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts, "total": len(alerts)})
}

// GET /cases/stats?days=7
func (h *CaseHandler) GetStats(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "7"))
	if days <= 0 || days > 365 {
		days = 7
	}

	stats, err := h.Service.GetStats(time.Now().UTC().AddDate(0, 0, -days))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GET /cases/trends?days=14
func (h *CaseHandler) GetTrends(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "14"))

	points, err := h.Service.GetTrends(days)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trends": points})
}

func statusForCaseError(err error) int {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "not found"):
		return http.StatusNotFound
	case strings.Contains(msg, "invalid status transition"),
		strings.Contains(msg, "only resolved cases"),
		strings.Contains(msg, "cannot"):
		return http.StatusConflict
	case strings.Contains(msg, "required"):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
