package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/elite-business/case-tools-new-sub005/db"
	"github.com/elite-business/case-tools-new-sub005/services"
)

type ReportHandler struct {
	Service *services.ReportService
}

func NewReportHandler(service *services.ReportService) *ReportHandler {
	return &ReportHandler{Service: service}
}

// GET /reports
func (h *ReportHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	reports, err := h.Service.List(c.Query("type"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": reports, "total": len(reports)})
}

// GET /reports/:id
func (h *ReportHandler) Get(c *gin.Context) {
	report, err := h.Service.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
		return
	}
	c.JSON(http.StatusOK, report)
}

type generateReportRequest struct {
	Type string `json:"type" binding:"required,oneof=daily_summary weekly_summary sla_compliance adhoc"`
	Days int    `json:"days"`
}

// POST /reports
func (h *ReportHandler) Generate(c *gin.Context) {
	var req generateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	days := req.Days
	if days <= 0 {
		switch req.Type {
		case db.ReportTypeWeeklySummary:
			days = 7
		case db.ReportTypeSLACompliance:
			days = 30
		case db.ReportTypeDailySummary, db.ReportTypeAdhoc:
			days = 1
		}
	}

	periodEnd := time.Now().UTC()
	periodStart := periodEnd.AddDate(0, 0, -days)

	var report *db.Report
	var err error
	if req.Type == db.ReportTypeSLACompliance {
		report, err = h.Service.GenerateSLACompliance(periodStart, periodEnd, currentUserID(c))
	} else {
		report, err = h.Service.GenerateSummary(req.Type, periodStart, periodEnd, currentUserID(c))
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, report)
}
