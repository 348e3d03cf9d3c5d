package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/elite-business/case-tools-new-sub005/db"
	"github.com/elite-business/case-tools-new-sub005/services"
)

type SLAHandler struct {
	Service *services.SLAService
}

func NewSLAHandler(service *services.SLAService) *SLAHandler {
	return &SLAHandler{Service: service}
}

// GET /sla/policies
func (h *SLAHandler) ListPolicies(c *gin.Context) {
	policies, err := h.Service.ListPolicies()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"policies": policies})
}

// PATCH /sla/policies/:severity
func (h *SLAHandler) UpdatePolicy(c *gin.Context) {
	var req db.UpdateSLAPolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	policy, err := h.Service.UpdatePolicy(c.Param("severity"), req)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, policy)
}
