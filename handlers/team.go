package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/elite-business/case-tools-new-sub005/db"
	"github.com/elite-business/case-tools-new-sub005/services"
)

type TeamHandler struct {
	Service *services.TeamService
}

func NewTeamHandler(service *services.TeamService) *TeamHandler {
	return &TeamHandler{Service: service}
}

// GET /teams
func (h *TeamHandler) ListTeams(c *gin.Context) {
	teams, err := h.Service.ListTeams()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"teams": teams, "total": len(teams)})
}

// POST /teams
func (h *TeamHandler) CreateTeam(c *gin.Context) {
	var req db.CreateTeamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	team, err := h.Service.CreateTeam(req, currentUserID(c))
	if err != nil {
		if strings.Contains(err.Error(), "already exists") {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusCreated, team)
}

// GET /teams/:id
func (h *TeamHandler) GetTeam(c *gin.Context) {
	team, err := h.Service.GetTeam(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "team not found"})
		return
	}
	c.JSON(http.StatusOK, team)
}

// PATCH /teams/:id
func (h *TeamHandler) UpdateTeam(c *gin.Context) {
	var req db.UpdateTeamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	team, err := h.Service.UpdateTeam(c.Param("id"), req)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, team)
}

// DELETE /teams/:id
func (h *TeamHandler) DeleteTeam(c *gin.Context) {
	if err := h.Service.DeleteTeam(c.Param("id")); err != nil {
		if strings.Contains(err.Error(), "not found") {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /teams/:id/members
func (h *TeamHandler) ListMembers(c *gin.Context) {
	members, err := h.Service.GetTeamMembers(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members, "total": len(members)})
}

// POST /teams/:id/members
func (h *TeamHandler) AddMember(c *gin.Context) {
	var req db.AddTeamMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	member, err := h.Service.AddTeamMember(c.Param("id"), req, currentUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, member)
}

// DELETE /teams/:id/members/:user_id
func (h *TeamHandler) RemoveMember(c *gin.Context) {
	if err := h.Service.RemoveTeamMember(c.Param("id"), c.Param("user_id")); err != nil {
		if strings.Contains(err.Error(), "not found") {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.Status(http.StatusNoContent)
}
