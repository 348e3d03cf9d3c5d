package router

import (
	"database/sql"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"

	"github.com/elite-business/case-tools-new-sub005/db"
	"github.com/elite-business/case-tools-new-sub005/handlers"
	"github.com/elite-business/case-tools-new-sub005/internal/config"
	"github.com/elite-business/case-tools-new-sub005/services"
)

func NewGinRouter(pg *sql.DB, redisClient *redis.Client) *gin.Engine {
	r := gin.Default()

	// Add CORS middleware
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Grafana-Signature")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, PATCH, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Initialize services
	authService := services.NewAuthService(pg, config.App.JWTSecret)
	userService := services.NewUserService(pg, redisClient)
	teamService := services.NewTeamService(pg)
	slaService := services.NewSLAService(pg)
	settingsService := services.NewSettingsService(pg)
	caseService := services.NewCaseService(pg, redisClient, slaService)
	assignmentService := services.NewAssignmentService(pg, redisClient)
	ruleAssignmentService := services.NewRuleAssignmentService(pg)
	alertHistoryService := services.NewAlertHistoryService(pg)
	dedupService := services.NewDedupService(redisClient, settingsService, config.App.DedupWindowSeconds)
	notificationService := services.NewNotificationService(pg)
	reportService := services.NewReportService(pg, caseService)
	grafanaService := services.NewGrafanaService(pg, config.App.Grafana.URL, config.App.Grafana.APIToken, strconv.Itoa(config.App.Grafana.OrgID))

	if err := notificationService.CreateQueueIfNotExists(); err != nil {
		log.Printf("Warning: failed to create notification queue: %v", err)
	}
	caseService.SetNotifier(notificationService)
	caseService.SetTeamService(teamService)
	ruleAssignmentService.SetSettings(settingsService)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService, userService)
	userHandler := handlers.NewUserHandler(userService)
	teamHandler := handlers.NewTeamHandler(teamService)
	caseHandler := handlers.NewCaseHandler(caseService, alertHistoryService)
	ruleAssignmentHandler := handlers.NewRuleAssignmentHandler(ruleAssignmentService, grafanaService)
	notificationHandler := handlers.NewNotificationHandler(notificationService)
	slaHandler := handlers.NewSLAHandler(slaService)
	reportHandler := handlers.NewReportHandler(reportService)
	adminHandler := handlers.NewAdminHandler(settingsService, alertHistoryService, grafanaService)
	webhookHandler := handlers.NewWebhookHandler(caseService, ruleAssignmentService, assignmentService,
		alertHistoryService, dedupService, grafanaService, config.App.WebhookSecret, config.App.DefaultTeamID)

	// Public endpoints
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.POST("/auth/login", authHandler.Login)
	r.POST("/webhook/grafana", webhookHandler.ReceiveGrafanaWebhook)
	r.POST("/webhook/grafana/:rule_uid", webhookHandler.ReceiveGrafanaWebhook)

	// Authenticated API
	api := r.Group("/api/v1")
	api.Use(handlers.AuthMiddleware(authService))
	{
		api.GET("/auth/me", authHandler.Me)
		api.POST("/auth/register", handlers.RequireRole(db.RoleAdmin), authHandler.Register)

		cases := api.Group("/cases")
		{
			cases.GET("", caseHandler.ListCases)
			cases.GET("/stats", caseHandler.GetStats)
			cases.GET("/trends", caseHandler.GetTrends)
			cases.POST("", handlers.RequireRole(db.RoleManager, db.RoleAnalyst), caseHandler.CreateCase)
			cases.GET("/:id", caseHandler.GetCase)
			cases.PATCH("/:id", handlers.RequireRole(db.RoleManager, db.RoleAnalyst), caseHandler.UpdateCase)
			cases.POST("/:id/acknowledge", handlers.RequireRole(db.RoleManager, db.RoleAnalyst), caseHandler.AcknowledgeCase)
			cases.POST("/:id/assign", handlers.RequireRole(db.RoleManager, db.RoleAnalyst), caseHandler.AssignCase)
			cases.POST("/:id/start", handlers.RequireRole(db.RoleManager, db.RoleAnalyst), caseHandler.StartProgress)
			cases.POST("/:id/pending", handlers.RequireRole(db.RoleManager, db.RoleAnalyst), caseHandler.SetPending)
			cases.POST("/:id/resolve", handlers.RequireRole(db.RoleManager, db.RoleAnalyst), caseHandler.ResolveCase)
			cases.POST("/:id/close", handlers.RequireRole(db.RoleManager, db.RoleAnalyst), caseHandler.CloseCase)
			cases.POST("/:id/reopen", handlers.RequireRole(db.RoleManager, db.RoleAnalyst), caseHandler.ReopenCase)
			cases.POST("/:id/escalate", handlers.RequireRole(db.RoleManager, db.RoleAnalyst), caseHandler.EscalateCase)
			cases.POST("/:id/notes", handlers.RequireRole(db.RoleManager, db.RoleAnalyst), caseHandler.AddNote)
			cases.GET("/:id/notes", caseHandler.ListNotes)
			cases.GET("/:id/events", caseHandler.ListEvents)
			cases.GET("/:id/alerts", caseHandler.ListCaseAlerts)
		}

		teams := api.Group("/teams")
		{
			teams.GET("", teamHandler.ListTeams)
			teams.POST("", handlers.RequireRole(db.RoleManager), teamHandler.CreateTeam)
			teams.GET("/:id", teamHandler.GetTeam)
			teams.PATCH("/:id", handlers.RequireRole(db.RoleManager), teamHandler.UpdateTeam)
			teams.DELETE("/:id", handlers.RequireRole(), teamHandler.DeleteTeam)
			teams.GET("/:id/members", teamHandler.ListMembers)
			teams.POST("/:id/members", handlers.RequireRole(db.RoleManager), teamHandler.AddMember)
			teams.DELETE("/:id/members/:user_id", handlers.RequireRole(db.RoleManager), teamHandler.RemoveMember)
		}

		users := api.Group("/users")
		{
			users.GET("", userHandler.ListUsers)
			users.GET("/:id", userHandler.GetUser)
			users.PATCH("/:id", handlers.RequireRole(), userHandler.UpdateUser)
			users.DELETE("/:id", handlers.RequireRole(), userHandler.DeactivateUser)
		}

		rules := api.Group("/rule-assignments")
		{
			rules.GET("", ruleAssignmentHandler.List)
			rules.GET("/rules", ruleAssignmentHandler.ListGrafanaRules)
			rules.POST("", handlers.RequireRole(db.RoleManager), ruleAssignmentHandler.Create)
			rules.POST("/sync", handlers.RequireRole(db.RoleManager), ruleAssignmentHandler.SyncFromGrafana)
			rules.GET("/:id", ruleAssignmentHandler.Get)
			rules.PATCH("/:id", handlers.RequireRole(db.RoleManager), ruleAssignmentHandler.Update)
			rules.DELETE("/:id", handlers.RequireRole(db.RoleManager), ruleAssignmentHandler.Delete)
		}

		notifications := api.Group("/notifications")
		{
			notifications.GET("", notificationHandler.List)
			notifications.GET("/unread-count", notificationHandler.UnreadCount)
			notifications.POST("/read-all", notificationHandler.MarkAllRead)
			notifications.POST("/:id/read", notificationHandler.MarkRead)
		}

		sla := api.Group("/sla")
		{
			sla.GET("/policies", slaHandler.ListPolicies)
			sla.PATCH("/policies/:severity", handlers.RequireRole(), slaHandler.UpdatePolicy)
		}

		reports := api.Group("/reports")
		{
			reports.GET("", reportHandler.List)
			reports.GET("/:id", reportHandler.Get)
			reports.POST("", handlers.RequireRole(db.RoleManager), reportHandler.Generate)
		}

		admin := api.Group("/admin")
		admin.Use(handlers.RequireRole())
		{
			admin.GET("/settings", adminHandler.ListSettings)
			admin.PUT("/settings/:key", adminHandler.UpdateSetting)
			admin.GET("/logs", adminHandler.ListLogs)
			admin.GET("/alert-history", adminHandler.ListAlertHistory)
			admin.GET("/grafana/health", adminHandler.GrafanaHealth)
		}
	}

	return r
}
