package db

import "time"

// ===========================
// CASE MODELS
// ===========================

// Case represents a revenue-assurance case opened from a Grafana alert or manually
type Case struct {
	ID          string `json:"id"`
	CaseNumber  string `json:"case_number"` // CASE-YYYYMMDD-NNNN
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`   // new, acknowledged, in_progress, pending, resolved, closed
	Severity    string `json:"severity"` // critical, high, medium, low, info
	Priority    string `json:"priority"` // P1-P5
	Category    string `json:"category"` // billing, fraud, interconnect, roaming, usage, other
	Source      string `json:"source"`   // grafana, manual, api

	// Alert linkage
	RuleUID     string                 `json:"rule_uid,omitempty"`
	Fingerprint string                 `json:"fingerprint,omitempty"` // For deduplication
	AlertCount  int                    `json:"alert_count"`
	Labels      map[string]interface{} `json:"labels,omitempty"`
	Annotations map[string]interface{} `json:"annotations,omitempty"`

	// Assignment
	AssignedTo string     `json:"assigned_to,omitempty"` // User ID
	AssignedAt *time.Time `json:"assigned_at,omitempty"`
	TeamID     string     `json:"team_id,omitempty"`

	// Lifecycle
	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	ResolvedBy     string     `json:"resolved_by,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	Resolution     string     `json:"resolution,omitempty"`
	ClosedBy       string     `json:"closed_by,omitempty"`
	ClosedAt       *time.Time `json:"closed_at,omitempty"`

	// SLA tracking
	SLAResponseDeadline   *time.Time `json:"sla_response_deadline,omitempty"`
	SLAResolutionDeadline *time.Time `json:"sla_resolution_deadline,omitempty"`
	SLAResponseBreached   bool       `json:"sla_response_breached"`
	SLAResolutionBreached bool       `json:"sla_resolution_breached"`
	EscalationLevel       int        `json:"escalation_level"`
	LastEscalatedAt       *time.Time `json:"last_escalated_at,omitempty"`

	// Metadata
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CaseResponse includes user/team display names for API responses
type CaseResponse struct {
	Case
	AssignedToName  string `json:"assigned_to_name,omitempty"`
	AssignedToEmail string `json:"assigned_to_email,omitempty"`
	TeamName        string `json:"team_name,omitempty"`
	ResolvedByName  string `json:"resolved_by_name,omitempty"`
	ClosedByName    string `json:"closed_by_name,omitempty"`
}

// CaseEvent is an append-only audit entry for a case
type CaseEvent struct {
	ID        string                 `json:"id"`
	CaseID    string                 `json:"case_id"`
	EventType string                 `json:"event_type"` // created, acknowledged, assigned, status_changed, escalated, note_added, resolved, closed, reopened, sla_breached, alert_appended
	EventData map[string]interface{} `json:"event_data,omitempty"`
	CreatedBy string                 `json:"created_by,omitempty"`
	CreatedAt time.Time              `json:"created_at"`

	// Display info
	CreatedByName string `json:"created_by_name,omitempty"`
}

// CaseNote is a free-text note on a case
type CaseNote struct {
	ID        string    `json:"id"`
	CaseID    string    `json:"case_id"`
	Note      string    `json:"note"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`

	CreatedByName string `json:"created_by_name,omitempty"`
}

// Case request/response DTOs
type CreateCaseRequest struct {
	Title       string                 `json:"title" binding:"required"`
	Description string                 `json:"description"`
	Severity    string                 `json:"severity" binding:"required,oneof=critical high medium low info"`
	Category    string                 `json:"category" binding:"required,oneof=billing fraud interconnect roaming usage other"`
	AssignedTo  string                 `json:"assigned_to,omitempty"`
	TeamID      string                 `json:"team_id,omitempty"`
	Labels      map[string]interface{} `json:"labels,omitempty"`
}

type UpdateCaseRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Severity    *string `json:"severity,omitempty" binding:"omitempty,oneof=critical high medium low info"`
	Category    *string `json:"category,omitempty" binding:"omitempty,oneof=billing fraud interconnect roaming usage other"`
	Status      *string `json:"status,omitempty"`
}

type AssignCaseRequest struct {
	UserID string `json:"user_id,omitempty"`
	TeamID string `json:"team_id,omitempty"`
}

type ResolveCaseRequest struct {
	Resolution string `json:"resolution" binding:"required"`
	Note       string `json:"note,omitempty"`
}

type AddCaseNoteRequest struct {
	Note string `json:"note" binding:"required"`
}

type CaseListFilters struct {
	Status     string `form:"status"`
	Severity   string `form:"severity"`
	Category   string `form:"category"`
	AssignedTo string `form:"assigned_to"`
	TeamID     string `form:"team_id"`
	Search     string `form:"search"`
	Limit      int    `form:"limit"`
	Offset     int    `form:"offset"`
}

// CaseStats aggregates counts for the dashboard
type CaseStats struct {
	Total          int     `json:"total"`
	Open           int     `json:"open"`
	Acknowledged   int     `json:"acknowledged"`
	InProgress     int     `json:"in_progress"`
	Resolved       int     `json:"resolved"`
	Closed         int     `json:"closed"`
	SLABreached    int     `json:"sla_breached"`
	AvgResolveMins float64 `json:"avg_resolve_minutes"`
}

// CaseTrendPoint is a single day in the trends chart
type CaseTrendPoint struct {
	Day      time.Time `json:"day"`
	Opened   int       `json:"opened"`
	Resolved int       `json:"resolved"`
	Breached int       `json:"breached"`
}

// Case status constants
const (
	CaseStatusNew          = "new"
	CaseStatusAcknowledged = "acknowledged"
	CaseStatusInProgress   = "in_progress"
	CaseStatusPending      = "pending"
	CaseStatusResolved     = "resolved"
	CaseStatusClosed       = "closed"
)

// Case severity constants
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
	SeverityInfo     = "info"
)

// Case source constants
const (
	CaseSourceGrafana = "grafana"
	CaseSourceManual  = "manual"
	CaseSourceAPI     = "api"
)

// Case event type constants
const (
	EventCaseCreated   = "created"
	EventAcknowledged  = "acknowledged"
	EventAssigned      = "assigned"
	EventStatusChanged = "status_changed"
	EventEscalated     = "escalated"
	EventNoteAdded     = "note_added"
	EventResolved      = "resolved"
	EventClosed        = "closed"
	EventReopened      = "reopened"
	EventSLABreached   = "sla_breached"
	EventAlertAppended = "alert_appended"
)

// ===========================
// RULE ASSIGNMENT MODELS
// ===========================

// RuleAssignment maps a Grafana alert rule to the team/user responsible for its cases
type RuleAssignment struct {
	ID       string `json:"id"`
	RuleUID  string `json:"rule_uid"`
	RuleName string `json:"rule_name,omitempty"`

	TeamID   string `json:"team_id,omitempty"`
	UserID   string `json:"user_id,omitempty"`
	Strategy string `json:"strategy"` // direct, round_robin, least_loaded

	// Overrides applied to cases created from this rule
	SeverityOverride string `json:"severity_override,omitempty"`
	CategoryOverride string `json:"category_override,omitempty"`

	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedBy string    `json:"created_by,omitempty"`

	// Display info (populated via JOINs)
	TeamName string `json:"team_name,omitempty"`
	UserName string `json:"user_name,omitempty"`
}

type CreateRuleAssignmentRequest struct {
	RuleUID          string `json:"rule_uid" binding:"required"`
	RuleName         string `json:"rule_name"`
	TeamID           string `json:"team_id,omitempty"`
	UserID           string `json:"user_id,omitempty"`
	Strategy         string `json:"strategy" binding:"omitempty,oneof=direct round_robin least_loaded"`
	SeverityOverride string `json:"severity_override,omitempty" binding:"omitempty,oneof=critical high medium low info"`
	CategoryOverride string `json:"category_override,omitempty"`
}

type UpdateRuleAssignmentRequest struct {
	RuleName         *string `json:"rule_name,omitempty"`
	TeamID           *string `json:"team_id,omitempty"`
	UserID           *string `json:"user_id,omitempty"`
	Strategy         *string `json:"strategy,omitempty" binding:"omitempty,oneof=direct round_robin least_loaded"`
	SeverityOverride *string `json:"severity_override,omitempty"`
	CategoryOverride *string `json:"category_override,omitempty"`
	IsActive         *bool   `json:"is_active,omitempty"`
}

// Assignment strategy constants
const (
	StrategyDirect      = "direct"
	StrategyRoundRobin  = "round_robin"
	StrategyLeastLoaded = "least_loaded"
)

// ===========================
// TEAM AND USER MODELS
// ===========================

// Team represents a revenue-assurance team
type Team struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	LeadUserID  string    `json:"lead_user_id,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	CreatedBy   string    `json:"created_by,omitempty"`

	MemberCount  int    `json:"member_count,omitempty"`
	LeadUserName string `json:"lead_user_name,omitempty"`
}

// TeamMember represents a user's membership in a team
type TeamMember struct {
	ID            string    `json:"id"`
	TeamID        string    `json:"team_id"`
	UserID        string    `json:"user_id"`
	Role          string    `json:"role"`           // member, lead
	RotationOrder int       `json:"rotation_order"` // Position for round-robin assignment
	IsActive      bool      `json:"is_active"`
	AddedAt       time.Time `json:"added_at"`
	AddedBy       string    `json:"added_by,omitempty"`

	UserName  string `json:"user_name,omitempty"`
	UserEmail string `json:"user_email,omitempty"`
}

type CreateTeamRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	LeadUserID  string `json:"lead_user_id,omitempty"`
}

type UpdateTeamRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	LeadUserID  *string `json:"lead_user_id,omitempty"`
	IsActive    *bool   `json:"is_active,omitempty"`
}

type AddTeamMemberRequest struct {
	UserID        string `json:"user_id" binding:"required"`
	Role          string `json:"role,omitempty" binding:"omitempty,oneof=member lead"`
	RotationOrder int    `json:"rotation_order,omitempty"`
}

const (
	TeamRoleMember = "member"
	TeamRoleLead   = "lead"
)

// User represents a CaseTools user
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone,omitempty"`
	Role         string    `json:"role"` // admin, manager, analyst, viewer
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type CreateUserRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Phone    string `json:"phone"`
	Role     string `json:"role" binding:"required,oneof=admin manager analyst viewer"`
	Password string `json:"password" binding:"required,min=8"`
}

type UpdateUserRequest struct {
	Name     *string `json:"name,omitempty"`
	Phone    *string `json:"phone,omitempty"`
	Role     *string `json:"role,omitempty" binding:"omitempty,oneof=admin manager analyst viewer"`
	IsActive *bool   `json:"is_active,omitempty"`
}

// User role constants
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleAnalyst = "analyst"
	RoleViewer  = "viewer"
)

// ===========================
// NOTIFICATION MODELS
// ===========================

// Notification is an in-app notification record for a user
type Notification struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	CaseID   string `json:"case_id,omitempty"`
	Type     string `json:"type"`     // assigned, escalated, resolved, sla_breach, mention
	Priority string `json:"priority"` // high, medium, low
	Title    string `json:"title"`
	Message  string `json:"message"`
	IsRead   bool   `json:"is_read"`
	Status   string `json:"status"` // pending, delivered, failed

	CreatedAt time.Time  `json:"created_at"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
}

// Notification type constants
const (
	NotificationAssigned  = "assigned"
	NotificationEscalated = "escalated"
	NotificationResolved  = "resolved"
	NotificationSLABreach = "sla_breach"
)

const (
	NotificationStatusDelivered = "delivered"
	NotificationStatusFailed    = "failed"
)

// ===========================
// ALERT HISTORY MODELS
// ===========================

// AlertHistory records every webhook alert received, whatever its outcome
type AlertHistory struct {
	ID          string                 `json:"id"`
	RuleUID     string                 `json:"rule_uid,omitempty"`
	RuleName    string                 `json:"rule_name,omitempty"`
	Fingerprint string                 `json:"fingerprint"`
	Status      string                 `json:"status"` // firing, resolved
	Severity    string                 `json:"severity"`
	Labels      map[string]interface{} `json:"labels,omitempty"`
	Annotations map[string]interface{} `json:"annotations,omitempty"`
	StartsAt    time.Time              `json:"starts_at"`
	EndsAt      *time.Time             `json:"ends_at,omitempty"`
	CaseID      string                 `json:"case_id,omitempty"`  // Case this alert opened or matched
	Outcome     string                 `json:"outcome"`            // case_created, deduplicated, case_resolved, unmatched
	ReceivedAt  time.Time              `json:"received_at"`
}

// Alert outcome constants
const (
	AlertOutcomeCaseCreated  = "case_created"
	AlertOutcomeDeduplicated = "deduplicated"
	AlertOutcomeCaseResolved = "case_resolved"
	AlertOutcomeUnmatched    = "unmatched"
)

// ===========================
// SLA MODELS
// ===========================

// SLAPolicy defines response/resolution targets per severity tier
type SLAPolicy struct {
	ID                string    `json:"id"`
	Severity          string    `json:"severity"`
	ResponseMinutes   int       `json:"response_minutes"`
	ResolutionMinutes int       `json:"resolution_minutes"`
	IsActive          bool      `json:"is_active"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type UpdateSLAPolicyRequest struct {
	ResponseMinutes   *int  `json:"response_minutes,omitempty" binding:"omitempty,min=1,max=10080"`
	ResolutionMinutes *int  `json:"resolution_minutes,omitempty" binding:"omitempty,min=1,max=43200"`
	IsActive          *bool `json:"is_active,omitempty"`
}

// ===========================
// ADMIN MODELS
// ===========================

// SystemSetting is a persisted key/value setting
type SystemSetting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
	UpdatedBy string    `json:"updated_by,omitempty"`
}

// Well-known setting keys
const (
	SettingDedupWindowSeconds = "dedup_window_seconds"
	SettingDefaultStrategy    = "default_assignment_strategy"
)

// SystemLog is a structured audit/api log row
type SystemLog struct {
	ID        string    `json:"id"`
	Level     string    `json:"level"` // info, warning, error
	Source    string    `json:"source"`
	Message   string    `json:"message"`
	UserID    string    `json:"user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ===========================
// REPORT MODELS
// ===========================

// Report is a generated reporting snapshot
type Report struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Type        string                 `json:"type"`   // daily_summary, weekly_summary, sla_compliance, adhoc
	PeriodStart time.Time              `json:"period_start"`
	PeriodEnd   time.Time              `json:"period_end"`
	Data        map[string]interface{} `json:"data"`
	GeneratedAt time.Time              `json:"generated_at"`
	GeneratedBy string                 `json:"generated_by,omitempty"` // empty for scheduled reports
}

const (
	ReportTypeDailySummary  = "daily_summary"
	ReportTypeWeeklySummary = "weekly_summary"
	ReportTypeSLACompliance = "sla_compliance"
	ReportTypeAdhoc         = "adhoc"
)
