package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/elite-business/case-tools-new-sub005/db"
)

// CaseService owns the case lifecycle: creation, assignment, state
// transitions, audit events and notes.
type CaseService struct {
	PG       *sql.DB
	Redis    *redis.Client
	SLA      *SLAService
	teams    *TeamService
	notifier NotificationSender
}

func NewCaseService(pg *sql.DB, redisClient *redis.Client, sla *SLAService) *CaseService {
	return &CaseService{PG: pg, Redis: redisClient, SLA: sla}
}

// SetNotifier wires the notification queue. Optional, nil disables notifications.
func (s *CaseService) SetNotifier(n NotificationSender) {
	s.notifier = n
}

// SetTeamService wires team lead lookups for escalation. Optional, nil
// leaves escalated cases on their current assignee.
func (s *CaseService) SetTeamService(t *TeamService) {
	s.teams = t
}

// Allowed status transitions. Closed cases can only be reached from resolved,
// and reopening lands back in in_progress.
var caseTransitions = map[string][]string{
	db.CaseStatusNew:          {db.CaseStatusAcknowledged, db.CaseStatusInProgress, db.CaseStatusResolved},
	db.CaseStatusAcknowledged: {db.CaseStatusInProgress, db.CaseStatusPending, db.CaseStatusResolved},
	db.CaseStatusInProgress:   {db.CaseStatusPending, db.CaseStatusResolved},
	db.CaseStatusPending:      {db.CaseStatusInProgress, db.CaseStatusResolved},
	db.CaseStatusResolved:     {db.CaseStatusClosed, db.CaseStatusInProgress},
	db.CaseStatusClosed:       {},
}

func canTransition(from, to string) bool {
	for _, allowed := range caseTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// generateCaseNumber produces CASE-YYYYMMDD-NNNN using a per-day counter row
func (s *CaseService) generateCaseNumber() (string, error) {
	day := time.Now().UTC().Format("20060102")

	var counter int
	err := s.PG.QueryRow(`
		INSERT INTO case_counters (day, counter) VALUES ($1, 1)
		ON CONFLICT (day) DO UPDATE SET counter = case_counters.counter + 1
		RETURNING counter
	`, day).Scan(&counter)
	if err != nil {
		return "", fmt.Errorf("failed to allocate case number: %w", err)
	}
	return fmt.Sprintf("CASE-%s-%04d", day, counter), nil
}

// CreateCase opens a manually created case
func (s *CaseService) CreateCase(req db.CreateCaseRequest, createdBy string) (*db.Case, error) {
	c := &db.Case{
		ID:          uuid.New().String(),
		Title:       req.Title,
		Description: req.Description,
		Status:      db.CaseStatusNew,
		Severity:    req.Severity,
		Priority:    priorityForSeverity(req.Severity),
		Category:    req.Category,
		Source:      db.CaseSourceManual,
		AssignedTo:  req.AssignedTo,
		TeamID:      req.TeamID,
		Labels:      req.Labels,
		AlertCount:  0,
		CreatedBy:   createdBy,
		CreatedAt:   time.Now().UTC(),
	}
	return s.insertCase(c)
}

// CreateFromAlert opens a case from a Grafana webhook alert
func (s *CaseService) CreateFromAlert(c *db.Case) (*db.Case, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.Status = db.CaseStatusNew
	c.Source = db.CaseSourceGrafana
	if c.CreatedBy == "" {
		c.CreatedBy = db.GetSystemUserBySource(c.Source)
	}
	if c.Priority == "" {
		c.Priority = priorityForSeverity(c.Severity)
	}
	if c.AlertCount == 0 {
		c.AlertCount = 1
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	return s.insertCase(c)
}

func (s *CaseService) insertCase(c *db.Case) (*db.Case, error) {
	caseNumber, err := s.generateCaseNumber()
	if err != nil {
		return nil, err
	}
	c.CaseNumber = caseNumber
	c.UpdatedAt = c.CreatedAt

	respDeadline, resDeadline, err := s.SLA.ComputeDeadlines(c.Severity, c.CreatedAt)
	if err != nil {
		log.Printf("Failed to compute SLA deadlines for case %s: %v", c.CaseNumber, err)
	} else {
		c.SLAResponseDeadline = &respDeadline
		c.SLAResolutionDeadline = &resDeadline
	}

	labelsJSON, _ := json.Marshal(c.Labels)
	annotationsJSON, _ := json.Marshal(c.Annotations)

	var assignedAt interface{}
	if c.AssignedTo != "" {
		now := time.Now().UTC()
		c.AssignedAt = &now
		assignedAt = now
	}

	_, err = s.PG.Exec(`
		INSERT INTO cases (
			id, case_number, title, description, status, severity, priority, category, source,
			rule_uid, fingerprint, alert_count, labels, annotations,
			assigned_to, assigned_at, team_id,
			sla_response_deadline, sla_resolution_deadline,
			created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
	`, c.ID, c.CaseNumber, c.Title, nullIfEmptyStr(c.Description), c.Status, c.Severity, c.Priority,
		c.Category, c.Source, nullIfEmptyStr(c.RuleUID), nullIfEmptyStr(c.Fingerprint), c.AlertCount,
		labelsJSON, annotationsJSON, nullIfEmptyStr(c.AssignedTo), assignedAt, nullIfEmptyStr(c.TeamID),
		c.SLAResponseDeadline, c.SLAResolutionDeadline, nullIfEmptyStr(c.CreatedBy), c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert case: %w", err)
	}

	s.recordEvent(c.ID, db.EventCaseCreated, map[string]interface{}{
		"case_number": c.CaseNumber,
		"severity":    c.Severity,
		"source":      c.Source,
	}, c.CreatedBy)

	if c.AssignedTo != "" {
		s.recordEvent(c.ID, db.EventAssigned, map[string]interface{}{
			"assigned_to": c.AssignedTo,
			"team_id":     c.TeamID,
		}, c.CreatedBy)
		s.notifyAssignee(c, c.AssignedTo)
	}

	return c, nil
}

func priorityForSeverity(severity string) string {
	switch severity {
	case db.SeverityCritical:
		return "P1"
	case db.SeverityHigh:
		return "P2"
	case db.SeverityMedium:
		return "P3"
	case db.SeverityLow:
		return "P4"
	default:
		return "P5"
	}
}

const caseColumns = `
	c.id, c.case_number, c.title, COALESCE(c.description, '') as description,
	c.status, c.severity, c.priority, c.category, c.source,
	COALESCE(c.rule_uid, '') as rule_uid, COALESCE(c.fingerprint, '') as fingerprint,
	c.alert_count, c.labels, c.annotations,
	COALESCE(c.assigned_to::text, '') as assigned_to, c.assigned_at, COALESCE(c.team_id::text, '') as team_id,
	COALESCE(c.acknowledged_by::text, '') as acknowledged_by, c.acknowledged_at,
	COALESCE(c.resolved_by::text, '') as resolved_by, c.resolved_at, COALESCE(c.resolution, '') as resolution,
	COALESCE(c.closed_by::text, '') as closed_by, c.closed_at,
	c.sla_response_deadline, c.sla_resolution_deadline,
	c.sla_response_breached, c.sla_resolution_breached, c.escalation_level, c.last_escalated_at,
	COALESCE(c.created_by::text, '') as created_by, c.created_at, c.updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCase(row rowScanner) (*db.Case, error) {
	var c db.Case
	var labelsJSON, annotationsJSON []byte
	var assignedAt, acknowledgedAt, resolvedAt, closedAt sql.NullTime
	var slaResponse, slaResolution, lastEscalated sql.NullTime

	err := row.Scan(
		&c.ID, &c.CaseNumber, &c.Title, &c.Description,
		&c.Status, &c.Severity, &c.Priority, &c.Category, &c.Source,
		&c.RuleUID, &c.Fingerprint,
		&c.AlertCount, &labelsJSON, &annotationsJSON,
		&c.AssignedTo, &assignedAt, &c.TeamID,
		&c.AcknowledgedBy, &acknowledgedAt,
		&c.ResolvedBy, &resolvedAt, &c.Resolution,
		&c.ClosedBy, &closedAt,
		&slaResponse, &slaResolution,
		&c.SLAResponseBreached, &c.SLAResolutionBreached, &c.EscalationLevel, &lastEscalated,
		&c.CreatedBy, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(labelsJSON) > 0 {
		json.Unmarshal(labelsJSON, &c.Labels)
	}
	if len(annotationsJSON) > 0 {
		json.Unmarshal(annotationsJSON, &c.Annotations)
	}
	if assignedAt.Valid {
		c.AssignedAt = &assignedAt.Time
	}
	if acknowledgedAt.Valid {
		c.AcknowledgedAt = &acknowledgedAt.Time
	}
	if resolvedAt.Valid {
		c.ResolvedAt = &resolvedAt.Time
	}
	if closedAt.Valid {
		c.ClosedAt = &closedAt.Time
	}
	if slaResponse.Valid {
		c.SLAResponseDeadline = &slaResponse.Time
	}
	if slaResolution.Valid {
		c.SLAResolutionDeadline = &slaResolution.Time
	}
	if lastEscalated.Valid {
		c.LastEscalatedAt = &lastEscalated.Time
	}
	return &c, nil
}

// GetCase returns a single case with display names, cached in Redis for reads
func (s *CaseService) GetCase(id string) (*db.CaseResponse, error) {
	ctx := context.Background()
	cacheKey := fmt.Sprintf("case:%s", id)

	if s.Redis != nil {
		if cached, err := s.Redis.Get(ctx, cacheKey).Result(); err == nil {
			var resp db.CaseResponse
			if json.Unmarshal([]byte(cached), &resp) == nil {
				return &resp, nil
			}
		}
	}

	query := `
		SELECT ` + caseColumns + `,
		       COALESCE(au.name, '') as assigned_to_name, COALESCE(au.email, '') as assigned_to_email,
		       COALESCE(t.name, '') as team_name,
		       COALESCE(ru.name, '') as resolved_by_name, COALESCE(cu.name, '') as closed_by_name
		FROM cases c
		LEFT JOIN users au ON c.assigned_to = au.id
		LEFT JOIN teams t ON c.team_id = t.id
		LEFT JOIN users ru ON c.resolved_by = ru.id
		LEFT JOIN users cu ON c.closed_by = cu.id
		WHERE c.id = $1
	`

	row := s.PG.QueryRow(query, id)

	var resp db.CaseResponse
	var labelsJSON, annotationsJSON []byte
	var assignedAt, acknowledgedAt, resolvedAt, closedAt sql.NullTime
	var slaResponse, slaResolution, lastEscalated sql.NullTime

	err := row.Scan(
		&resp.ID, &resp.CaseNumber, &resp.Title, &resp.Description,
		&resp.Status, &resp.Severity, &resp.Priority, &resp.Category, &resp.Source,
		&resp.RuleUID, &resp.Fingerprint,
		&resp.AlertCount, &labelsJSON, &annotationsJSON,
		&resp.AssignedTo, &assignedAt, &resp.TeamID,
		&resp.AcknowledgedBy, &acknowledgedAt,
		&resp.ResolvedBy, &resolvedAt, &resp.Resolution,
		&resp.ClosedBy, &closedAt,
		&slaResponse, &slaResolution,
		&resp.SLAResponseBreached, &resp.SLAResolutionBreached, &resp.EscalationLevel, &lastEscalated,
		&resp.CreatedBy, &resp.CreatedAt, &resp.UpdatedAt,
		&resp.AssignedToName, &resp.AssignedToEmail,
		&resp.TeamName,
		&resp.ResolvedByName, &resp.ClosedByName,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("case not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get case: %w", err)
	}

	if len(labelsJSON) > 0 {
		json.Unmarshal(labelsJSON, &resp.Labels)
	}
	if len(annotationsJSON) > 0 {
		json.Unmarshal(annotationsJSON, &resp.Annotations)
	}
	if assignedAt.Valid {
		resp.AssignedAt = &assignedAt.Time
	}
	if acknowledgedAt.Valid {
		resp.AcknowledgedAt = &acknowledgedAt.Time
	}
	if resolvedAt.Valid {
		resp.ResolvedAt = &resolvedAt.Time
	}
	if closedAt.Valid {
		resp.ClosedAt = &closedAt.Time
	}
	if slaResponse.Valid {
		resp.SLAResponseDeadline = &slaResponse.Time
	}
	if slaResolution.Valid {
		resp.SLAResolutionDeadline = &slaResolution.Time
	}
	if lastEscalated.Valid {
		resp.LastEscalatedAt = &lastEscalated.Time
	}

	if s.Redis != nil {
		if data, err := json.Marshal(resp); err == nil {
			s.Redis.Set(ctx, cacheKey, data, 2*time.Minute)
		}
	}

	return &resp, nil
}

// ListCases returns cases matching the filters, newest first, plus the total count
func (s *CaseService) ListCases(filters db.CaseListFilters) ([]db.Case, int, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}
	argIdx := 1

	if filters.Status != "" {
		conditions = append(conditions, fmt.Sprintf("c.status = $%d", argIdx))
		args = append(args, filters.Status)
		argIdx++
	}
	if filters.Severity != "" {
		conditions = append(conditions, fmt.Sprintf("c.severity = $%d", argIdx))
		args = append(args, filters.Severity)
		argIdx++
	}
	if filters.Category != "" {
		conditions = append(conditions, fmt.Sprintf("c.category = $%d", argIdx))
		args = append(args, filters.Category)
		argIdx++
	}
	if filters.AssignedTo != "" {
		conditions = append(conditions, fmt.Sprintf("c.assigned_to = $%d", argIdx))
		args = append(args, filters.AssignedTo)
		argIdx++
	}
	if filters.TeamID != "" {
		conditions = append(conditions, fmt.Sprintf("c.team_id = $%d", argIdx))
		args = append(args, filters.TeamID)
		argIdx++
	}
	if filters.Search != "" {
		conditions = append(conditions, fmt.Sprintf(
			"(LOWER(c.title) LIKE $%d OR LOWER(c.case_number) LIKE $%d)", argIdx, argIdx))
		args = append(args, "%"+strings.ToLower(filters.Search)+"%")
		argIdx++
	}

	where := strings.Join(conditions, " AND ")

	var total int
	countQuery := "SELECT COUNT(*) FROM cases c WHERE " + where
	if err := s.PG.QueryRow(countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count cases: %w", err)
	}

	limit := filters.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filters.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`
		SELECT %s FROM cases c
		WHERE %s
		ORDER BY c.created_at DESC
		LIMIT $%d OFFSET $%d
	`, caseColumns, where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.PG.Query(query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list cases: %w", err)
	}
	defer rows.Close()

	var cases []db.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			log.Printf("Failed to scan case row: %v", err)
			continue
		}
		cases = append(cases, *c)
	}
	return cases, total, nil
}

// UpdateCase applies a partial update. Status changes go through the transition table.
func (s *CaseService) UpdateCase(id string, req db.UpdateCaseRequest, updatedBy string) (*db.CaseResponse, error) {
	current, err := s.GetCase(id)
	if err != nil {
		return nil, err
	}

	setClauses := []string{}
	args := []interface{}{}
	argIdx := 1

	if req.Title != nil {
		setClauses = append(setClauses, fmt.Sprintf("title = $%d", argIdx))
		args = append(args, *req.Title)
		argIdx++
	}
	if req.Description != nil {
		setClauses = append(setClauses, fmt.Sprintf("description = $%d", argIdx))
		args = append(args, nullIfEmptyStr(*req.Description))
		argIdx++
	}
	if req.Severity != nil && *req.Severity != current.Severity {
		respDeadline, resDeadline, derr := s.SLA.ComputeDeadlines(*req.Severity, current.CreatedAt)
		if derr == nil {
			setClauses = append(setClauses, fmt.Sprintf("sla_response_deadline = $%d", argIdx))
			args = append(args, respDeadline)
			argIdx++
			setClauses = append(setClauses, fmt.Sprintf("sla_resolution_deadline = $%d", argIdx))
			args = append(args, resDeadline)
			argIdx++
		}
		setClauses = append(setClauses, fmt.Sprintf("severity = $%d", argIdx))
		args = append(args, *req.Severity)
		argIdx++
		setClauses = append(setClauses, fmt.Sprintf("priority = $%d", argIdx))
		args = append(args, priorityForSeverity(*req.Severity))
		argIdx++
	}
	if req.Category != nil {
		setClauses = append(setClauses, fmt.Sprintf("category = $%d", argIdx))
		args = append(args, *req.Category)
		argIdx++
	}
	if req.Status != nil && *req.Status != current.Status {
		if !canTransition(current.Status, *req.Status) {
			return nil, fmt.Errorf("invalid status transition from %s to %s", current.Status, *req.Status)
		}
		setClauses = append(setClauses, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *req.Status)
		argIdx++
	}

	if len(setClauses) == 0 {
		return current, nil
	}

	setClauses = append(setClauses, "updated_at = NOW()")
	args = append(args, id)

	query := fmt.Sprintf("UPDATE cases SET %s WHERE id = $%d", strings.Join(setClauses, ", "), argIdx)
	if _, err := s.PG.Exec(query, args...); err != nil {
		return nil, fmt.Errorf("failed to update case: %w", err)
	}

	if req.Status != nil && *req.Status != current.Status {
		s.recordEvent(id, db.EventStatusChanged, map[string]interface{}{
			"from": current.Status,
			"to":   *req.Status,
		}, updatedBy)
	}

	s.invalidateCache(id)
	return s.GetCase(id)
}

// Acknowledge marks a new case as seen. Stops the response-SLA clock.
func (s *CaseService) Acknowledge(id, userID string) (*db.CaseResponse, error) {
	result, err := s.PG.Exec(`
		UPDATE cases
		SET status = $1, acknowledged_by = $2, acknowledged_at = NOW(), updated_at = NOW()
		WHERE id = $3 AND status = $4
	`, db.CaseStatusAcknowledged, userID, id, db.CaseStatusNew)
	if err != nil {
		return nil, fmt.Errorf("failed to acknowledge case: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("case not found or not in new status")
	}

	s.recordEvent(id, db.EventAcknowledged, nil, userID)
	s.invalidateCache(id)
	return s.GetCase(id)
}

// Assign sets the case assignee and/or team
func (s *CaseService) Assign(id string, req db.AssignCaseRequest, assignedBy string) (*db.CaseResponse, error) {
	if req.UserID == "" && req.TeamID == "" {
		return nil, fmt.Errorf("user_id or team_id is required")
	}

	current, err := s.GetCase(id)
	if err != nil {
		return nil, err
	}
	if current.Status == db.CaseStatusClosed {
		return nil, fmt.Errorf("cannot assign a closed case")
	}

	_, err = s.PG.Exec(`
		UPDATE cases
		SET assigned_to = COALESCE($1, assigned_to),
		    team_id = COALESCE($2, team_id),
		    assigned_at = NOW(), updated_at = NOW()
		WHERE id = $3
	`, nullIfEmptyStr(req.UserID), nullIfEmptyStr(req.TeamID), id)
	if err != nil {
		return nil, fmt.Errorf("failed to assign case: %w", err)
	}

	s.recordEvent(id, db.EventAssigned, map[string]interface{}{
		"assigned_to": req.UserID,
		"team_id":     req.TeamID,
	}, assignedBy)

	if req.UserID != "" && req.UserID != current.AssignedTo {
		s.notifyAssignee(&current.Case, req.UserID)
	}

	s.invalidateCache(id)
	return s.GetCase(id)
}

// StartProgress moves a case to in_progress
func (s *CaseService) StartProgress(id, userID string) (*db.CaseResponse, error) {
	return s.transition(id, db.CaseStatusInProgress, userID)
}

// SetPending parks a case waiting on an external party
func (s *CaseService) SetPending(id, userID string) (*db.CaseResponse, error) {
	return s.transition(id, db.CaseStatusPending, userID)
}

func (s *CaseService) transition(id, to, userID string) (*db.CaseResponse, error) {
	current, err := s.GetCase(id)
	if err != nil {
		return nil, err
	}
	if !canTransition(current.Status, to) {
		return nil, fmt.Errorf("invalid status transition from %s to %s", current.Status, to)
	}

	_, err = s.PG.Exec(`UPDATE cases SET status = $1, updated_at = NOW() WHERE id = $2`, to, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update case status: %w", err)
	}

	s.recordEvent(id, db.EventStatusChanged, map[string]interface{}{
		"from": current.Status,
		"to":   to,
	}, userID)
	s.invalidateCache(id)
	return s.GetCase(id)
}

// Resolve marks a case resolved with a mandatory resolution summary
func (s *CaseService) Resolve(id string, req db.ResolveCaseRequest, userID string) (*db.CaseResponse, error) {
	current, err := s.GetCase(id)
	if err != nil {
		return nil, err
	}
	if !canTransition(current.Status, db.CaseStatusResolved) {
		return nil, fmt.Errorf("invalid status transition from %s to %s", current.Status, db.CaseStatusResolved)
	}

	_, err = s.PG.Exec(`
		UPDATE cases
		SET status = $1, resolved_by = $2, resolved_at = NOW(), resolution = $3, updated_at = NOW()
		WHERE id = $4
	`, db.CaseStatusResolved, userID, req.Resolution, id)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve case: %w", err)
	}

	s.recordEvent(id, db.EventResolved, map[string]interface{}{
		"resolution": req.Resolution,
	}, userID)

	if req.Note != "" {
		if _, err := s.AddNote(id, db.AddCaseNoteRequest{Note: req.Note}, userID); err != nil {
			log.Printf("Failed to add resolution note for case %s: %v", id, err)
		}
	}

	if current.AssignedTo != "" && current.AssignedTo != userID {
		s.sendNotification(&current.Case, current.AssignedTo, db.NotificationResolved, "medium",
			fmt.Sprintf("Case %s resolved", current.CaseNumber), req.Resolution)
	}

	s.invalidateCache(id)
	return s.GetCase(id)
}

// Close closes a resolved case. Only resolved cases can be closed.
func (s *CaseService) Close(id, userID string) (*db.CaseResponse, error) {
	result, err := s.PG.Exec(`
		UPDATE cases
		SET status = $1, closed_by = $2, closed_at = NOW(), updated_at = NOW()
		WHERE id = $3 AND status = $4
	`, db.CaseStatusClosed, userID, id, db.CaseStatusResolved)
	if err != nil {
		return nil, fmt.Errorf("failed to close case: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("only resolved cases can be closed")
	}

	s.recordEvent(id, db.EventClosed, nil, userID)
	s.invalidateCache(id)
	return s.GetCase(id)
}

// Reopen moves a resolved case back to in_progress
func (s *CaseService) Reopen(id, userID, reason string) (*db.CaseResponse, error) {
	result, err := s.PG.Exec(`
		UPDATE cases
		SET status = $1, resolved_by = NULL, resolved_at = NULL, resolution = NULL, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`, db.CaseStatusInProgress, id, db.CaseStatusResolved)
	if err != nil {
		return nil, fmt.Errorf("failed to reopen case: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("only resolved cases can be reopened")
	}

	s.recordEvent(id, db.EventReopened, map[string]interface{}{
		"reason": reason,
	}, userID)
	s.invalidateCache(id)
	return s.GetCase(id)
}

// Escalate bumps the escalation level and reassigns the case to the team lead
func (s *CaseService) Escalate(id, userID, reason string) (*db.CaseResponse, error) {
	current, err := s.GetCase(id)
	if err != nil {
		return nil, err
	}
	if current.Status == db.CaseStatusResolved || current.Status == db.CaseStatusClosed {
		return nil, fmt.Errorf("cannot escalate a %s case", current.Status)
	}

	leadID := ""
	if s.teams != nil && current.TeamID != "" {
		lead, err := s.teams.GetTeamLead(current.TeamID)
		if err != nil {
			log.Printf("Team lead lookup failed for team %s: %v", current.TeamID, err)
		} else {
			leadID = lead
		}
	}

	_, err = s.PG.Exec(`
		UPDATE cases
		SET escalation_level = escalation_level + 1, last_escalated_at = NOW(),
		    assigned_to = COALESCE(NULLIF($2, '')::uuid, assigned_to),
		    assigned_at = CASE WHEN NULLIF($2, '') IS NULL THEN assigned_at ELSE NOW() END,
		    updated_at = NOW()
		WHERE id = $1
	`, id, leadID)
	if err != nil {
		return nil, fmt.Errorf("failed to escalate case: %w", err)
	}

	eventData := map[string]interface{}{
		"level":  current.EscalationLevel + 1,
		"reason": reason,
	}
	if leadID != "" && leadID != current.AssignedTo {
		eventData["assigned_to"] = leadID
	}
	s.recordEvent(id, db.EventEscalated, eventData, userID)

	if leadID != "" {
		s.sendNotification(&current.Case, leadID, db.NotificationEscalated, "high",
			fmt.Sprintf("Case %s escalated", current.CaseNumber), reason)
	}

	s.invalidateCache(id)
	return s.GetCase(id)
}

// AddNote appends a free-text note and records a note_added event
func (s *CaseService) AddNote(caseID string, req db.AddCaseNoteRequest, userID string) (*db.CaseNote, error) {
	note := &db.CaseNote{
		ID:        uuid.New().String(),
		CaseID:    caseID,
		Note:      req.Note,
		CreatedBy: userID,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.PG.Exec(`
		INSERT INTO case_notes (id, case_id, note, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, note.ID, note.CaseID, note.Note, note.CreatedBy, note.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to add case note: %w", err)
	}

	s.recordEvent(caseID, db.EventNoteAdded, map[string]interface{}{
		"note_id": note.ID,
	}, userID)
	return note, nil
}

// ListNotes returns a case's notes, oldest first
func (s *CaseService) ListNotes(caseID string) ([]db.CaseNote, error) {
	rows, err := s.PG.Query(`
		SELECT n.id, n.case_id, n.note, n.created_by, n.created_at, COALESCE(u.name, '') as created_by_name
		FROM case_notes n
		LEFT JOIN users u ON n.created_by = u.id
		WHERE n.case_id = $1
		ORDER BY n.created_at ASC
	`, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list case notes: %w", err)
	}
	defer rows.Close()

	var notes []db.CaseNote
	for rows.Next() {
		var n db.CaseNote
		if err := rows.Scan(&n.ID, &n.CaseID, &n.Note, &n.CreatedBy, &n.CreatedAt, &n.CreatedByName); err != nil {
			continue
		}
		notes = append(notes, n)
	}
	return notes, nil
}

// ListEvents returns a case's audit trail, oldest first
func (s *CaseService) ListEvents(caseID string) ([]db.CaseEvent, error) {
	rows, err := s.PG.Query(`
		SELECT e.id, e.case_id, e.event_type, e.event_data, COALESCE(e.created_by::text, '') as created_by,
		       e.created_at, COALESCE(u.name, '') as created_by_name
		FROM case_events e
		LEFT JOIN users u ON e.created_by = u.id
		WHERE e.case_id = $1
		ORDER BY e.created_at ASC
	`, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list case events: %w", err)
	}
	defer rows.Close()

	var events []db.CaseEvent
	for rows.Next() {
		var e db.CaseEvent
		var dataJSON []byte
		if err := rows.Scan(&e.ID, &e.CaseID, &e.EventType, &dataJSON, &e.CreatedBy, &e.CreatedAt, &e.CreatedByName); err != nil {
			continue
		}
		if len(dataJSON) > 0 {
			json.Unmarshal(dataJSON, &e.EventData)
		}
		events = append(events, e)
	}
	return events, nil
}

// FindOpenCaseByFingerprint returns the newest non-closed case matching an
// alert fingerprint, or nil when none exists. Used by the dedup path.
func (s *CaseService) FindOpenCaseByFingerprint(fingerprint string) (*db.Case, error) {
	if fingerprint == "" {
		return nil, nil
	}

	query := `
		SELECT ` + caseColumns + `
		FROM cases c
		WHERE c.fingerprint = $1 AND c.status NOT IN ($2, $3)
		ORDER BY c.created_at DESC
		LIMIT 1
	`
	row := s.PG.QueryRow(query, fingerprint, db.CaseStatusResolved, db.CaseStatusClosed)
	c, err := scanCase(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find case by fingerprint: %w", err)
	}
	return c, nil
}

// AppendAlert increments the alert counter on an existing case when a
// duplicate alert arrives inside the dedup window
func (s *CaseService) AppendAlert(caseID string, createdBy string) error {
	_, err := s.PG.Exec(`
		UPDATE cases SET alert_count = alert_count + 1, updated_at = NOW() WHERE id = $1
	`, caseID)
	if err != nil {
		return fmt.Errorf("failed to append alert to case: %w", err)
	}

	s.recordEvent(caseID, db.EventAlertAppended, nil, createdBy)
	s.invalidateCache(caseID)
	return nil
}

// GetStats aggregates case counts for dashboards over the given window
func (s *CaseService) GetStats(since time.Time) (*db.CaseStats, error) {
	var stats db.CaseStats
	err := s.PG.QueryRow(`
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'new'),
			COUNT(*) FILTER (WHERE status = 'acknowledged'),
			COUNT(*) FILTER (WHERE status = 'in_progress'),
			COUNT(*) FILTER (WHERE status = 'resolved'),
			COUNT(*) FILTER (WHERE status = 'closed'),
			COUNT(*) FILTER (WHERE sla_response_breached OR sla_resolution_breached),
			COALESCE(AVG(EXTRACT(EPOCH FROM (resolved_at - created_at)) / 60) FILTER (WHERE resolved_at IS NOT NULL), 0)
		FROM cases
		WHERE created_at >= $1
	`, since).Scan(&stats.Total, &stats.Open, &stats.Acknowledged, &stats.InProgress,
		&stats.Resolved, &stats.Closed, &stats.SLABreached, &stats.AvgResolveMins)
	if err != nil {
		return nil, fmt.Errorf("failed to get case stats: %w", err)
	}
	return &stats, nil
}

// GetTrends returns daily opened/resolved/breached counts for the last N days
func (s *CaseService) GetTrends(days int) ([]db.CaseTrendPoint, error) {
	if days <= 0 || days > 90 {
		days = 14
	}

	rows, err := s.PG.Query(`
		SELECT d.day,
		       COUNT(c.id) FILTER (WHERE c.created_at::date = d.day) as opened,
		       COUNT(c.id) FILTER (WHERE c.resolved_at::date = d.day) as resolved,
		       COUNT(c.id) FILTER (WHERE (c.sla_response_breached OR c.sla_resolution_breached) AND c.created_at::date = d.day) as breached
		FROM generate_series(CURRENT_DATE - ($1 - 1) * INTERVAL '1 day', CURRENT_DATE, INTERVAL '1 day') AS d(day)
		LEFT JOIN cases c ON c.created_at::date = d.day OR c.resolved_at::date = d.day
		GROUP BY d.day
		ORDER BY d.day ASC
	`, days)
	if err != nil {
		return nil, fmt.Errorf("failed to get case trends: %w", err)
	}
	defer rows.Close()

	var points []db.CaseTrendPoint
	for rows.Next() {
		var p db.CaseTrendPoint
		if err := rows.Scan(&p.Day, &p.Opened, &p.Resolved, &p.Breached); err != nil {
			continue
		}
		points = append(points, p)
	}
	return points, nil
}

func (s *CaseService) recordEvent(caseID, eventType string, data map[string]interface{}, createdBy string) {
	var dataJSON []byte
	if data != nil {
		dataJSON, _ = json.Marshal(data)
	}

	_, err := s.PG.Exec(`
		INSERT INTO case_events (id, case_id, event_type, event_data, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`, uuid.New().String(), caseID, eventType, dataJSON, nullIfEmptyStr(createdBy))
	if err != nil {
		log.Printf("Failed to record %s event for case %s: %v", eventType, caseID, err)
	}
}

func (s *CaseService) notifyAssignee(c *db.Case, userID string) {
	s.sendNotification(c, userID, db.NotificationAssigned, notifyPriority(c.Severity),
		fmt.Sprintf("Case %s assigned to you", c.CaseNumber), c.Title)
}

func (s *CaseService) sendNotification(c *db.Case, userID, notifType, priority, title, message string) {
	if s.notifier == nil {
		return
	}
	msg := &NotificationMessage{
		UserID:   userID,
		CaseID:   c.ID,
		Type:     notifType,
		Priority: priority,
		Title:    title,
		Message:  message,
		Data: map[string]interface{}{
			"case_number": c.CaseNumber,
			"severity":    c.Severity,
		},
		CreatedAt: time.Now().UTC(),
	}
	if err := s.notifier.SendCaseNotification(msg); err != nil {
		log.Printf("Failed to queue %s notification for case %s: %v", notifType, c.CaseNumber, err)
	}
}

func notifyPriority(severity string) string {
	switch severity {
	case db.SeverityCritical, db.SeverityHigh:
		return "high"
	case db.SeverityMedium:
		return "medium"
	default:
		return "low"
	}
}

func (s *CaseService) invalidateCache(id string) {
	if s.Redis == nil {
		return
	}
	ctx := context.Background()
	if err := s.Redis.Del(ctx, fmt.Sprintf("case:%s", id)).Err(); err != nil {
		log.Printf("Failed to invalidate cache for case %s: %v", id, err)
	}
}
