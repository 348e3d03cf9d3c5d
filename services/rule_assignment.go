package services

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/elite-business/case-tools-new-sub005/db"
)

// RuleAssignmentService maps Grafana alert rules to responsible teams/users
type RuleAssignmentService struct {
	PG       *sql.DB
	settings *SettingsService
}

func NewRuleAssignmentService(pg *sql.DB) *RuleAssignmentService {
	return &RuleAssignmentService{PG: pg}
}

// SetSettings wires the admin setting that picks the default team strategy
func (s *RuleAssignmentService) SetSettings(settings *SettingsService) {
	s.settings = settings
}

func (s *RuleAssignmentService) defaultTeamStrategy() string {
	if s.settings != nil {
		return s.settings.GetString(db.SettingDefaultStrategy, db.StrategyRoundRobin)
	}
	return db.StrategyRoundRobin
}

const ruleAssignmentColumns = `
	ra.id, ra.rule_uid, COALESCE(ra.rule_name, '') as rule_name,
	COALESCE(ra.team_id::text, '') as team_id, COALESCE(ra.user_id::text, '') as user_id, ra.strategy,
	COALESCE(ra.severity_override, '') as severity_override, COALESCE(ra.category_override, '') as category_override,
	ra.is_active, ra.created_at, ra.updated_at, COALESCE(ra.created_by::text, '') as created_by,
	COALESCE(t.name, '') as team_name, COALESCE(u.name, '') as user_name`

func scanRuleAssignment(row rowScanner) (*db.RuleAssignment, error) {
	var ra db.RuleAssignment
	err := row.Scan(&ra.ID, &ra.RuleUID, &ra.RuleName,
		&ra.TeamID, &ra.UserID, &ra.Strategy,
		&ra.SeverityOverride, &ra.CategoryOverride,
		&ra.IsActive, &ra.CreatedAt, &ra.UpdatedAt, &ra.CreatedBy,
		&ra.TeamName, &ra.UserName)
	if err != nil {
		return nil, err
	}
	return &ra, nil
}

// Create registers a new rule assignment. One active assignment per rule UID.
func (s *RuleAssignmentService) Create(req db.CreateRuleAssignmentRequest, createdBy string) (*db.RuleAssignment, error) {
	if req.TeamID == "" && req.UserID == "" {
		return nil, fmt.Errorf("team_id or user_id is required")
	}

	strategy := req.Strategy
	if strategy == "" {
		if req.UserID != "" {
			strategy = db.StrategyDirect
		} else {
			strategy = s.defaultTeamStrategy()
		}
	}
	if strategy == db.StrategyDirect && req.UserID == "" {
		return nil, fmt.Errorf("direct strategy requires user_id")
	}
	if strategy != db.StrategyDirect && req.TeamID == "" {
		return nil, fmt.Errorf("%s strategy requires team_id", strategy)
	}

	var existing string
	err := s.PG.QueryRow(`SELECT id FROM rule_assignments WHERE rule_uid = $1 AND is_active = true`, req.RuleUID).Scan(&existing)
	if err == nil {
		return nil, fmt.Errorf("rule %s already has an active assignment", req.RuleUID)
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to check existing assignment: %w", err)
	}

	id := uuid.New().String()
	now := time.Now().UTC()
	_, err = s.PG.Exec(`
		INSERT INTO rule_assignments (id, rule_uid, rule_name, team_id, user_id, strategy,
			severity_override, category_override, is_active, created_at, updated_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, true, $9, $9, $10)
	`, id, req.RuleUID, nullIfEmptyStr(req.RuleName), nullIfEmptyStr(req.TeamID), nullIfEmptyStr(req.UserID),
		strategy, nullIfEmptyStr(req.SeverityOverride), nullIfEmptyStr(req.CategoryOverride), now, nullIfEmptyStr(createdBy))
	if err != nil {
		return nil, fmt.Errorf("failed to create rule assignment: %w", err)
	}
	return s.Get(id)
}

// Get returns a rule assignment by id
func (s *RuleAssignmentService) Get(id string) (*db.RuleAssignment, error) {
	query := `
		SELECT ` + ruleAssignmentColumns + `
		FROM rule_assignments ra
		LEFT JOIN teams t ON ra.team_id = t.id
		LEFT JOIN users u ON ra.user_id = u.id
		WHERE ra.id = $1
	`
	ra, err := scanRuleAssignment(s.PG.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("rule assignment not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule assignment: %w", err)
	}
	return ra, nil
}

// GetByRuleUID returns the active assignment for an alert rule, or nil when unmatched
func (s *RuleAssignmentService) GetByRuleUID(ruleUID string) (*db.RuleAssignment, error) {
	query := `
		SELECT ` + ruleAssignmentColumns + `
		FROM rule_assignments ra
		LEFT JOIN teams t ON ra.team_id = t.id
		LEFT JOIN users u ON ra.user_id = u.id
		WHERE ra.rule_uid = $1 AND ra.is_active = true
		LIMIT 1
	`
	ra, err := scanRuleAssignment(s.PG.QueryRow(query, ruleUID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule assignment for rule %s: %w", ruleUID, err)
	}
	return ra, nil
}

// List returns all rule assignments, active first
func (s *RuleAssignmentService) List(activeOnly bool) ([]db.RuleAssignment, error) {
	query := `
		SELECT ` + ruleAssignmentColumns + `
		FROM rule_assignments ra
		LEFT JOIN teams t ON ra.team_id = t.id
		LEFT JOIN users u ON ra.user_id = u.id
	`
	if activeOnly {
		query += ` WHERE ra.is_active = true`
	}
	query += ` ORDER BY ra.is_active DESC, ra.created_at DESC`

	rows, err := s.PG.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list rule assignments: %w", err)
	}
	defer rows.Close()

	var assignments []db.RuleAssignment
	for rows.Next() {
		ra, err := scanRuleAssignment(rows)
		if err != nil {
			continue
		}
		assignments = append(assignments, *ra)
	}
	return assignments, nil
}

// Update applies a partial update to a rule assignment
func (s *RuleAssignmentService) Update(id string, req db.UpdateRuleAssignmentRequest) (*db.RuleAssignment, error) {
	setClauses := []string{}
	args := []interface{}{}
	argIdx := 1

	if req.RuleName != nil {
		setClauses = append(setClauses, fmt.Sprintf("rule_name = $%d", argIdx))
		args = append(args, nullIfEmptyStr(*req.RuleName))
		argIdx++
	}
	if req.TeamID != nil {
		setClauses = append(setClauses, fmt.Sprintf("team_id = $%d", argIdx))
		args = append(args, nullIfEmptyStr(*req.TeamID))
		argIdx++
	}
	if req.UserID != nil {
		setClauses = append(setClauses, fmt.Sprintf("user_id = $%d", argIdx))
		args = append(args, nullIfEmptyStr(*req.UserID))
		argIdx++
	}
	if req.Strategy != nil {
		setClauses = append(setClauses, fmt.Sprintf("strategy = $%d", argIdx))
		args = append(args, *req.Strategy)
		argIdx++
	}
	if req.SeverityOverride != nil {
		setClauses = append(setClauses, fmt.Sprintf("severity_override = $%d", argIdx))
		args = append(args, nullIfEmptyStr(*req.SeverityOverride))
		argIdx++
	}
	if req.CategoryOverride != nil {
		setClauses = append(setClauses, fmt.Sprintf("category_override = $%d", argIdx))
		args = append(args, nullIfEmptyStr(*req.CategoryOverride))
		argIdx++
	}
	if req.IsActive != nil {
		setClauses = append(setClauses, fmt.Sprintf("is_active = $%d", argIdx))
		args = append(args, *req.IsActive)
		argIdx++
	}

	if len(setClauses) == 0 {
		return s.Get(id)
	}

	setClauses = append(setClauses, "updated_at = NOW()")
	args = append(args, id)

	query := fmt.Sprintf("UPDATE rule_assignments SET %s WHERE id = $%d", strings.Join(setClauses, ", "), argIdx)
	result, err := s.PG.Exec(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update rule assignment: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("rule assignment not found")
	}
	return s.Get(id)
}

// Delete deactivates a rule assignment
func (s *RuleAssignmentService) Delete(id string) error {
	result, err := s.PG.Exec(`UPDATE rule_assignments SET is_active = false, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule assignment: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("rule assignment not found")
	}
	return nil
}
