package services

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/elite-business/case-tools-new-sub005/db"
)

// SLAService computes and manages SLA deadlines per severity tier
type SLAService struct {
	PG *sql.DB
}

func NewSLAService(pg *sql.DB) *SLAService {
	return &SLAService{PG: pg}
}

// Default SLA targets in minutes, used when no policy row exists for a severity
var defaultSLAPolicies = map[string]db.SLAPolicy{
	db.SeverityCritical: {Severity: db.SeverityCritical, ResponseMinutes: 15, ResolutionMinutes: 240},
	db.SeverityHigh:     {Severity: db.SeverityHigh, ResponseMinutes: 30, ResolutionMinutes: 480},
	db.SeverityMedium:   {Severity: db.SeverityMedium, ResponseMinutes: 120, ResolutionMinutes: 1440},
	db.SeverityLow:      {Severity: db.SeverityLow, ResponseMinutes: 480, ResolutionMinutes: 2880},
	db.SeverityInfo:     {Severity: db.SeverityInfo, ResponseMinutes: 1440, ResolutionMinutes: 4320},
}

// GetPolicy returns the active SLA policy for a severity, falling back to defaults
func (s *SLAService) GetPolicy(severity string) (db.SLAPolicy, error) {
	severity = strings.ToLower(severity)

	var p db.SLAPolicy
	err := s.PG.QueryRow(`
		SELECT id, severity, response_minutes, resolution_minutes, is_active, created_at, updated_at
		FROM sla_policies
		WHERE severity = $1 AND is_active = true
	`, severity).Scan(&p.ID, &p.Severity, &p.ResponseMinutes, &p.ResolutionMinutes, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err == nil {
		return p, nil
	}
	if err != sql.ErrNoRows {
		return p, fmt.Errorf("failed to get SLA policy: %w", err)
	}

	if def, ok := defaultSLAPolicies[severity]; ok {
		return def, nil
	}
	return defaultSLAPolicies[db.SeverityMedium], nil
}

// ListPolicies returns all SLA policies
func (s *SLAService) ListPolicies() ([]db.SLAPolicy, error) {
	rows, err := s.PG.Query(`
		SELECT id, severity, response_minutes, resolution_minutes, is_active, created_at, updated_at
		FROM sla_policies
		ORDER BY CASE severity
			WHEN 'critical' THEN 1 WHEN 'high' THEN 2 WHEN 'medium' THEN 3
			WHEN 'low' THEN 4 ELSE 5 END
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list SLA policies: %w", err)
	}
	defer rows.Close()

	var policies []db.SLAPolicy
	for rows.Next() {
		var p db.SLAPolicy
		if err := rows.Scan(&p.ID, &p.Severity, &p.ResponseMinutes, &p.ResolutionMinutes,
			&p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			continue
		}
		policies = append(policies, p)
	}
	return policies, nil
}

// UpdatePolicy updates SLA targets for a severity
func (s *SLAService) UpdatePolicy(severity string, req db.UpdateSLAPolicyRequest) (db.SLAPolicy, error) {
	setClauses := []string{"updated_at = NOW()"}
	args := []interface{}{}
	argIdx := 1

	if req.ResponseMinutes != nil {
		setClauses = append(setClauses, fmt.Sprintf("response_minutes = $%d", argIdx))
		args = append(args, *req.ResponseMinutes)
		argIdx++
	}
	if req.ResolutionMinutes != nil {
		setClauses = append(setClauses, fmt.Sprintf("resolution_minutes = $%d", argIdx))
		args = append(args, *req.ResolutionMinutes)
		argIdx++
	}
	if req.IsActive != nil {
		setClauses = append(setClauses, fmt.Sprintf("is_active = $%d", argIdx))
		args = append(args, *req.IsActive)
		argIdx++
	}

	args = append(args, strings.ToLower(severity))
	query := fmt.Sprintf("UPDATE sla_policies SET %s WHERE severity = $%d", strings.Join(setClauses, ", "), argIdx)

	result, err := s.PG.Exec(query, args...)
	if err != nil {
		return db.SLAPolicy{}, fmt.Errorf("failed to update SLA policy: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return db.SLAPolicy{}, fmt.Errorf("SLA policy not found")
	}

	return s.GetPolicy(severity)
}

// ComputeDeadlines returns the response and resolution deadlines for a case
// created at the given time with the given severity. Wall clock, no
// business-hours pausing.
func (s *SLAService) ComputeDeadlines(severity string, createdAt time.Time) (response, resolution time.Time, err error) {
	policy, err := s.GetPolicy(severity)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	response = createdAt.Add(time.Duration(policy.ResponseMinutes) * time.Minute)
	resolution = createdAt.Add(time.Duration(policy.ResolutionMinutes) * time.Minute)
	return response, resolution, nil
}
