package services

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/elite-business/case-tools-new-sub005/db"
)

// AlertHistoryService records every webhook alert regardless of outcome
type AlertHistoryService struct {
	PG *sql.DB
}

func NewAlertHistoryService(pg *sql.DB) *AlertHistoryService {
	return &AlertHistoryService{PG: pg}
}

// Record inserts an alert history row
func (s *AlertHistoryService) Record(a *db.AlertHistory) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.ReceivedAt.IsZero() {
		a.ReceivedAt = time.Now().UTC()
	}

	labelsJSON, _ := json.Marshal(a.Labels)
	annotationsJSON, _ := json.Marshal(a.Annotations)

	_, err := s.PG.Exec(`
		INSERT INTO alert_history (id, rule_uid, rule_name, fingerprint, status, severity,
			labels, annotations, starts_at, ends_at, case_id, outcome, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, a.ID, nullIfEmptyStr(a.RuleUID), nullIfEmptyStr(a.RuleName), a.Fingerprint, a.Status,
		a.Severity, labelsJSON, annotationsJSON, a.StartsAt, a.EndsAt,
		nullIfEmptyStr(a.CaseID), a.Outcome, a.ReceivedAt)
	if err != nil {
		return fmt.Errorf("failed to record alert history: %w", err)
	}
	return nil
}

// List returns recent alert history, optionally filtered by rule UID or outcome
func (s *AlertHistoryService) List(ruleUID, outcome string, limit int) ([]db.AlertHistory, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `
		SELECT id, COALESCE(rule_uid, '') as rule_uid, COALESCE(rule_name, '') as rule_name,
		       fingerprint, status, severity, labels, annotations, starts_at, ends_at,
		       COALESCE(case_id::text, '') as case_id, outcome, received_at
		FROM alert_history WHERE 1=1
	`
	args := []interface{}{}
	argIdx := 1

	if ruleUID != "" {
		query += fmt.Sprintf(" AND rule_uid = $%d", argIdx)
		args = append(args, ruleUID)
		argIdx++
	}
	if outcome != "" {
		query += fmt.Sprintf(" AND outcome = $%d", argIdx)
		args = append(args, outcome)
		argIdx++
	}
	query += fmt.Sprintf(" ORDER BY received_at DESC LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.PG.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alert history: %w", err)
	}
	defer rows.Close()

	var alerts []db.AlertHistory
	for rows.Next() {
		var a db.AlertHistory
		var labelsJSON, annotationsJSON []byte
		var endsAt sql.NullTime
		if err := rows.Scan(&a.ID, &a.RuleUID, &a.RuleName, &a.Fingerprint, &a.Status, &a.Severity,
			&labelsJSON, &annotationsJSON, &a.StartsAt, &endsAt, &a.CaseID, &a.Outcome, &a.ReceivedAt); err != nil {
			continue
		}
		if len(labelsJSON) > 0 {
			json.Unmarshal(labelsJSON, &a.Labels)
		}
		if len(annotationsJSON) > 0 {
			json.Unmarshal(annotationsJSON, &a.Annotations)
		}
		if endsAt.Valid {
			a.EndsAt = &endsAt.Time
		}
		alerts = append(alerts, a)
	}
	return alerts, nil
}

// ListForCase returns the alerts that opened or matched a case
func (s *AlertHistoryService) ListForCase(caseID string) ([]db.AlertHistory, error) {
	rows, err := s.PG.Query(`
		SELECT id, COALESCE(rule_uid, '') as rule_uid, COALESCE(rule_name, '') as rule_name,
		       fingerprint, status, severity, labels, annotations, starts_at, ends_at,
		       COALESCE(case_id::text, '') as case_id, outcome, received_at
		FROM alert_history
		WHERE case_id = $1
		ORDER BY received_at ASC
	`, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts for case: %w", err)
	}
	defer rows.Close()

	var alerts []db.AlertHistory
	for rows.Next() {
		var a db.AlertHistory
		var labelsJSON, annotationsJSON []byte
		var endsAt sql.NullTime
		if err := rows.Scan(&a.ID, &a.RuleUID, &a.RuleName, &a.Fingerprint, &a.Status, &a.Severity,
			&labelsJSON, &annotationsJSON, &a.StartsAt, &endsAt, &a.CaseID, &a.Outcome, &a.ReceivedAt); err != nil {
			continue
		}
		if len(labelsJSON) > 0 {
			json.Unmarshal(labelsJSON, &a.Labels)
		}
		if len(annotationsJSON) > 0 {
			json.Unmarshal(annotationsJSON, &a.Annotations)
		}
		if endsAt.Valid {
			a.EndsAt = &endsAt.Time
		}
		alerts = append(alerts, a)
	}
	return alerts, nil
}
