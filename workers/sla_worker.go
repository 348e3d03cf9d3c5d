package workers

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/elite-business/case-tools-new-sub005/db"
	"github.com/elite-business/case-tools-new-sub005/services"
)

// SLAWorker scans open cases for SLA breaches and escalates them
type SLAWorker struct {
	PG       *sql.DB
	Notifier services.NotificationSender
}

func NewSLAWorker(pg *sql.DB, notifier services.NotificationSender) *SLAWorker {
	return &SLAWorker{PG: pg, Notifier: notifier}
}

// StartSLAWorker runs the breach scan on a fixed interval
func (w *SLAWorker) StartSLAWorker() {
	log.Println("SLA worker started, scanning for deadline breaches...")

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		if err := w.scanResponseBreaches(); err != nil {
			log.Printf("SLA worker: response breach scan failed: %v", err)
		}
		if err := w.scanResolutionBreaches(); err != nil {
			log.Printf("SLA worker: resolution breach scan failed: %v", err)
		}
	}
}

type breachedCase struct {
	ID              string
	CaseNumber      string
	Severity        string
	AssignedTo      sql.NullString
	TeamID          sql.NullString
	EscalationLevel int
}

// Response SLA: the case must leave "new" before the response deadline
func (w *SLAWorker) scanResponseBreaches() error {
	return w.scan(`
		SELECT id, case_number, severity, assigned_to, team_id, escalation_level
		FROM cases
		WHERE status = 'new'
		  AND sla_response_deadline IS NOT NULL
		  AND sla_response_deadline < NOW()
		  AND NOT sla_response_breached
		FOR UPDATE SKIP LOCKED
	`, "sla_response_breached", "response")
}

// Resolution SLA: the case must be resolved before the resolution deadline
func (w *SLAWorker) scanResolutionBreaches() error {
	return w.scan(`
		SELECT id, case_number, severity, assigned_to, team_id, escalation_level
		FROM cases
		WHERE status NOT IN ('resolved', 'closed')
		  AND sla_resolution_deadline IS NOT NULL
		  AND sla_resolution_deadline < NOW()
		  AND NOT sla_resolution_breached
		FOR UPDATE SKIP LOCKED
	`, "sla_resolution_breached", "resolution")
}

func (w *SLAWorker) scan(query, breachColumn, kind string) error {
	tx, err := w.PG.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query(query)
	if err != nil {
		return fmt.Errorf("failed to scan for %s breaches: %w", kind, err)
	}

	var breached []breachedCase
	for rows.Next() {
		var bc breachedCase
		if err := rows.Scan(&bc.ID, &bc.CaseNumber, &bc.Severity, &bc.AssignedTo, &bc.TeamID, &bc.EscalationLevel); err != nil {
			continue
		}
		breached = append(breached, bc)
	}
	rows.Close()

	for _, bc := range breached {
		// breachColumn is one of two internal constants
		markQuery := fmt.Sprintf(`
			UPDATE cases
			SET %s = true, escalation_level = escalation_level + 1,
			    last_escalated_at = NOW(), updated_at = NOW()
			WHERE id = $1
		`, breachColumn)
		if _, err := tx.Exec(markQuery, bc.ID); err != nil {
			return fmt.Errorf("failed to mark case %s breached: %w", bc.CaseNumber, err)
		}

		eventData, _ := json.Marshal(map[string]interface{}{
			"deadline": kind,
			"level":    bc.EscalationLevel + 1,
		})
		if _, err := tx.Exec(`
			INSERT INTO case_events (id, case_id, event_type, event_data, created_by, created_at)
			VALUES ($1, $2, $3, $4, $5, NOW())
		`, uuid.New().String(), bc.ID, db.EventSLABreached, eventData, db.SystemUserSLAWorker); err != nil {
			return fmt.Errorf("failed to record breach event for case %s: %w", bc.CaseNumber, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit breach scan: %w", err)
	}

	for _, bc := range breached {
		log.Printf("SLA %s breach on case %s (severity %s)", kind, bc.CaseNumber, bc.Severity)
		w.notifyBreach(bc, kind)
	}
	return nil
}

func (w *SLAWorker) notifyBreach(bc breachedCase, kind string) {
	if w.Notifier == nil {
		return
	}

	recipients := map[string]bool{}
	if bc.AssignedTo.Valid && bc.AssignedTo.String != "" {
		recipients[bc.AssignedTo.String] = true
	}
	if bc.TeamID.Valid && bc.TeamID.String != "" {
		var leadID sql.NullString
		if err := w.PG.QueryRow(`SELECT lead_user_id FROM teams WHERE id = $1`, bc.TeamID.String).Scan(&leadID); err == nil && leadID.Valid {
			recipients[leadID.String] = true
		}
	}

	for userID := range recipients {
		msg := &services.NotificationMessage{
			UserID:   userID,
			CaseID:   bc.ID,
			Type:     db.NotificationSLABreach,
			Priority: "high",
			Title:    fmt.Sprintf("SLA %s deadline breached on %s", kind, bc.CaseNumber),
			Message:  fmt.Sprintf("Case %s (%s severity) missed its %s SLA deadline", bc.CaseNumber, bc.Severity, kind),
			Data: map[string]interface{}{
				"case_number": bc.CaseNumber,
				"deadline":    kind,
			},
			CreatedAt: time.Now().UTC(),
		}
		if err := w.Notifier.SendCaseNotification(msg); err != nil {
			log.Printf("SLA worker: failed to queue breach notification for %s: %v", bc.CaseNumber, err)
		}
	}
}
