package services

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/elite-business/case-tools-new-sub005/db"
)

// ReportService generates and stores reporting snapshots
type ReportService struct {
	PG    *sql.DB
	Cases *CaseService
}

func NewReportService(pg *sql.DB, cases *CaseService) *ReportService {
	return &ReportService{PG: pg, Cases: cases}
}

// GenerateSummary builds a case summary report for the given period
func (s *ReportService) GenerateSummary(reportType string, periodStart, periodEnd time.Time, generatedBy string) (*db.Report, error) {
	stats, err := s.Cases.GetStats(periodStart)
	if err != nil {
		return nil, err
	}

	bySeverity, err := s.countsBy("severity", periodStart, periodEnd)
	if err != nil {
		return nil, err
	}
	byCategory, err := s.countsBy("category", periodStart, periodEnd)
	if err != nil {
		return nil, err
	}

	report := &db.Report{
		ID:          uuid.New().String(),
		Name:        fmt.Sprintf("%s %s", reportType, periodStart.Format("2006-01-02")),
		Type:        reportType,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		Data: map[string]interface{}{
			"stats":       stats,
			"by_severity": bySeverity,
			"by_category": byCategory,
		},
		GeneratedAt: time.Now().UTC(),
		GeneratedBy: generatedBy,
	}
	if err := s.save(report); err != nil {
		return nil, err
	}
	return report, nil
}

// GenerateSLACompliance builds a per-severity SLA compliance report
func (s *ReportService) GenerateSLACompliance(periodStart, periodEnd time.Time, generatedBy string) (*db.Report, error) {
	rows, err := s.PG.Query(`
		SELECT severity,
		       COUNT(*),
		       COUNT(*) FILTER (WHERE NOT sla_response_breached),
		       COUNT(*) FILTER (WHERE NOT sla_resolution_breached AND status IN ('resolved', 'closed'))
		FROM cases
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY severity
	`, periodStart, periodEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to query SLA compliance: %w", err)
	}
	defer rows.Close()

	compliance := map[string]interface{}{}
	for rows.Next() {
		var severity string
		var total, responseMet, resolutionMet int
		if err := rows.Scan(&severity, &total, &responseMet, &resolutionMet); err != nil {
			continue
		}
		entry := map[string]interface{}{
			"total":          total,
			"response_met":   responseMet,
			"resolution_met": resolutionMet,
		}
		if total > 0 {
			entry["response_pct"] = float64(responseMet) / float64(total) * 100
			entry["resolution_pct"] = float64(resolutionMet) / float64(total) * 100
		}
		compliance[severity] = entry
	}

	report := &db.Report{
		ID:          uuid.New().String(),
		Name:        fmt.Sprintf("SLA compliance %s", periodStart.Format("2006-01-02")),
		Type:        db.ReportTypeSLACompliance,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		Data: map[string]interface{}{
			"compliance": compliance,
		},
		GeneratedAt: time.Now().UTC(),
		GeneratedBy: generatedBy,
	}
	if err := s.save(report); err != nil {
		return nil, err
	}
	return report, nil
}

func (s *ReportService) countsBy(column string, periodStart, periodEnd time.Time) (map[string]int, error) {
	// column is always an internal constant, never user input
	query := fmt.Sprintf(`
		SELECT %s, COUNT(*) FROM cases
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY %s
	`, column, column)

	rows, err := s.PG.Query(query, periodStart, periodEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to count cases by %s: %w", column, err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			continue
		}
		counts[key] = count
	}
	return counts, nil
}

func (s *ReportService) save(r *db.Report) error {
	dataJSON, err := json.Marshal(r.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal report data: %w", err)
	}

	_, err = s.PG.Exec(`
		INSERT INTO reports (id, name, type, period_start, period_end, data, generated_at, generated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, r.ID, r.Name, r.Type, r.PeriodStart, r.PeriodEnd, dataJSON, r.GeneratedAt, nullIfEmptyStr(r.GeneratedBy))
	if err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}

// List returns stored reports, newest first
func (s *ReportService) List(reportType string, limit int) ([]db.Report, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := `
		SELECT id, name, type, period_start, period_end, data, generated_at, COALESCE(generated_by::text, '') as generated_by
		FROM reports
	`
	args := []interface{}{}
	argIdx := 1

	if reportType != "" {
		query += fmt.Sprintf(" WHERE type = $%d", argIdx)
		args = append(args, reportType)
		argIdx++
	}
	query += fmt.Sprintf(" ORDER BY generated_at DESC LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.PG.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	var reports []db.Report
	for rows.Next() {
		var r db.Report
		var dataJSON []byte
		if err := rows.Scan(&r.ID, &r.Name, &r.Type, &r.PeriodStart, &r.PeriodEnd, &dataJSON, &r.GeneratedAt, &r.GeneratedBy); err != nil {
			continue
		}
		if len(dataJSON) > 0 {
			json.Unmarshal(dataJSON, &r.Data)
		}
		reports = append(reports, r)
	}
	return reports, nil
}

// Get returns one stored report
func (s *ReportService) Get(id string) (*db.Report, error) {
	var r db.Report
	var dataJSON []byte
	err := s.PG.QueryRow(`
		SELECT id, name, type, period_start, period_end, data, generated_at, COALESCE(generated_by::text, '') as generated_by
		FROM reports WHERE id = $1
	`, id).Scan(&r.ID, &r.Name, &r.Type, &r.PeriodStart, &r.PeriodEnd, &dataJSON, &r.GeneratedAt, &r.GeneratedBy)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("report not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	if len(dataJSON) > 0 {
		json.Unmarshal(dataJSON, &r.Data)
	}
	return &r, nil
}
