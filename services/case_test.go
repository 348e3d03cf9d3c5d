package services

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/elite-business/case-tools-new-sub005/db"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to string
		allowed  bool
	}{
		{db.CaseStatusNew, db.CaseStatusAcknowledged, true},
		{db.CaseStatusNew, db.CaseStatusInProgress, true},
		{db.CaseStatusNew, db.CaseStatusResolved, true},
		{db.CaseStatusNew, db.CaseStatusClosed, false},
		{db.CaseStatusAcknowledged, db.CaseStatusInProgress, true},
		{db.CaseStatusInProgress, db.CaseStatusPending, true},
		{db.CaseStatusPending, db.CaseStatusInProgress, true},
		{db.CaseStatusInProgress, db.CaseStatusClosed, false},
		{db.CaseStatusResolved, db.CaseStatusClosed, true},
		{db.CaseStatusResolved, db.CaseStatusInProgress, true},
		{db.CaseStatusClosed, db.CaseStatusInProgress, false},
		{db.CaseStatusClosed, db.CaseStatusResolved, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.allowed, canTransition(tt.from, tt.to),
			"transition %s -> %s", tt.from, tt.to)
	}
}

func TestPriorityForSeverity(t *testing.T) {
	assert.Equal(t, "P1", priorityForSeverity(db.SeverityCritical))
	assert.Equal(t, "P2", priorityForSeverity(db.SeverityHigh))
	assert.Equal(t, "P3", priorityForSeverity(db.SeverityMedium))
	assert.Equal(t, "P4", priorityForSeverity(db.SeverityLow))
	assert.Equal(t, "P5", priorityForSeverity(db.SeverityInfo))
	assert.Equal(t, "P5", priorityForSeverity(""))
}

func TestClose_OnlyFromResolved(t *testing.T) {
	pg, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer pg.Close()

	// No rows updated: the case is not in resolved status
	mock.ExpectExec("UPDATE cases").
		WillReturnResult(sqlmock.NewResult(0, 0))

	svc := NewCaseService(pg, nil, NewSLAService(pg))
	_, err = svc.Close("case-1", "user-1")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "only resolved cases")
}

func TestAcknowledge_OnlyFromNew(t *testing.T) {
	pg, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer pg.Close()

	mock.ExpectExec("UPDATE cases").
		WillReturnResult(sqlmock.NewResult(0, 0))

	svc := NewCaseService(pg, nil, NewSLAService(pg))
	_, err = svc.Acknowledge("case-1", "user-1")
	assert.Error(t, err)
}

func TestAppendAlert_IncrementsCounter(t *testing.T) {
	pg, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer pg.Close()

	mock.ExpectExec("UPDATE cases SET alert_count").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO case_events").
		WillReturnResult(sqlmock.NewResult(0, 1))

	svc := NewCaseService(pg, nil, NewSLAService(pg))
	err = svc.AppendAlert("case-1", db.SystemUserGrafana)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func caseDetailColumns() []string {
	return []string{
		"id", "case_number", "title", "description",
		"status", "severity", "priority", "category", "source",
		"rule_uid", "fingerprint",
		"alert_count", "labels", "annotations",
		"assigned_to", "assigned_at", "team_id",
		"acknowledged_by", "acknowledged_at",
		"resolved_by", "resolved_at", "resolution",
		"closed_by", "closed_at",
		"sla_response_deadline", "sla_resolution_deadline",
		"sla_response_breached", "sla_resolution_breached", "escalation_level", "last_escalated_at",
		"created_by", "created_at", "updated_at",
		"assigned_to_name", "assigned_to_email", "team_name", "resolved_by_name", "closed_by_name",
	}
}

func inProgressCaseRow() *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows(caseDetailColumns()).AddRow(
		"case-1", "CASE-20260830-0001", "Settlement delta breach", "",
		db.CaseStatusInProgress, db.SeverityCritical, "P1", "interconnect", db.CaseSourceGrafana,
		"rev-leak-001", "9a1b2c3d", 1, []byte(`{}`), []byte(`{}`),
		"user-1", nil, "team-1",
		"", nil,
		"", nil, "",
		"", nil,
		nil, nil,
		false, false, 0, nil,
		db.SystemUserGrafana, now, now,
		"Alice Nguyen", "alice@example.com", "Interconnect", "", "",
	)
}

func TestEscalate_ReassignsToTeamLead(t *testing.T) {
	pg, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer pg.Close()

	mock.ExpectQuery(`FROM cases c(.|\n)*WHERE c\.id`).
		WithArgs("case-1").
		WillReturnRows(inProgressCaseRow())
	mock.ExpectQuery(`SELECT COALESCE\((.|\n)*FROM teams t`).
		WithArgs("team-1").
		WillReturnRows(sqlmock.NewRows([]string{"lead"}).AddRow("lead-9"))
	mock.ExpectExec(`UPDATE cases(.|\n)*escalation_level = escalation_level \+ 1(.|\n)*assigned_to = COALESCE`).
		WithArgs("case-1", "lead-9").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO case_events`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`FROM cases c(.|\n)*WHERE c\.id`).
		WithArgs("case-1").
		WillReturnRows(inProgressCaseRow())

	svc := NewCaseService(pg, nil, NewSLAService(pg))
	svc.SetTeamService(NewTeamService(pg))

	resp, err := svc.Escalate("case-1", "user-2", "no movement on settlement delta")
	assert.NoError(t, err)
	assert.NotNil(t, resp)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEscalate_RejectsTerminalStates(t *testing.T) {
	pg, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer pg.Close()

	now := time.Now().UTC()
	closedRow := sqlmock.NewRows(caseDetailColumns()).AddRow(
		"case-2", "CASE-20260830-0002", "Roaming spike", "",
		db.CaseStatusClosed, db.SeverityLow, "P4", "roaming", db.CaseSourceManual,
		"", "", 0, []byte(`{}`), []byte(`{}`),
		"", nil, "",
		"", nil,
		"user-1", nil, "fixed",
		"user-1", nil,
		nil, nil,
		false, false, 0, nil,
		"user-1", now, now,
		"", "", "", "", "",
	)
	mock.ExpectQuery(`FROM cases c(.|\n)*WHERE c\.id`).
		WillReturnRows(closedRow)

	svc := NewCaseService(pg, nil, NewSLAService(pg))
	_, err = svc.Escalate("case-2", "user-2", "reason")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "cannot escalate")
}

func TestGenerateCaseNumberFormat(t *testing.T) {
	pg, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer pg.Close()

	rows := sqlmock.NewRows([]string{"counter"}).AddRow(7)
	mock.ExpectQuery("INSERT INTO case_counters").
		WillReturnRows(rows)

	svc := NewCaseService(pg, nil, NewSLAService(pg))
	number, err := svc.generateCaseNumber()
	assert.NoError(t, err)
	assert.Regexp(t, `^CASE-\d{8}-0007$`, number)
}
