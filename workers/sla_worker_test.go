package workers

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/elite-business/case-tools-new-sub005/db"
	"github.com/elite-business/case-tools-new-sub005/services"
)

type captureNotifier struct {
	msgs []*services.NotificationMessage
}

func (c *captureNotifier) SendCaseNotification(msg *services.NotificationMessage) error {
	c.msgs = append(c.msgs, msg)
	return nil
}

func breachColumns() []string {
	return []string{"id", "case_number", "severity", "assigned_to", "team_id", "escalation_level"}
}

func TestScanResponseBreaches_MarksAndNotifies(t *testing.T) {
	pg, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer pg.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`status = 'new'(.|\n)*FOR UPDATE SKIP LOCKED`).
		WillReturnRows(sqlmock.NewRows(breachColumns()).
			AddRow("case-1", "CASE-20260830-0001", db.SeverityCritical, "user-1", "team-1", 0))
	mock.ExpectExec(`UPDATE cases(.|\n)*SET sla_response_breached = true, escalation_level = escalation_level \+ 1`).
		WithArgs("case-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO case_events`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery(`SELECT lead_user_id FROM teams`).
		WithArgs("team-1").
		WillReturnRows(sqlmock.NewRows([]string{"lead_user_id"}).AddRow("lead-9"))

	notifier := &captureNotifier{}
	worker := NewSLAWorker(pg, notifier)

	assert.NoError(t, worker.scanResponseBreaches())
	assert.NoError(t, mock.ExpectationsWereMet())

	recipients := map[string]bool{}
	for _, msg := range notifier.msgs {
		recipients[msg.UserID] = true
		assert.Equal(t, db.NotificationSLABreach, msg.Type)
		assert.Equal(t, "high", msg.Priority)
		assert.Equal(t, "case-1", msg.CaseID)
	}
	assert.Equal(t, map[string]bool{"user-1": true, "lead-9": true}, recipients)
}

func TestScanResolutionBreaches_NoRows(t *testing.T) {
	pg, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer pg.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`sla_resolution_deadline < NOW\(\)(.|\n)*FOR UPDATE SKIP LOCKED`).
		WillReturnRows(sqlmock.NewRows(breachColumns()))
	mock.ExpectCommit()

	notifier := &captureNotifier{}
	worker := NewSLAWorker(pg, notifier)

	assert.NoError(t, worker.scanResolutionBreaches())
	assert.Empty(t, notifier.msgs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScanResponseBreaches_UnassignedCaseNotifiesLeadOnly(t *testing.T) {
	pg, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer pg.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`status = 'new'(.|\n)*FOR UPDATE SKIP LOCKED`).
		WillReturnRows(sqlmock.NewRows(breachColumns()).
			AddRow("case-3", "CASE-20260830-0003", db.SeverityHigh, nil, "team-1", 1))
	mock.ExpectExec(`UPDATE cases(.|\n)*SET sla_response_breached = true`).
		WithArgs("case-3").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO case_events`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery(`SELECT lead_user_id FROM teams`).
		WithArgs("team-1").
		WillReturnRows(sqlmock.NewRows([]string{"lead_user_id"}).AddRow("lead-9"))

	notifier := &captureNotifier{}
	worker := NewSLAWorker(pg, notifier)

	assert.NoError(t, worker.scanResponseBreaches())
	assert.Len(t, notifier.msgs, 1)
	assert.Equal(t, "lead-9", notifier.msgs[0].UserID)
}
