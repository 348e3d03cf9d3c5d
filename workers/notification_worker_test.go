package workers

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/elite-business/case-tools-new-sub005/services"
)

func queuedMessage(t *testing.T, readCT int) PGMQMessage {
	t.Helper()
	raw, err := json.Marshal(services.NotificationMessage{
		UserID:   "user-1",
		CaseID:   "case-1",
		Type:     "sla_breach",
		Priority: "high",
		Title:    "SLA response deadline breached on CASE-20260830-0001",
		Message:  "Case CASE-20260830-0001 missed its response SLA deadline",
	})
	assert.NoError(t, err)
	return PGMQMessage{MsgID: 7, ReadCT: readCT, Message: raw}
}

func TestHandleMessage_DeliversAndDeletes(t *testing.T) {
	pg, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer pg.Close()

	mock.ExpectExec(`INSERT INTO notifications`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`SELECT pgmq\.delete`).
		WithArgs("case_notifications", int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	worker := NewNotificationWorker(pg, services.NewNotificationService(pg))
	worker.handleMessage("case_notifications", queuedMessage(t, 1))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleMessage_ExhaustedRetriesRecordFailureAndArchive(t *testing.T) {
	pg, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer pg.Close()

	mock.ExpectExec(`INSERT INTO notifications`).
		WillReturnError(fmt.Errorf("connection reset"))
	mock.ExpectExec(`INSERT INTO notifications`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`SELECT pgmq\.archive`).
		WithArgs("case_notifications", int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	worker := NewNotificationWorker(pg, services.NewNotificationService(pg))
	worker.handleMessage("case_notifications", queuedMessage(t, 3))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleMessage_MalformedMessageArchived(t *testing.T) {
	pg, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer pg.Close()

	mock.ExpectExec(`SELECT pgmq\.archive`).
		WithArgs("case_notifications", int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	worker := NewNotificationWorker(pg, services.NewNotificationService(pg))
	worker.handleMessage("case_notifications", PGMQMessage{MsgID: 9, ReadCT: 1, Message: []byte("not json")})
	assert.NoError(t, mock.ExpectationsWereMet())
}
