package handlers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/elite-business/case-tools-new-sub005/services"
)

func newWebhookTestHandler(t *testing.T, secret string) (*WebhookHandler, sqlmock.Sqlmock, func()) {
	t.Helper()

	pg, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	assert.NoError(t, err)

	slaService := services.NewSLAService(pg)
	caseService := services.NewCaseService(pg, nil, slaService)
	handler := NewWebhookHandler(
		caseService,
		services.NewRuleAssignmentService(pg),
		services.NewAssignmentService(pg, nil),
		services.NewAlertHistoryService(pg),
		services.NewDedupService(nil, nil, 300),
		nil,
		secret,
		"",
	)
	return handler, mock, func() { pg.Close() }
}

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func performWebhook(handler *WebhookHandler, body []byte, signature string) *httptest.ResponseRecorder {
	return performWebhookPath(handler, "/webhook/grafana", body, signature)
}

func performWebhookPath(handler *WebhookHandler, path string, body []byte, signature string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/webhook/grafana", handler.ReceiveGrafanaWebhook)
	r.POST("/webhook/grafana/:rule_uid", handler.ReceiveGrafanaWebhook)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("X-Grafana-Signature", signature)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestReceiveGrafanaWebhook_RejectsBadSignature(t *testing.T) {
	handler, _, cleanup := newWebhookTestHandler(t, "secret")
	defer cleanup()

	body := []byte(`{"status":"firing","alerts":[]}`)
	w := performWebhook(handler, body, "bad-signature")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestReceiveGrafanaWebhook_RejectsInvalidJSON(t *testing.T) {
	handler, _, cleanup := newWebhookTestHandler(t, "secret")
	defer cleanup()

	body := []byte(`not json`)
	w := performWebhook(handler, body, signBody("secret", body))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReceiveGrafanaWebhook_FiringAlertOpensCase(t *testing.T) {
	handler, mock, cleanup := newWebhookTestHandler(t, "secret")
	defer cleanup()

	// Fingerprint lookup finds no open case
	mock.ExpectQuery(`SELECT(.|\n)*FROM cases c(.|\n)*WHERE c\.fingerprint`).
		WillReturnError(sql.ErrNoRows)
	// Case number allocation
	mock.ExpectQuery(`INSERT INTO case_counters`).
		WillReturnRows(sqlmock.NewRows([]string{"counter"}).AddRow(1))
	// SLA policy lookup falls back to defaults
	mock.ExpectQuery(`SELECT id, severity, response_minutes`).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(`INSERT INTO cases`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO case_events`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO alert_history`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	body := []byte(`{
		"status": "firing",
		"alerts": [{
			"status": "firing",
			"labels": {"alertname": "InterconnectRevenueLeakage", "severity": "critical", "category": "interconnect"},
			"annotations": {"summary": "Settlement delta breach"},
			"startsAt": "2026-08-30T10:30:00Z",
			"fingerprint": "9a1b2c3d4e5f"
		}]
	}`)

	w := performWebhook(handler, body, signBody("secret", body))
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, float64(1), resp["created"])
	assert.Equal(t, float64(0), resp["deduplicated"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReceiveGrafanaWebhook_RuleUIDFromPath(t *testing.T) {
	handler, mock, cleanup := newWebhookTestHandler(t, "")
	defer cleanup()

	mock.ExpectQuery(`SELECT(.|\n)*FROM cases c(.|\n)*WHERE c\.fingerprint`).
		WillReturnError(sql.ErrNoRows)
	// The path segment drives the rule assignment lookup
	mock.ExpectQuery(`SELECT(.|\n)*FROM rule_assignments ra(.|\n)*WHERE ra\.rule_uid`).
		WithArgs("rev-leak-001").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`INSERT INTO case_counters`).
		WillReturnRows(sqlmock.NewRows([]string{"counter"}).AddRow(2))
	mock.ExpectQuery(`SELECT id, severity, response_minutes`).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(`INSERT INTO cases`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO case_events`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO alert_history`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	// No __alert_rule_uid__ label, only the path carries the rule UID
	body := []byte(`{
		"status": "firing",
		"alerts": [{
			"status": "firing",
			"labels": {"alertname": "InterconnectRevenueLeakage", "severity": "high"},
			"annotations": {"summary": "Settlement delta breach"},
			"startsAt": "2026-08-30T10:30:00Z",
			"fingerprint": "77aa88bb99cc"
		}]
	}`)

	w := performWebhookPath(handler, "/webhook/grafana/rev-leak-001", body, "")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, float64(1), resp["created"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReceiveGrafanaWebhook_ResolvedAlertWithNoOpenCase(t *testing.T) {
	handler, mock, cleanup := newWebhookTestHandler(t, "")
	defer cleanup()

	mock.ExpectQuery(`SELECT(.|\n)*FROM cases c(.|\n)*WHERE c\.fingerprint`).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(`INSERT INTO alert_history`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	body := []byte(`{
		"status": "resolved",
		"alerts": [{
			"status": "resolved",
			"labels": {"alertname": "BillingRecordGap"},
			"annotations": {},
			"startsAt": "2026-08-30T08:00:00Z",
			"endsAt": "2026-08-30T09:15:00Z",
			"fingerprint": "deadbeef0001"
		}]
	}`)

	w := performWebhook(handler, body, "")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, float64(0), resp["resolved"])
	assert.NoError(t, mock.ExpectationsWereMet())
}
