package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/elite-business/case-tools-new-sub005/db"
)

func TestProcessGrafanaWebhook(t *testing.T) {
	handler := &WebhookHandler{}

	tests := []struct {
		name           string
		payload        string
		expectedCount  int
		expectedStatus string
		expectedRule   string
		expectedSev    string
		expectedFP     string
	}{
		{
			name: "Firing alert with rule UID and fingerprint",
			payload: `{
				"receiver": "casetools",
				"status": "firing",
				"orgId": 1,
				"alerts": [
					{
						"status": "firing",
						"labels": {
							"alertname": "InterconnectRevenueLeakage",
							"__alert_rule_uid__": "rev-leak-001",
							"severity": "critical",
							"category": "interconnect",
							"trunk_group": "TG-ROAM-EU-01"
						},
						"annotations": {
							"summary": "Interconnect revenue drop exceeds threshold",
							"description": "Settlement delta for TG-ROAM-EU-01 is -14.2% vs baseline"
						},
						"startsAt": "2026-08-30T10:30:00Z",
						"endsAt": "0001-01-01T00:00:00Z",
						"fingerprint": "9a1b2c3d4e5f"
					}
				],
				"title": "[FIRING:1] InterconnectRevenueLeakage"
			}`,
			expectedCount:  1,
			expectedStatus: "firing",
			expectedRule:   "rev-leak-001",
			expectedSev:    db.SeverityCritical,
			expectedFP:     "9a1b2c3d4e5f",
		},
		{
			name: "Resolved alert keeps endsAt",
			payload: `{
				"status": "resolved",
				"alerts": [
					{
						"status": "resolved",
						"labels": {
							"alertname": "BillingRecordGap",
							"__alert_rule_uid__": "cdr-gap-007",
							"severity": "high"
						},
						"annotations": {"summary": "CDR ingestion gap closed"},
						"startsAt": "2026-08-30T08:00:00Z",
						"endsAt": "2026-08-30T09:15:00Z",
						"fingerprint": "deadbeef0001"
					}
				]
			}`,
			expectedCount:  1,
			expectedStatus: "resolved",
			expectedRule:   "cdr-gap-007",
			expectedSev:    db.SeverityHigh,
			expectedFP:     "deadbeef0001",
		},
		{
			name: "Warning severity normalizes to medium",
			payload: `{
				"status": "firing",
				"alerts": [
					{
						"status": "firing",
						"labels": {"alertname": "RoamingUsageSpike", "severity": "warning"},
						"annotations": {},
						"startsAt": "2026-08-30T11:00:00Z",
						"fingerprint": "cafe0001"
					}
				]
			}`,
			expectedCount:  1,
			expectedStatus: "firing",
			expectedSev:    db.SeverityMedium,
			expectedFP:     "cafe0001",
		},
		{
			name: "Legacy payload falls back to state parsing",
			payload: `{
				"state": "alerting",
				"ruleName": "Fraud velocity check",
				"ruleUid": "fraud-vel-3",
				"message": "SIM box pattern detected on MSC-04",
				"tags": {"severity": "high"}
			}`,
			expectedCount:  1,
			expectedStatus: "firing",
			expectedRule:   "fraud-vel-3",
			expectedSev:    db.SeverityHigh,
			expectedFP:     "legacy-Fraud velocity check",
		},
		{
			name: "Legacy ok state maps to resolved",
			payload: `{
				"state": "ok",
				"ruleName": "Fraud velocity check",
				"message": "back to normal"
			}`,
			expectedCount:  1,
			expectedStatus: "resolved",
			expectedSev:    db.SeverityMedium,
			expectedFP:     "legacy-Fraud velocity check",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rawPayload map[string]interface{}
			err := json.Unmarshal([]byte(tt.payload), &rawPayload)
			assert.NoError(t, err)

			alerts := handler.processGrafanaWebhook([]byte(tt.payload), rawPayload)
			assert.Len(t, alerts, tt.expectedCount)
			if tt.expectedCount == 0 {
				return
			}

			alert := alerts[0]
			assert.Equal(t, tt.expectedStatus, alert.Status)
			assert.Equal(t, tt.expectedSev, alert.Severity)
			assert.Equal(t, tt.expectedFP, alert.Fingerprint)
			if tt.expectedRule != "" {
				assert.Equal(t, tt.expectedRule, alert.RuleUID)
			}
		})
	}
}

func TestProcessGrafanaWebhook_ResolvedEndsAt(t *testing.T) {
	handler := &WebhookHandler{}
	payload := `{
		"status": "resolved",
		"alerts": [{
			"status": "resolved",
			"labels": {"alertname": "BillingRecordGap"},
			"annotations": {},
			"startsAt": "2026-08-30T08:00:00Z",
			"endsAt": "2026-08-30T09:15:00Z",
			"fingerprint": "deadbeef0001"
		}]
	}`
	var rawPayload map[string]interface{}
	assert.NoError(t, json.Unmarshal([]byte(payload), &rawPayload))

	alerts := handler.processGrafanaWebhook([]byte(payload), rawPayload)
	assert.Len(t, alerts, 1)
	assert.NotNil(t, alerts[0].EndsAt)
	assert.Equal(t, 2026, alerts[0].EndsAt.Year())
}

func TestValidateSignature(t *testing.T) {
	secret := "webhook-test-secret"
	handler := &WebhookHandler{webhookSecret: secret}
	body := []byte(`{"status":"firing","alerts":[]}`)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	valid := hex.EncodeToString(mac.Sum(nil))

	assert.True(t, handler.validateSignature(body, valid))
	assert.False(t, handler.validateSignature(body, ""))
	assert.False(t, handler.validateSignature(body, "not-a-signature"))
	assert.False(t, handler.validateSignature([]byte(`tampered`), valid))

	// No secret configured means enforcement is off
	open := &WebhookHandler{}
	assert.True(t, open.validateSignature(body, ""))
}

func TestNormalizeSeverity(t *testing.T) {
	assert.Equal(t, db.SeverityCritical, normalizeSeverity("critical"))
	assert.Equal(t, db.SeverityMedium, normalizeSeverity("warning"))
	assert.Equal(t, db.SeverityHigh, normalizeSeverity("error"))
	assert.Equal(t, db.SeverityMedium, normalizeSeverity(""))
	assert.Equal(t, db.SeverityMedium, normalizeSeverity("unknown-tier"))
}

func TestCategoryFromLabels(t *testing.T) {
	assert.Equal(t, "fraud", categoryFromLabels(map[string]interface{}{"category": "fraud"}))
	assert.Equal(t, "other", categoryFromLabels(map[string]interface{}{"category": "nonsense"}))
	assert.Equal(t, "other", categoryFromLabels(map[string]interface{}{}))
}
