package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/elite-business/case-tools-new-sub005/db"
	"github.com/elite-business/case-tools-new-sub005/services"
)

type WebhookHandler struct {
	caseService       *services.CaseService
	ruleAssignments   *services.RuleAssignmentService
	assignments       *services.AssignmentService
	alertHistory      *services.AlertHistoryService
	dedup             *services.DedupService
	grafana           *services.GrafanaService
	webhookSecret     string
	defaultTeamID     string
}

func NewWebhookHandler(
	caseService *services.CaseService,
	ruleAssignments *services.RuleAssignmentService,
	assignments *services.AssignmentService,
	alertHistory *services.AlertHistoryService,
	dedup *services.DedupService,
	grafana *services.GrafanaService,
	webhookSecret string,
	defaultTeamID string,
) *WebhookHandler {
	return &WebhookHandler{
		caseService:     caseService,
		ruleAssignments: ruleAssignments,
		assignments:     assignments,
		alertHistory:    alertHistory,
		dedup:           dedup,
		grafana:         grafana,
		webhookSecret:   webhookSecret,
		defaultTeamID:   defaultTeamID,
	}
}

// GrafanaWebhook is the unified alerting webhook payload
type GrafanaWebhook struct {
	Receiver          string            `json:"receiver"`
	Status            string            `json:"status"` // firing, resolved
	OrgID             int64             `json:"orgId"`
	Alerts            []GrafanaAlert    `json:"alerts"`
	GroupLabels       map[string]string `json:"groupLabels"`
	CommonLabels      map[string]string `json:"commonLabels"`
	CommonAnnotations map[string]string `json:"commonAnnotations"`
	ExternalURL       string            `json:"externalURL"`
	Title             string            `json:"title"`
	State             string            `json:"state"`
	Message           string            `json:"message"`
}

type GrafanaAlert struct {
	Status       string             `json:"status"`
	Labels       map[string]string  `json:"labels"`
	Annotations  map[string]string  `json:"annotations"`
	StartsAt     time.Time          `json:"startsAt"`
	EndsAt       time.Time          `json:"endsAt"`
	GeneratorURL string             `json:"generatorURL"`
	Fingerprint  string             `json:"fingerprint"`
	DashboardURL string             `json:"dashboardURL"`
	PanelURL     string             `json:"panelURL"`
	Values       map[string]float64 `json:"values"`
}

// ProcessedAlert is the normalized form every incoming alert reduces to
type ProcessedAlert struct {
	RuleUID     string                 `json:"rule_uid"`
	RuleName    string                 `json:"rule_name"`
	Status      string                 `json:"status"` // firing, resolved
	Severity    string                 `json:"severity"`
	Summary     string                 `json:"summary"`
	Description string                 `json:"description"`
	Labels      map[string]interface{} `json:"labels"`
	Annotations map[string]interface{} `json:"annotations"`
	StartsAt    time.Time              `json:"starts_at"`
	EndsAt      *time.Time             `json:"ends_at,omitempty"`
	Fingerprint string                 `json:"fingerprint"`
}

// POST /webhook/grafana and /webhook/grafana/:rule_uid
func (h *WebhookHandler) ReceiveGrafanaWebhook(c *gin.Context) {
	rawBody, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	if !h.validateSignature(rawBody, c.GetHeader("X-Grafana-Signature")) {
		log.Printf("Webhook rejected: invalid signature from %s", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	var rawPayload map[string]interface{}
	if err := json.Unmarshal(rawBody, &rawPayload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON payload"})
		return
	}

	alerts := h.processGrafanaWebhook(rawBody, rawPayload)
	if ruleUID := c.Param("rule_uid"); ruleUID != "" {
		// Per-rule contact points post to /webhook/grafana/:rule_uid,
		// the path segment stands in for the missing label
		for i := range alerts {
			if alerts[i].RuleUID == "" {
				alerts[i].RuleUID = ruleUID
			}
		}
	}
	log.Printf("Received Grafana webhook with %d alerts", len(alerts))

	created, deduplicated, resolved := 0, 0, 0
	for _, alert := range alerts {
		outcome, err := h.routeAlert(c.Request.Context(), alert)
		if err != nil {
			log.Printf("Failed to process alert %s: %v", alert.Fingerprint, err)
			continue
		}
		switch outcome {
		case db.AlertOutcomeCaseCreated:
			created++
		case db.AlertOutcomeDeduplicated:
			deduplicated++
		case db.AlertOutcomeCaseResolved:
			resolved++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      "webhook processed",
		"alerts_count": len(alerts),
		"created":      created,
		"deduplicated": deduplicated,
		"resolved":     resolved,
	})
}

// validateSignature checks the hex HMAC-SHA256 of the raw body against the
// X-Grafana-Signature header using a constant-time compare
func (h *WebhookHandler) validateSignature(body []byte, signature string) bool {
	if h.webhookSecret == "" {
		// Signature enforcement is opt-in via WEBHOOK_SECRET
		return true
	}
	if signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.webhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (h *WebhookHandler) processGrafanaWebhook(rawBody []byte, rawPayload map[string]interface{}) []ProcessedAlert {
	// Try to unmarshal into typed struct first
	var webhook GrafanaWebhook
	if err := json.Unmarshal(rawBody, &webhook); err != nil || len(webhook.Alerts) == 0 {
		log.Printf("Falling back to legacy Grafana payload parsing")
		return h.processGrafanaWebhookLegacy(rawPayload)
	}

	var alerts []ProcessedAlert
	for _, ga := range webhook.Alerts {
		alert := ProcessedAlert{
			RuleUID:     ga.Labels["__alert_rule_uid__"],
			RuleName:    ga.Labels["alertname"],
			Status:      ga.Status,
			Severity:    normalizeSeverity(ga.Labels["severity"]),
			Summary:     ga.Annotations["summary"],
			Description: ga.Annotations["description"],
			Labels:      toInterfaceMap(ga.Labels),
			Annotations: toInterfaceMap(ga.Annotations),
			StartsAt:    ga.StartsAt,
			Fingerprint: ga.Fingerprint,
		}
		if alert.Summary == "" {
			alert.Summary = ga.Labels["alertname"]
		}
		if !ga.EndsAt.IsZero() && ga.EndsAt.Year() > 1 {
			endsAt := ga.EndsAt
			alert.EndsAt = &endsAt
		}
		if alert.Fingerprint == "" {
			alert.Fingerprint = fingerprintFromLabels(ga.Labels)
		}
		alerts = append(alerts, alert)
	}
	return alerts
}

// Legacy dashboard-alert payloads carry state/ruleName at the top level
func (h *WebhookHandler) processGrafanaWebhookLegacy(payload map[string]interface{}) []ProcessedAlert {
	getString := func(key string) string {
		if v, ok := payload[key].(string); ok {
			return v
		}
		return ""
	}

	state := getString("state")
	status := "firing"
	if state == "ok" || state == "resolved" {
		status = "resolved"
	}

	ruleName := getString("ruleName")
	if ruleName == "" {
		ruleName = getString("title")
	}
	if ruleName == "" {
		return nil
	}

	alert := ProcessedAlert{
		RuleUID:     getString("ruleUid"),
		RuleName:    ruleName,
		Status:      status,
		Severity:    db.SeverityMedium,
		Summary:     ruleName,
		Description: getString("message"),
		Labels:      map[string]interface{}{},
		Annotations: map[string]interface{}{},
		StartsAt:    time.Now().UTC(),
		Fingerprint: fmt.Sprintf("legacy-%s", ruleName),
	}
	if tags, ok := payload["tags"].(map[string]interface{}); ok {
		alert.Labels = tags
		if sev, ok := tags["severity"].(string); ok {
			alert.Severity = normalizeSeverity(sev)
		}
	}
	return []ProcessedAlert{alert}
}

// routeAlert runs one alert through the pipeline and returns the recorded outcome
func (h *WebhookHandler) routeAlert(ctx context.Context, alert ProcessedAlert) (string, error) {
	var outcome, caseID string
	var err error

	switch alert.Status {
	case "firing":
		outcome, caseID, err = h.handleFiringAlert(ctx, alert)
	case "resolved":
		outcome, caseID, err = h.handleResolvedAlert(ctx, alert)
	default:
		log.Printf("Skipping alert with unknown status %q", alert.Status)
		return "", nil
	}
	if err != nil {
		return "", err
	}

	history := &db.AlertHistory{
		RuleUID:     alert.RuleUID,
		RuleName:    alert.RuleName,
		Fingerprint: alert.Fingerprint,
		Status:      alert.Status,
		Severity:    alert.Severity,
		Labels:      alert.Labels,
		Annotations: alert.Annotations,
		StartsAt:    alert.StartsAt,
		EndsAt:      alert.EndsAt,
		CaseID:      caseID,
		Outcome:     outcome,
	}
	if err := h.alertHistory.Record(history); err != nil {
		log.Printf("Failed to record alert history for %s: %v", alert.Fingerprint, err)
	}
	return outcome, nil
}

func (h *WebhookHandler) handleFiringAlert(ctx context.Context, alert ProcessedAlert) (string, string, error) {
	// Dedup fast path through Redis, database fallback when Redis is down
	claimed, claimErr := h.dedup.ClaimFingerprint(ctx, alert.Fingerprint)
	if claimErr != nil {
		log.Printf("Dedup claim unavailable, using database lookup: %v", claimErr)
	}

	existing, err := h.caseService.FindOpenCaseByFingerprint(alert.Fingerprint)
	if err != nil {
		return "", "", err
	}
	if existing != nil && (claimErr != nil || !claimed) {
		if err := h.caseService.AppendAlert(existing.ID, db.SystemUserGrafana); err != nil {
			return "", "", err
		}
		log.Printf("Alert %s deduplicated into case %s", alert.Fingerprint, existing.CaseNumber)
		return db.AlertOutcomeDeduplicated, existing.ID, nil
	}
	if existing != nil {
		// Redis claim succeeded but an open case still exists (window expired
		// while the case stayed open). Append rather than open a duplicate.
		if err := h.caseService.AppendAlert(existing.ID, db.SystemUserGrafana); err != nil {
			return "", "", err
		}
		return db.AlertOutcomeDeduplicated, existing.ID, nil
	}

	newCase, err := h.openCase(alert)
	if err != nil {
		return "", "", err
	}
	log.Printf("Opened case %s from alert %s (rule %s)", newCase.CaseNumber, alert.Fingerprint, alert.RuleUID)
	return db.AlertOutcomeCaseCreated, newCase.ID, nil
}

func (h *WebhookHandler) handleResolvedAlert(ctx context.Context, alert ProcessedAlert) (string, string, error) {
	existing, err := h.caseService.FindOpenCaseByFingerprint(alert.Fingerprint)
	if err != nil {
		return "", "", err
	}
	if existing == nil {
		log.Printf("Resolved alert %s matched no open case", alert.Fingerprint)
		return db.AlertOutcomeUnmatched, "", nil
	}

	resolution := fmt.Sprintf("Alert resolved in Grafana at %s", time.Now().UTC().Format(time.RFC3339))
	resolved, err := h.caseService.Resolve(existing.ID, db.ResolveCaseRequest{Resolution: resolution}, db.SystemUserGrafana)
	if err != nil {
		// Cases already in a terminal path keep their state, the alert is still recorded
		log.Printf("Could not auto-resolve case %s: %v", existing.CaseNumber, err)
		return db.AlertOutcomeUnmatched, existing.ID, nil
	}

	h.dedup.ReleaseFingerprint(ctx, alert.Fingerprint)

	if h.grafana != nil && h.grafana.IsConfigured() {
		if err := h.grafana.AnnotateResolution(resolved.CaseNumber, resolution, resolved.Labels); err != nil {
			log.Printf("Failed to annotate Grafana for case %s: %v", resolved.CaseNumber, err)
		}
	}
	return db.AlertOutcomeCaseResolved, existing.ID, nil
}

// openCase applies the rule assignment (or the default team) and creates the case
func (h *WebhookHandler) openCase(alert ProcessedAlert) (*db.Case, error) {
	severity := alert.Severity
	category := categoryFromLabels(alert.Labels)
	var assignedTo, teamID string

	if alert.RuleUID != "" {
		ra, err := h.ruleAssignments.GetByRuleUID(alert.RuleUID)
		if err != nil {
			log.Printf("Rule assignment lookup failed for %s: %v", alert.RuleUID, err)
		} else if ra != nil {
			if ra.SeverityOverride != "" {
				severity = ra.SeverityOverride
			}
			if ra.CategoryOverride != "" {
				category = ra.CategoryOverride
			}
			resolved, err := h.assignments.Resolve(ra)
			if err != nil {
				log.Printf("Assignee resolution failed for rule %s: %v", alert.RuleUID, err)
			} else if resolved.Found {
				assignedTo = resolved.UserID
				teamID = resolved.TeamID
			}
		}
	}

	// Unmatched rules land on the default team, unassigned
	if assignedTo == "" && teamID == "" {
		teamID = h.defaultTeamID
	}

	title := alert.Summary
	if title == "" {
		title = alert.RuleName
	}

	newCase := &db.Case{
		Title:       title,
		Description: alert.Description,
		Severity:    severity,
		Category:    category,
		RuleUID:     alert.RuleUID,
		Fingerprint: alert.Fingerprint,
		Labels:      alert.Labels,
		Annotations: alert.Annotations,
		AssignedTo:  assignedTo,
		TeamID:      teamID,
		CreatedBy:   db.SystemUserGrafana,
		CreatedAt:   time.Now().UTC(),
	}
	return h.caseService.CreateFromAlert(newCase)
}

func normalizeSeverity(severity string) string {
	switch severity {
	case db.SeverityCritical, db.SeverityHigh, db.SeverityMedium, db.SeverityLow, db.SeverityInfo:
		return severity
	case "warning":
		return db.SeverityMedium
	case "error":
		return db.SeverityHigh
	default:
		return db.SeverityMedium
	}
}

func categoryFromLabels(labels map[string]interface{}) string {
	if category, ok := labels["category"].(string); ok {
		switch category {
		case "billing", "fraud", "interconnect", "roaming", "usage":
			return category
		}
	}
	return "other"
}

func fingerprintFromLabels(labels map[string]string) string {
	return fmt.Sprintf("%s-%s-%s", labels["alertname"], labels["instance"], labels["grafana_folder"])
}

func toInterfaceMap(m map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
