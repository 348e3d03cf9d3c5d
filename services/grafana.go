package services

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// GrafanaService talks to the Grafana HTTP API for rule discovery and
// dashboard annotations
type GrafanaService struct {
	PG       *sql.DB
	baseURL  string
	apiToken string
	orgID    string

	httpClient *http.Client
}

func NewGrafanaService(pg *sql.DB, baseURL, apiToken, orgID string) *GrafanaService {
	return &GrafanaService{
		PG:       pg,
		baseURL:  baseURL,
		apiToken: apiToken,
		orgID:    orgID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// IsConfigured returns true if the Grafana API connection is configured
func (s *GrafanaService) IsConfigured() bool {
	return s.baseURL != "" && s.apiToken != ""
}

// GrafanaAlertRule is the subset of the provisioning API payload we use
type GrafanaAlertRule struct {
	UID       string            `json:"uid"`
	Title     string            `json:"title"`
	FolderUID string            `json:"folderUID"`
	RuleGroup string            `json:"ruleGroup"`
	Labels    map[string]string `json:"labels,omitempty"`
	IsPaused  bool              `json:"isPaused"`
}

func (s *GrafanaService) doRequest(method, path string, payload interface{}) ([]byte, error) {
	if !s.IsConfigured() {
		return nil, fmt.Errorf("grafana API not configured")
	}

	var body io.Reader
	if payload != nil {
		jsonPayload, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewBuffer(jsonPayload)
	}

	req, err := http.NewRequest(method, s.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiToken)
	if s.orgID != "" {
		req.Header.Set("X-Grafana-Org-Id", s.orgID)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("grafana API returned %s: %s", resp.Status, string(respBody))
	}
	return respBody, nil
}

// ListAlertRules fetches all provisioned alert rules from Grafana
func (s *GrafanaService) ListAlertRules() ([]GrafanaAlertRule, error) {
	body, err := s.doRequest("GET", "/api/v1/provisioning/alert-rules", nil)
	if err != nil {
		return nil, err
	}

	var rules []GrafanaAlertRule
	if err := json.Unmarshal(body, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse alert rules: %w", err)
	}
	return rules, nil
}

// SyncRuleNames refreshes rule_assignments.rule_name from the Grafana rule
// titles. Returns the number of assignments updated.
func (s *GrafanaService) SyncRuleNames() (int, error) {
	rules, err := s.ListAlertRules()
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, rule := range rules {
		result, err := s.PG.Exec(`
			UPDATE rule_assignments SET rule_name = $1, updated_at = NOW()
			WHERE rule_uid = $2 AND (rule_name IS DISTINCT FROM $1)
		`, rule.Title, rule.UID)
		if err != nil {
			log.Printf("Failed to sync name for rule %s: %v", rule.UID, err)
			continue
		}
		if n, _ := result.RowsAffected(); n > 0 {
			updated += int(n)
		}
	}

	log.Printf("Grafana rule sync: %d rules fetched, %d assignments updated", len(rules), updated)
	return updated, nil
}

// Health checks the Grafana API connection
func (s *GrafanaService) Health() error {
	_, err := s.doRequest("GET", "/api/health", nil)
	return err
}

// AnnotateResolution posts a dashboard annotation when a case is resolved so
// the resolution shows up on the panels the alert came from
func (s *GrafanaService) AnnotateResolution(caseNumber, resolution string, labels map[string]interface{}) error {
	tags := []string{"casetools", caseNumber}
	if category, ok := labels["category"].(string); ok && category != "" {
		tags = append(tags, category)
	}

	payload := map[string]interface{}{
		"time": time.Now().UnixMilli(),
		"tags": tags,
		"text": fmt.Sprintf("Case %s resolved: %s", caseNumber, resolution),
	}

	_, err := s.doRequest("POST", "/api/annotations", payload)
	if err != nil {
		return fmt.Errorf("failed to create annotation: %w", err)
	}
	return nil
}
