package services

import (
	"database/sql"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/spf13/cast"

	"github.com/elite-business/case-tools-new-sub005/db"
)

// SettingsService stores admin-tunable settings and system log rows
type SettingsService struct {
	PG *sql.DB
}

func NewSettingsService(pg *sql.DB) *SettingsService {
	return &SettingsService{PG: pg}
}

// Get returns a raw setting value, empty string when unset
func (s *SettingsService) Get(key string) (string, error) {
	var value string
	err := s.PG.QueryRow(`SELECT value FROM system_settings WHERE key = $1`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return value, nil
}

// GetInt returns a setting coerced to int, falling back to def when unset or unparsable
func (s *SettingsService) GetInt(key string, def int) int {
	value, err := s.Get(key)
	if err != nil || value == "" {
		return def
	}
	n, err := cast.ToIntE(value)
	if err != nil {
		log.Printf("Setting %s has non-integer value %q, using default %d", key, value, def)
		return def
	}
	return n
}

// GetString returns a setting, falling back to def when unset
func (s *SettingsService) GetString(key string, def string) string {
	value, err := s.Get(key)
	if err != nil || value == "" {
		return def
	}
	return value
}

// Set upserts a setting value
func (s *SettingsService) Set(key, value, updatedBy string) error {
	_, err := s.PG.Exec(`
		INSERT INTO system_settings (key, value, updated_at, updated_by)
		VALUES ($1, $2, NOW(), $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW(), updated_by = EXCLUDED.updated_by
	`, key, value, nullIfEmptyStr(updatedBy))
	if err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}

// List returns all settings
func (s *SettingsService) List() ([]db.SystemSetting, error) {
	rows, err := s.PG.Query(`
		SELECT key, value, updated_at, COALESCE(updated_by::text, '') as updated_by
		FROM system_settings ORDER BY key
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	defer rows.Close()

	var settings []db.SystemSetting
	for rows.Next() {
		var st db.SystemSetting
		if err := rows.Scan(&st.Key, &st.Value, &st.UpdatedAt, &st.UpdatedBy); err != nil {
			continue
		}
		settings = append(settings, st)
	}
	return settings, nil
}

// LogEvent writes a system log row. Failures are logged, never propagated.
func (s *SettingsService) LogEvent(level, source, message, userID string) {
	_, err := s.PG.Exec(`
		INSERT INTO system_logs (id, level, source, message, user_id, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`, uuid.New().String(), level, source, message, nullIfEmptyStr(userID))
	if err != nil {
		log.Printf("Failed to write system log: %v", err)
	}
}

// ListLogs returns recent system log rows filtered by level/source
func (s *SettingsService) ListLogs(level, source string, limit int) ([]db.SystemLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `
		SELECT id, level, source, message, COALESCE(user_id::text, '') as user_id, created_at
		FROM system_logs WHERE 1=1
	`
	args := []interface{}{}
	argIdx := 1

	if level != "" {
		query += fmt.Sprintf(" AND level = $%d", argIdx)
		args = append(args, level)
		argIdx++
	}
	if source != "" {
		query += fmt.Sprintf(" AND source = $%d", argIdx)
		args = append(args, source)
		argIdx++
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.PG.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list system logs: %w", err)
	}
	defer rows.Close()

	var logs []db.SystemLog
	for rows.Next() {
		var l db.SystemLog
		if err := rows.Scan(&l.ID, &l.Level, &l.Source, &l.Message, &l.UserID, &l.CreatedAt); err != nil {
			continue
		}
		logs = append(logs, l)
	}
	return logs, nil
}
