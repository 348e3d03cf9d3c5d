package services

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/elite-business/case-tools-new-sub005/db"
)

// NotificationQueueName is the PGMQ queue case notifications flow through
const NotificationQueueName = "case_notifications"

// NotificationMessage represents a message in the notification queue
type NotificationMessage struct {
	UserID     string                 `json:"user_id"`
	CaseID     string                 `json:"case_id"`
	Type       string                 `json:"type"`     // assigned, escalated, resolved, sla_breach
	Priority   string                 `json:"priority"` // high, medium, low
	Title      string                 `json:"title"`
	Message    string                 `json:"message"`
	Data       map[string]interface{} `json:"data,omitempty"`
	RetryCount int                    `json:"retry_count"`
	CreatedAt  time.Time              `json:"created_at"`
}

// NotificationSender enqueues notification messages for async delivery
type NotificationSender interface {
	SendCaseNotification(msg *NotificationMessage) error
}

// NotificationService manages notification records and the PGMQ queue
type NotificationService struct {
	PG *sql.DB
}

func NewNotificationService(pg *sql.DB) *NotificationService {
	return &NotificationService{PG: pg}
}

// CreateQueueIfNotExists ensures the PGMQ queue exists
func (s *NotificationService) CreateQueueIfNotExists() error {
	_, err := s.PG.Exec(`SELECT pgmq.create($1)`, NotificationQueueName)
	if err != nil {
		return fmt.Errorf("failed to create notification queue: %w", err)
	}
	return nil
}

// SendCaseNotification enqueues a notification message to PGMQ
func (s *NotificationService) SendCaseNotification(msg *NotificationMessage) error {
	msgJSON, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal notification message: %v", err)
	}

	_, err = s.PG.Exec(`SELECT pgmq.send($1, $2)`, NotificationQueueName, string(msgJSON))
	if err != nil {
		return fmt.Errorf("failed to send message to queue %s: %v", NotificationQueueName, err)
	}
	return nil
}

// Materialize writes a Notification row from a queued message. Called by the
// notification worker after it reads the message from PGMQ.
func (s *NotificationService) Materialize(msg *NotificationMessage) (*db.Notification, error) {
	n := &db.Notification{
		ID:        uuid.New().String(),
		UserID:    msg.UserID,
		CaseID:    msg.CaseID,
		Type:      msg.Type,
		Priority:  msg.Priority,
		Title:     msg.Title,
		Message:   msg.Message,
		Status:    db.NotificationStatusDelivered,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.PG.Exec(`
		INSERT INTO notifications (id, user_id, case_id, type, priority, title, message, is_read, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, false, $8, $9)
	`, n.ID, n.UserID, nullIfEmptyStr(n.CaseID), n.Type, n.Priority, n.Title, n.Message, n.Status, n.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert notification: %w", err)
	}
	return n, nil
}

// RecordFailure writes a failed notification row once delivery retries are
// exhausted, so the event still shows up in the user's feed
func (s *NotificationService) RecordFailure(msg *NotificationMessage) error {
	_, err := s.PG.Exec(`
		INSERT INTO notifications (id, user_id, case_id, type, priority, title, message, is_read, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, false, $8, $9)
	`, uuid.New().String(), msg.UserID, nullIfEmptyStr(msg.CaseID), msg.Type, msg.Priority,
		msg.Title, msg.Message, db.NotificationStatusFailed, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record notification failure: %w", err)
	}
	return nil
}

// ListForUser returns a user's notifications, newest first
func (s *NotificationService) ListForUser(userID string, unreadOnly bool, limit int) ([]db.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := `
		SELECT id, user_id, COALESCE(case_id::text, '') as case_id, type, priority, title, message,
		       is_read, status, created_at, read_at
		FROM notifications
		WHERE user_id = $1
	`
	if unreadOnly {
		query += ` AND is_read = false`
	}
	query += ` ORDER BY created_at DESC LIMIT $2`

	rows, err := s.PG.Query(query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []db.Notification
	for rows.Next() {
		var n db.Notification
		var readAt sql.NullTime
		if err := rows.Scan(&n.ID, &n.UserID, &n.CaseID, &n.Type, &n.Priority,
			&n.Title, &n.Message, &n.IsRead, &n.Status, &n.CreatedAt, &readAt); err != nil {
			continue
		}
		if readAt.Valid {
			n.ReadAt = &readAt.Time
		}
		notifications = append(notifications, n)
	}
	return notifications, nil
}

// MarkRead marks a single notification as read
func (s *NotificationService) MarkRead(userID, notificationID string) error {
	result, err := s.PG.Exec(`
		UPDATE notifications SET is_read = true, read_at = NOW()
		WHERE id = $1 AND user_id = $2
	`, notificationID, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("notification not found")
	}
	return nil
}

// MarkAllRead marks all of a user's notifications as read
func (s *NotificationService) MarkAllRead(userID string) (int64, error) {
	result, err := s.PG.Exec(`
		UPDATE notifications SET is_read = true, read_at = NOW()
		WHERE user_id = $1 AND is_read = false
	`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// UnreadCount returns the number of unread notifications for a user
func (s *NotificationService) UnreadCount(userID string) (int, error) {
	var count int
	err := s.PG.QueryRow(`
		SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = false
	`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}
