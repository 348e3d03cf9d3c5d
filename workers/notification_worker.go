package workers

import (
	"database/sql"
	"encoding/json"
	"log"
	"time"

	"github.com/elite-business/case-tools-new-sub005/services"
)

const maxNotificationRetries = 3

// NotificationWorker drains the PGMQ notification queue and materializes
// in-app notification rows
type NotificationWorker struct {
	PG      *sql.DB
	Service *services.NotificationService
}

// PGMQMessage represents a message read from PGMQ
type PGMQMessage struct {
	MsgID      int64           `json:"msg_id"`
	ReadCT     int             `json:"read_ct"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	Message    json.RawMessage `json:"message"`
}

func NewNotificationWorker(pg *sql.DB, service *services.NotificationService) *NotificationWorker {
	return &NotificationWorker{PG: pg, Service: service}
}

// StartNotificationWorker polls PGMQ until the process exits
func (w *NotificationWorker) StartNotificationWorker() {
	log.Println("Notification worker started, processing messages from PGMQ...")

	if err := w.Service.CreateQueueIfNotExists(); err != nil {
		log.Printf("Failed to ensure notification queue exists: %v", err)
	}

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		w.processQueueMessages(services.NotificationQueueName)
	}
}

func (w *NotificationWorker) processQueueMessages(queueName string) {
	// Visibility timeout 30s, batch of 10
	rows, err := w.PG.Query(`
		SELECT msg_id, read_ct, enqueued_at, message
		FROM pgmq.read($1, 30, 10)
	`, queueName)
	if err != nil {
		log.Printf("Failed to read from queue %s: %v", queueName, err)
		return
	}
	defer rows.Close()

	var messages []PGMQMessage
	for rows.Next() {
		var m PGMQMessage
		if err := rows.Scan(&m.MsgID, &m.ReadCT, &m.EnqueuedAt, &m.Message); err != nil {
			log.Printf("Failed to scan PGMQ message: %v", err)
			continue
		}
		messages = append(messages, m)
	}

	for _, m := range messages {
		w.handleMessage(queueName, m)
	}
}

func (w *NotificationWorker) handleMessage(queueName string, m PGMQMessage) {
	var msg services.NotificationMessage
	if err := json.Unmarshal(m.Message, &msg); err != nil {
		log.Printf("Dropping malformed notification message %d: %v", m.MsgID, err)
		w.archiveMessage(queueName, m.MsgID)
		return
	}

	if _, err := w.Service.Materialize(&msg); err != nil {
		log.Printf("Failed to deliver notification message %d (attempt %d): %v", m.MsgID, m.ReadCT, err)
		if m.ReadCT >= maxNotificationRetries {
			log.Printf("Notification message %d exceeded retry limit, archiving", m.MsgID)
			if recErr := w.Service.RecordFailure(&msg); recErr != nil {
				log.Printf("Failed to record failed notification %d: %v", m.MsgID, recErr)
			}
			w.archiveMessage(queueName, m.MsgID)
		}
		// Otherwise leave it for redelivery after the visibility timeout
		return
	}

	w.deleteMessage(queueName, m.MsgID)
}

// deleteMessage removes a processed message from PGMQ
func (w *NotificationWorker) deleteMessage(queueName string, msgID int64) {
	if _, err := w.PG.Exec(`SELECT pgmq.delete($1, $2::bigint)`, queueName, msgID); err != nil {
		log.Printf("Failed to delete message %d from queue %s: %v", msgID, queueName, err)
	}
}

// archiveMessage moves a poisoned message to the PGMQ archive table
func (w *NotificationWorker) archiveMessage(queueName string, msgID int64) {
	if _, err := w.PG.Exec(`SELECT pgmq.archive($1, $2::bigint)`, queueName, msgID); err != nil {
		log.Printf("Failed to archive message %d from queue %s: %v", msgID, queueName, err)
	}
}
