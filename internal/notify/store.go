package notify

import (
	"database/sql"
	"fmt"
	"time"
)

const timeFormat = "2006-01-02 15:04:05"

// RecordNotification inserts a row into notification_history.
func RecordNotification(db *sql.DB, rec *NotificationRecord) (int64, error) {
	var sentAt interface{}
	if !rec.SentAt.IsZero() {
		sentAt = rec.SentAt.UTC().Format(timeFormat)
	}

	res, err := db.Exec(`
		INSERT INTO notification_history
			(target, event_type, message, status, error_message, sent_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.Target, rec.EventType, rec.Message, rec.Status, rec.ErrorMessage, sentAt)
	if err != nil {
		return 0, fmt.Errorf("record notification: %w", err)
	}
	return res.LastInsertId()
}

// RecentHistory returns the latest N notification records, newest first.
func RecentHistory(db *sql.DB, limit int) ([]NotificationRecord, error) {
	rows, err := db.Query(`
		SELECT id, target, event_type, message, status,
		       COALESCE(error_message,''), COALESCE(sent_at,''), created_at
		FROM notification_history
		ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent history: %w", err)
	}
	defer rows.Close()

	var out []NotificationRecord
	for rows.Next() {
		var r NotificationRecord
		var sentAt, createdAt string
		if err := rows.Scan(&r.ID, &r.Target, &r.EventType, &r.Message, &r.Status,
			&r.ErrorMessage, &sentAt, &createdAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		r.SentAt = parseTime(sentAt)
		r.CreatedAt = parseTime(createdAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// PruneHistory keeps only the newest keep records.
func PruneHistory(db *sql.DB, keep int) (int64, error) {
	res, err := db.Exec(`
		DELETE FROM notification_history
		WHERE id NOT IN (SELECT id FROM notification_history ORDER BY id DESC LIMIT ?)`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return res.RowsAffected()
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		// DATETIME columns may come back as time values, which database/sql
		// formats as RFC 3339
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t
}
