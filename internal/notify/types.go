package notify

import "time"

// Record statuses stored in notification_history.
const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// NotificationRecord is a row from notification_history.
type NotificationRecord struct {
	ID           int64     `json:"id" yaml:"id"`
	Target       string    `json:"target" yaml:"target"` // redacted Shoutrrr URL
	EventType    string    `json:"event_type" yaml:"event_type"`
	Message      string    `json:"message" yaml:"message"`
	Status       string    `json:"status" yaml:"status"`
	ErrorMessage string    `json:"error_message,omitempty" yaml:"error_message,omitempty"`
	SentAt       time.Time `json:"sent_at,omitempty" yaml:"sent_at,omitempty"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
}
