package events

import "time"

// EventType identifies the kind of event being published.
type EventType string

const (
	// Session events
	LoggedIn       EventType = "logged_in"
	LoggedOut      EventType = "logged_out"
	SessionExpired EventType = "session_expired"

	// Data events
	SummaryLoading  EventType = "summary_loading"
	SummaryLoaded   EventType = "summary_loaded"
	SummaryFailed   EventType = "summary_failed"
	HistoryLoaded   EventType = "history_loaded"
	SearchChanged   EventType = "search_changed"
	UploadStarted   EventType = "upload_started"
	UploadCompleted EventType = "upload_completed"
	UploadFailed    EventType = "upload_failed"

	// Report events
	ReportDownloaded EventType = "report_downloaded"
	ReportFailed     EventType = "report_failed"
)

// StateChanges is every event after which a rendered dashboard is out of date.
var StateChanges = []EventType{
	LoggedIn, LoggedOut, SessionExpired,
	SummaryLoading, SummaryLoaded, SummaryFailed, HistoryLoaded, SearchChanged,
	UploadStarted, UploadCompleted, UploadFailed,
	ReportDownloaded, ReportFailed,
}

// Outcomes are the events worth telling someone about outside the process.
var Outcomes = []EventType{
	SessionExpired, SummaryFailed,
	UploadCompleted, UploadFailed,
	ReportDownloaded, ReportFailed,
}

// Severity indicates the urgency of an event.
type Severity int

const (
	SeverityInfo     Severity = 0
	SeverityWarning  Severity = 1
	SeverityCritical Severity = 2
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ParseSeverity is the inverse of String; unknown names map to info.
func ParseSeverity(s string) Severity {
	switch s {
	case "warning":
		return SeverityWarning
	case "critical":
		return SeverityCritical
	default:
		return SeverityInfo
	}
}

// Event is the payload published through the bus.
type Event struct {
	Type      EventType         `json:"type"`
	Severity  Severity          `json:"severity"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}
