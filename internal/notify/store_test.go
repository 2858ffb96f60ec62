package notify

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestRecordAndRecentHistory(t *testing.T) {
	conn := setupTestDB(t)

	for i, status := range []string{StatusSent, StatusFailed, StatusSent} {
		rec := &NotificationRecord{
			Target:    "discord://********@channel",
			EventType: "upload_failed",
			Message:   "msg",
			Status:    status,
		}
		if status == StatusSent {
			rec.SentAt = time.Date(2026, 10, 1, 9, i, 0, 0, time.UTC)
		}
		if _, err := RecordNotification(conn, rec); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}

	got, err := RecentHistory(conn, 2)
	if err != nil {
		t.Fatalf("RecentHistory: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[0].ID <= got[1].ID {
		t.Errorf("records not newest first: %d, %d", got[0].ID, got[1].ID)
	}
	if got[0].SentAt.Minute() != 2 {
		t.Errorf("sent_at = %v", got[0].SentAt)
	}
	if got[0].CreatedAt.IsZero() {
		t.Error("created_at not parsed")
	}
}

func TestPruneHistory(t *testing.T) {
	conn := setupTestDB(t)
	for i := 0; i < 5; i++ {
		RecordNotification(conn, &NotificationRecord{Target: "t", EventType: "e", Message: "m", Status: StatusSent})
	}

	n, err := PruneHistory(conn, 2)
	if err != nil {
		t.Fatalf("PruneHistory: %v", err)
	}
	if n != 3 {
		t.Errorf("pruned %d rows, want 3", n)
	}
	left, _ := RecentHistory(conn, 10)
	if len(left) != 2 {
		t.Errorf("%d rows left, want 2", len(left))
	}
}

func TestRecordNotificationError(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO notification_history")).
		WillReturnError(errors.New("disk I/O error"))

	if _, err := RecordNotification(conn, &NotificationRecord{Status: StatusSent}); err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
