// Package dashboard holds the client's application state: the loaded report,
// the upload history, the search term and the busy flags. Every surface
// (CLI, terminal UI, web page) drives the same State.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/dustin/go-humanize"

	"chemviz/internal/api"
	"chemviz/internal/config"
	"chemviz/internal/events"
	"chemviz/internal/models"
	"chemviz/internal/session"
)

// ErrNoReport is returned by report operations when nothing is loaded.
var ErrNoReport = errors.New("no report loaded")

// NoDataMessage replaces the report when the summary cannot be fetched.
const NoDataMessage = "No data available. Please upload a CSV."

// Backend is the subset of the API client the dashboard needs.
type Backend interface {
	History(ctx context.Context) ([]models.HistoryEntry, api.Result)
	Summary(ctx context.Context, id *int64) (*models.SummaryReport, api.Result)
	Upload(ctx context.Context, filename string, content io.Reader) (*models.HistoryEntry, api.Result)
	Report(ctx context.Context, id int64) ([]byte, api.Result)
}

// State is safe for concurrent use. The mutex is never held across a
// backend call; each transition is applied once the call has resolved.
type State struct {
	session *session.Manager
	backend Backend
	bus     *events.Bus

	mu          sync.RWMutex
	report      *models.SummaryReport
	history     []models.HistoryEntry
	search      string
	loading     bool
	uploading   bool
	downloading bool
	errMsg      string
	alert       string
}

// New wires the state to the session so that any logout, including an
// expiry triggered by a 401 deep inside the API client, discards the report.
func New(mgr *session.Manager, backend Backend, bus *events.Bus) *State {
	if bus == nil {
		bus = events.NewBus()
	}
	s := &State{session: mgr, backend: backend, bus: bus}
	mgr.OnLogin(func() {
		s.publish(events.LoggedIn, events.SeverityInfo, "Signed in", nil)
	})
	mgr.OnLogout(s.sessionEnded)
	return s
}

// Bus returns the bus state transitions are published on.
func (s *State) Bus() *events.Bus { return s.bus }

// Session returns the underlying session manager.
func (s *State) Session() *session.Manager { return s.session }

func (s *State) sessionEnded(reason session.Reason) {
	s.mu.Lock()
	s.report = nil
	s.history = nil
	s.errMsg = ""
	s.alert = ""
	s.mu.Unlock()

	if reason == session.ReasonExpired {
		s.publish(events.SessionExpired, events.SeverityWarning,
			"Session expired, the backend rejected the stored credentials", nil)
		return
	}
	s.publish(events.LoggedOut, events.SeverityInfo, "Signed out", nil)
}

// Login stores the credentials and loads the latest summary and history.
// A storage error is returned after the refresh; the session is usable
// for this process either way.
func (s *State) Login(ctx context.Context, username, password string) error {
	err := s.session.Login(username, password)
	s.Refresh(ctx)
	return err
}

// Logout ends the session; the logout hook discards the report.
func (s *State) Logout() error {
	return s.session.Logout()
}

// Refresh reloads the latest summary and the history, in that order.
func (s *State) Refresh(ctx context.Context) {
	if !s.session.Authenticated() {
		return
	}
	s.reload(ctx)
}

// reload fetches the latest summary and then, unless that ended the
// session, the history.
func (s *State) reload(ctx context.Context) {
	err := s.FetchSummary(ctx, nil)
	if errors.Is(err, api.ErrAuthExpired) || !s.session.Authenticated() {
		return
	}
	s.FetchHistory(ctx)
}

// FetchHistory replaces the history on success. Failures other than an
// expired session leave the previous history in place and are only logged.
func (s *State) FetchHistory(ctx context.Context) error {
	entries, res := s.backend.History(ctx)
	switch {
	case res.OK() && !s.session.Authenticated():
		// signed out while the request was in flight
	case res.OK():
		s.mu.Lock()
		s.history = entries
		s.mu.Unlock()
		s.publish(events.HistoryLoaded, events.SeverityInfo,
			fmt.Sprintf("Loaded %d past uploads", len(entries)), nil)
	case res.Expired():
	default:
		config.Logger.Debugf("dashboard: history fetch ignored: %v", res)
	}
	return res.AsError()
}

// FetchSummary loads the latest report, or the one for id.
func (s *State) FetchSummary(ctx context.Context, id *int64) error {
	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()
	s.publish(events.SummaryLoading, events.SeverityInfo, "Loading summary", nil)

	report, res := s.backend.Summary(ctx, id)
	// Signed out or expired while the request was in flight: the logout
	// hook already cleared the state.
	stale := !s.session.Authenticated()

	s.mu.Lock()
	s.loading = false
	switch {
	case stale:
	case res.OK():
		s.report = report
		s.errMsg = ""
	default:
		s.report = nil
		s.errMsg = NoDataMessage
	}
	s.mu.Unlock()

	switch {
	case stale:
	case res.OK():
		s.publish(events.SummaryLoaded, events.SeverityInfo,
			fmt.Sprintf("Loaded %s (%d rows)", report.FileName, report.TotalCount),
			map[string]string{"dataset": strconv.FormatInt(report.ID, 10)})
	default:
		s.publish(events.SummaryFailed, events.SeverityInfo, NoDataMessage,
			map[string]string{"error": res.Message()})
	}
	return res.AsError()
}

// Upload sends the CSV and, once the backend has accepted it, refreshes the
// summary and then the history. A rejected upload only sets the alert.
func (s *State) Upload(ctx context.Context, filename string, content io.Reader) error {
	s.mu.Lock()
	s.uploading = true
	s.alert = ""
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.uploading = false
		s.mu.Unlock()
	}()

	name := filepath.Base(filename)
	s.publish(events.UploadStarted, events.SeverityInfo, "Uploading "+name,
		map[string]string{"file": name})

	created, res := s.backend.Upload(ctx, filename, content)
	if !res.OK() {
		msg := "Upload failed: " + res.Message()
		if !res.Expired() {
			s.mu.Lock()
			s.alert = msg
			s.mu.Unlock()
		}
		s.publish(events.UploadFailed, events.SeverityWarning, msg,
			map[string]string{"file": name})
		return res
	}

	meta := map[string]string{"file": name}
	if created != nil {
		meta["dataset"] = strconv.FormatInt(created.ID, 10)
	}
	s.publish(events.UploadCompleted, events.SeverityInfo, "Uploaded "+name, meta)

	s.reload(ctx)
	return nil
}

// FetchReport downloads the PDF for the loaded report. Without a report it
// returns ErrNoReport and sends nothing.
func (s *State) FetchReport(ctx context.Context) (int64, []byte, error) {
	s.mu.Lock()
	if s.report == nil {
		s.mu.Unlock()
		return 0, nil, ErrNoReport
	}
	id := s.report.ID
	s.downloading = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.downloading = false
		s.mu.Unlock()
	}()

	data, res := s.backend.Report(ctx, id)
	if !res.OK() {
		if !res.Expired() {
			s.publish(events.ReportFailed, events.SeverityWarning,
				"Report download failed: "+res.Message(),
				map[string]string{"dataset": strconv.FormatInt(id, 10)})
		}
		return id, nil, res
	}
	return id, data, nil
}

// DownloadReport saves the PDF as report_<id>.pdf inside dir and returns the
// written path.
func (s *State) DownloadReport(ctx context.Context, dir string) (string, error) {
	id, data, err := s.FetchReport(ctx)
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, api.ReportFilename(id))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	s.publish(events.ReportDownloaded, events.SeverityInfo,
		fmt.Sprintf("Saved %s (%s)", filepath.Base(path), humanize.Bytes(uint64(len(data)))),
		map[string]string{"dataset": strconv.FormatInt(id, 10), "path": path})
	return path, nil
}

// SetSearch changes the filter applied to the report rows.
func (s *State) SetSearch(term string) {
	s.mu.Lock()
	changed := s.search != term
	s.search = term
	s.mu.Unlock()
	if changed {
		s.publish(events.SearchChanged, events.SeverityInfo, "Search: "+term, nil)
	}
}

// DismissAlert clears the last upload alert.
func (s *State) DismissAlert() {
	s.mu.Lock()
	s.alert = ""
	s.mu.Unlock()
}

// VisibleRows is the report's rows filtered by the current search term.
func (s *State) VisibleRows() []models.EquipmentRow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.report == nil {
		return []models.EquipmentRow{}
	}
	return Filter(s.report.Data, s.search)
}

// Report returns the loaded report, or nil.
func (s *State) Report() *models.SummaryReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.report
}

func (s *State) publish(t events.EventType, sev events.Severity, msg string, meta map[string]string) {
	s.bus.Publish(events.Event{Type: t, Severity: sev, Message: msg, Metadata: meta})
}
