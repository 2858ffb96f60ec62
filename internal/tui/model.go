// Package tui is the terminal dashboard built on Bubble Tea.
package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"

	"chemviz/internal/api"
	"chemviz/internal/dashboard"
)

type mode int

const (
	loginMode mode = iota
	dashboardMode
	uploadMode
)

type focus int

const (
	focusSearch focus = iota
	focusHistory
	focusRows
)

// opDoneMsg reports the end of a backend operation.
type opDoneMsg struct {
	status string
	err    error
}

// Model is the Bubble Tea model.
type Model struct {
	ctx         context.Context
	state       *dashboard.State
	downloadDir string

	mode  mode
	focus focus

	username textinput.Model
	password textinput.Model
	search   textinput.Model
	path     textinput.Model

	history table.Model
	rows    table.Model
	help    help.Model

	snap   dashboard.Snapshot
	busy   string
	status string
	err    error
	width  int
}

// New builds the model. Reports are saved into downloadDir.
func New(ctx context.Context, state *dashboard.State, downloadDir string) Model {
	username := textinput.New()
	username.Placeholder = "username"
	username.Prompt = "Username: "

	password := textinput.New()
	password.Placeholder = "password"
	password.Prompt = "Password: "
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'

	search := textinput.New()
	search.Placeholder = "Search by name or type..."
	search.Prompt = "🔍 "

	path := textinput.New()
	path.Placeholder = "/path/to/equipment.csv"
	path.Prompt = "CSV file: "

	history := table.New(
		table.WithColumns([]table.Column{
			{Title: "ID", Width: 5},
			{Title: "File", Width: 28},
			{Title: "Uploaded", Width: 16},
			{Title: "Rows", Width: 6},
		}),
		table.WithHeight(6),
	)
	rows := table.New(
		table.WithColumns([]table.Column{
			{Title: "Name", Width: 22},
			{Title: "Type", Width: 16},
			{Title: "Flowrate", Width: 10},
			{Title: "Pressure", Width: 10},
			{Title: "Temperature", Width: 12},
		}),
		table.WithHeight(12),
	)

	m := Model{
		ctx:         ctx,
		state:       state,
		downloadDir: downloadDir,
		username:    username,
		password:    password,
		search:      search,
		path:        path,
		history:     history,
		rows:        rows,
		help:        help.New(),
	}
	m.sync()
	if m.snap.Authenticated {
		m.mode = dashboardMode
		m.setFocus(focusSearch)
	} else {
		m.username.Focus()
	}
	return m
}

func (m Model) Init() tea.Cmd {
	if m.snap.Authenticated {
		return tea.Batch(textinput.Blink, m.refreshCmd())
	}
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case opDoneMsg:
		m.busy = ""
		m.status = msg.status
		m.err = msg.err
		m.sync()
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.rows.SetHeight(max(msg.Height-24, 5))
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			if m.mode == uploadMode {
				m.mode = dashboardMode
				m.path.Blur()
				m.setFocus(focusSearch)
				return m, nil
			}
			return m, tea.Quit
		}
		if m.busy != "" {
			return m, nil
		}
		switch m.mode {
		case loginMode:
			return m.updateLogin(msg)
		case uploadMode:
			return m.updateUpload(msg)
		default:
			return m.updateDashboard(msg)
		}
	}
	return m, nil
}

func (m Model) updateLogin(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch {
	case key.Matches(msg, keys.Focus):
		if m.username.Focused() {
			m.username.Blur()
			return m, m.password.Focus()
		}
		m.password.Blur()
		return m, m.username.Focus()
	case key.Matches(msg, keys.Enter):
		if m.username.Focused() {
			m.username.Blur()
			return m, m.password.Focus()
		}
		return m.submitLogin()
	}

	if m.username.Focused() {
		m.username, cmd = m.username.Update(msg)
	} else {
		m.password, cmd = m.password.Update(msg)
	}
	return m, cmd
}

func (m Model) submitLogin() (tea.Model, tea.Cmd) {
	user, pass := m.username.Value(), m.password.Value()
	m.password.SetValue("")
	m.password.Blur()
	m.username.Blur()
	m.mode = dashboardMode
	m.setFocus(focusSearch)
	m.busy = "Loading..."
	return m, m.run(func(ctx context.Context) (string, error) {
		err := m.state.Login(ctx, user, pass)
		return "Signed in as " + user, err
	})
}

func (m Model) updateUpload(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, keys.Enter) {
		return m.submitUpload()
	}
	var cmd tea.Cmd
	m.path, cmd = m.path.Update(msg)
	return m, cmd
}

func (m Model) submitUpload() (tea.Model, tea.Cmd) {
	path := strings.TrimSpace(m.path.Value())
	m.path.SetValue("")
	m.path.Blur()
	m.mode = dashboardMode
	m.setFocus(focusSearch)
	if path == "" {
		return m, nil
	}

	m.busy = "Calculating the Result..."
	return m, m.run(func(ctx context.Context) (string, error) {
		f, err := os.Open(path)
		if err != nil {
			return "", err
		}
		defer f.Close()
		if err := m.state.Upload(ctx, path, f); err != nil {
			return "", err
		}
		return "Uploaded " + filepath.Base(path), nil
	})
}

func (m Model) updateDashboard(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch {
	case key.Matches(msg, keys.Focus):
		m.setFocus((m.focus + 1) % 3)
		return m, nil
	case key.Matches(msg, keys.Upload):
		m.mode = uploadMode
		m.search.Blur()
		m.history.Blur()
		m.rows.Blur()
		return m, m.path.Focus()
	case key.Matches(msg, keys.Download):
		return m.download()
	case key.Matches(msg, keys.Logout):
		err := m.state.Logout()
		m.mode = loginMode
		m.status, m.err = "Signed out", err
		m.sync()
		m.search.Blur()
		return m, m.username.Focus()
	case key.Matches(msg, keys.Refresh):
		m.busy = "Loading..."
		return m, m.refreshCmd()
	case key.Matches(msg, keys.Enter) && m.focus == focusHistory:
		return m.loadSelected()
	}

	switch m.focus {
	case focusSearch:
		m.search, cmd = m.search.Update(msg)
		m.state.SetSearch(m.search.Value())
		m.sync()
	case focusHistory:
		m.history, cmd = m.history.Update(msg)
	case focusRows:
		m.rows, cmd = m.rows.Update(msg)
	}
	return m, cmd
}

func (m Model) download() (tea.Model, tea.Cmd) {
	if !m.snap.CanDownload {
		m.status = "No report loaded."
		return m, nil
	}
	m.busy = "Downloading report..."
	return m, m.run(func(ctx context.Context) (string, error) {
		path, err := m.state.DownloadReport(ctx, m.downloadDir)
		if err != nil {
			return "", err
		}
		size := "?"
		if fi, statErr := os.Stat(path); statErr == nil {
			size = humanize.Bytes(uint64(fi.Size()))
		}
		return fmt.Sprintf("Saved %s (%s)", path, size), nil
	})
}

func (m Model) loadSelected() (tea.Model, tea.Cmd) {
	i := m.history.Cursor()
	if i < 0 || i >= len(m.snap.History) {
		return m, nil
	}
	entry := m.snap.History[i]
	m.busy = "Loading..."
	return m, m.run(func(ctx context.Context) (string, error) {
		id := entry.ID
		if err := m.state.FetchSummary(ctx, &id); err != nil {
			return "", err
		}
		return "Loaded " + entry.FileName, nil
	})
}

func (m Model) refreshCmd() tea.Cmd {
	return m.run(func(ctx context.Context) (string, error) {
		m.state.Refresh(ctx)
		return "", nil
	})
}

// run executes fn off the UI goroutine.
func (m Model) run(fn func(context.Context) (string, error)) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		status, err := fn(ctx)
		return opDoneMsg{status: status, err: err}
	}
}

func (m *Model) setFocus(f focus) {
	m.focus = f
	m.search.Blur()
	m.history.Blur()
	m.rows.Blur()
	switch f {
	case focusSearch:
		m.search.Focus()
	case focusHistory:
		m.history.Focus()
	case focusRows:
		m.rows.Focus()
	}
}

// sync copies the dashboard state into the widgets. A session that ended
// underneath us (401) drops back to the login form.
func (m *Model) sync() {
	m.snap = m.state.Snapshot()
	if !m.snap.Authenticated && m.mode != loginMode {
		m.mode = loginMode
		m.search.Blur()
		m.path.Blur()
		m.username.Focus()
		m.status = "Session expired. Please sign in again."
		if errors.Is(m.err, api.ErrAuthExpired) {
			m.err = nil
		}
	}

	history := make([]table.Row, 0, len(m.snap.History))
	for _, h := range m.snap.History {
		history = append(history, table.Row{
			fmt.Sprint(h.ID), h.FileName, humanize.Time(h.UploadedAt), fmt.Sprint(h.TotalCount),
		})
	}
	m.history.SetRows(history)

	rows := make([]table.Row, 0, len(m.snap.VisibleRows)+1)
	for _, r := range m.snap.VisibleRows {
		rows = append(rows, table.Row{
			r.Name, r.Type,
			fmt.Sprintf("%.1f", r.Flowrate),
			fmt.Sprintf("%.2f", r.Pressure),
			fmt.Sprintf("%.1f", r.Temperature),
		})
	}
	if m.snap.NoMatches {
		rows = append(rows, table.Row{dashboard.NoMatchesPlaceholder, "", "", "", ""})
	}
	m.rows.SetRows(rows)
	if m.rows.Cursor() >= len(rows) {
		m.rows.SetCursor(0)
	}
}
