package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"chemviz/internal/api"
	"chemviz/internal/dashboard"
	"chemviz/internal/events"
	"chemviz/internal/session"
)

const reportJSON = `{
	"id": 5,
	"file_name": "sample.csv",
	"total_count": 2,
	"averages": {"flowrate": 120.5, "pressure": 5.2, "temperature": 110},
	"type_distribution": {"Pump": 1, "Valve": 1},
	"data": [
		{"id": 1, "name": "Pump-1", "type": "Pump", "flowrate": 150, "pressure": 5.5, "temperature": 120},
		{"id": 2, "name": "Valve-2", "type": "Valve", "flowrate": 91, "pressure": 4.9, "temperature": 100}
	]
}`

// backend fakes the visualizer API.
type backend struct {
	mu           sync.Mutex
	unauthorized bool
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	unauthorized := b.unauthorized
	b.mu.Unlock()
	if unauthorized {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	switch {
	case r.URL.Path == "/api/history/":
		io.WriteString(w, `[{"id": 5, "file_name": "sample.csv", "uploaded_at": "2026-10-01T09:30:00Z", "total_count": 2}]`)
	case strings.HasPrefix(r.URL.Path, "/api/summary/"):
		io.WriteString(w, reportJSON)
	case r.URL.Path == "/api/upload/":
		if _, _, err := r.FormFile("file"); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"error": "No file uploaded"}`)
			return
		}
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"id": 6}`)
	case r.URL.Path == "/api/pdf/5/":
		w.Header().Set("Content-Type", "application/pdf")
		io.WriteString(w, "%PDF-1.4 report")
	default:
		http.NotFound(w, r)
	}
}

func setupServer(t *testing.T) (*httptest.Server, *dashboard.State, *backend) {
	t.Helper()
	fake := &backend{}
	upstream := httptest.NewServer(fake)
	t.Cleanup(upstream.Close)

	reg := prometheus.NewRegistry()
	mgr := session.NewManager(session.NewMemoryStore())
	client := api.NewClient(upstream.URL+"/api", mgr, mgr.Expire, api.WithMetrics(api.NewMetrics(reg)))
	state := dashboard.New(mgr, client, events.NewBus())

	srv, err := NewServer(state, reg)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	return ts, state, fake
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	data, _ := json.Marshal(body)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeSnapshot(t *testing.T, resp *http.Response) dashboard.Snapshot {
	t.Helper()
	defer resp.Body.Close()
	var snap dashboard.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	return snap
}

func TestIndexShowsLoginWhenSignedOut(t *testing.T) {
	ts, _, _ := setupServer(t)

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(body), `id="login-form"`) {
		t.Error("login form missing")
	}
	if strings.Contains(string(body), "Download Report") {
		t.Error("dashboard rendered while signed out")
	}
}

func TestLoginThenDashboard(t *testing.T) {
	ts, _, _ := setupServer(t)

	snap := decodeSnapshot(t, postJSON(t, ts.URL+"/api/login", map[string]string{"username": "admin", "password": "admin123"}))
	if !snap.Authenticated || snap.Report == nil || len(snap.History) != 1 {
		t.Fatalf("snapshot after login = %+v", snap)
	}

	resp, _ := http.Get(ts.URL + "/")
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	for _, want := range []string{"Pump-1", "Valve-2", "Download Report", "sample.csv", "120.5"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestDataRoutesRequireSession(t *testing.T) {
	ts, _, _ := setupServer(t)

	for _, path := range []string{"/api/history", "/api/summary", "/api/search"} {
		resp := postJSON(t, ts.URL+path, map[string]string{})
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s: status %d, want 401", path, resp.StatusCode)
		}
	}
	resp, _ := http.Get(ts.URL + "/chart/distribution.png")
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("chart: status %d, want 401", resp.StatusCode)
	}
}

func TestSearchShowsPlaceholder(t *testing.T) {
	ts, _, _ := setupServer(t)
	postJSON(t, ts.URL+"/api/login", map[string]string{"username": "a", "password": "b"}).Body.Close()

	snap := decodeSnapshot(t, postJSON(t, ts.URL+"/api/search", map[string]string{"term": "pump"}))
	if len(snap.VisibleRows) != 1 || snap.VisibleRows[0].Name != "Pump-1" {
		t.Errorf("visible rows = %+v", snap.VisibleRows)
	}

	snap = decodeSnapshot(t, postJSON(t, ts.URL+"/api/search", map[string]string{"term": "zzz"}))
	if !snap.NoMatches {
		t.Fatal("expected NoMatches")
	}
	resp, _ := http.Get(ts.URL + "/partials/dashboard")
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), dashboard.NoMatchesPlaceholder) {
		t.Error("placeholder row not rendered")
	}
}

func TestUploadForwardsFile(t *testing.T) {
	ts, _, _ := setupServer(t)
	postJSON(t, ts.URL+"/api/login", map[string]string{"username": "a", "password": "b"}).Body.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("file", "equipment.csv")
	io.WriteString(part, "Equipment Name,Type,Flowrate,Pressure,Temperature\n")
	mw.Close()

	resp, err := http.Post(ts.URL+"/api/upload", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if snap := decodeSnapshot(t, resp); snap.Uploading || snap.Report == nil {
		t.Errorf("snapshot after upload = %+v", snap)
	}
}

func TestReportDownload(t *testing.T) {
	ts, state, _ := setupServer(t)
	state.Session().Login("admin", "admin123")

	resp, _ := http.Get(ts.URL + "/api/report")
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("without report: status %d, want 409", resp.StatusCode)
	}

	postJSON(t, ts.URL+"/api/summary", nil).Body.Close()
	resp, _ = http.Get(ts.URL + "/api/report")
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "%PDF-1.4 report" {
		t.Fatalf("status %d body %q", resp.StatusCode, body)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "report_5.pdf") {
		t.Errorf("Content-Disposition = %q", cd)
	}
}

func TestExportCSVUsesVisibleRows(t *testing.T) {
	ts, _, _ := setupServer(t)
	postJSON(t, ts.URL+"/api/login", map[string]string{"username": "a", "password": "b"}).Body.Close()
	postJSON(t, ts.URL+"/api/search", map[string]string{"term": "valve"}).Body.Close()

	resp, _ := http.Get(ts.URL + "/api/export.csv")
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	want := "Equipment Name,Type,Flowrate,Pressure,Temperature\nValve-2,Valve,91,4.9,100\n"
	if string(body) != want {
		t.Errorf("csv = %q", body)
	}

	resp, _ = http.Get(ts.URL + "/api/export.pdf")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown format: status %d", resp.StatusCode)
	}
}

func TestExpiryThroughWebLogsOut(t *testing.T) {
	ts, state, fake := setupServer(t)
	postJSON(t, ts.URL+"/api/login", map[string]string{"username": "a", "password": "b"}).Body.Close()

	fake.mu.Lock()
	fake.unauthorized = true
	fake.mu.Unlock()

	resp := postJSON(t, ts.URL+"/api/history", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status %d, want 401", resp.StatusCode)
	}
	if state.Session().Authenticated() || state.Report() != nil {
		t.Error("session or report survived the 401")
	}
}

func TestChartPNG(t *testing.T) {
	ts, _, _ := setupServer(t)
	postJSON(t, ts.URL+"/api/login", map[string]string{"username": "a", "password": "b"}).Body.Close()

	resp, _ := http.Get(ts.URL + "/chart/distribution.png")
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.Header.Get("Content-Type") != "image/png" || !bytes.HasPrefix(body, []byte("\x89PNG")) {
		t.Errorf("not a png: %s", resp.Header.Get("Content-Type"))
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _, _ := setupServer(t)
	postJSON(t, ts.URL+"/api/login", map[string]string{"username": "a", "password": "b"}).Body.Close()

	resp, _ := http.Get(ts.URL + "/metrics")
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), `chemviz_api_requests_total{endpoint="summary",outcome="ok"} 1`) {
		t.Errorf("metrics missing summary counter:\n%s", body)
	}
}

func TestWebSocketPushesSnapshots(t *testing.T) {
	ts, state, _ := setupServer(t)
	state.Session().Login("admin", "admin123")

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var first Frame
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("initial frame: %v", err)
	}
	if !first.State.Authenticated {
		t.Error("initial snapshot should be authenticated")
	}

	state.SetSearch("pump")

	var next Frame
	if err := conn.ReadJSON(&next); err != nil {
		t.Fatalf("pushed frame: %v", err)
	}
	if next.Event != events.SearchChanged || next.State.Search != "pump" {
		t.Errorf("frame = %+v", next)
	}
}

func TestHealth(t *testing.T) {
	ts, _, _ := setupServer(t)
	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	defer resp.Body.Close()
	var body map[string]string
	json.NewDecoder(resp.Body).Decode(&body)
	if body["status"] != "healthy" {
		t.Errorf("health = %v", body)
	}
}

func TestHubCloseUnsubscribes(t *testing.T) {
	mgr := session.NewManager(session.NewMemoryStore())
	state := dashboard.New(mgr, nil, nil)

	hub := NewHub(state)
	if n := state.Bus().Len(); n != 1 {
		t.Fatalf("subscriptions = %d, want 1", n)
	}
	hub.Close()
	hub.Close()
	if n := state.Bus().Len(); n != 0 {
		t.Errorf("subscriptions after Close = %d, want 0", n)
	}
}
