package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"chemviz/internal/session"
)

const summaryJSON = `{
	"id": 7,
	"file_name": "sample.csv",
	"total_count": 2,
	"averages": {"flowrate": 120.5, "pressure": 5.2, "temperature": 110},
	"type_distribution": {"Pump": 1, "Valve": 1},
	"data": [
		{"id": 1, "dataset": 7, "name": "Pump-1", "type": "Pump", "flowrate": 150, "pressure": 5.5, "temperature": 120},
		{"id": 2, "dataset": 7, "name": "Valve-2", "type": "Valve", "flowrate": 91, "pressure": 4.9, "temperature": 100}
	]
}`

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *session.Manager, *int32) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	mgr := session.NewManager(session.NewMemoryStore())
	mgr.Login("admin", "admin123")

	var expiries int32
	c := NewClient(srv.URL+"/api/", mgr, func() {
		atomic.AddInt32(&expiries, 1)
		mgr.Expire()
	})
	return c, mgr, &expiries
}

func TestSummaryDecodesReport(t *testing.T) {
	c, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/summary/" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, summaryJSON)
	})

	report, res := c.Summary(context.Background(), nil)
	if !res.OK() {
		t.Fatalf("Summary: %v", res)
	}
	if report.ID != 7 || report.TotalCount != 2 || len(report.Data) != 2 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.TypeDistribution["Pump"] != 1 {
		t.Errorf("type distribution = %v", report.TypeDistribution)
	}
	if report.Averages.Temperature != 110 {
		t.Errorf("temperature avg = %v", report.Averages.Temperature)
	}
}

func TestSummaryByID(t *testing.T) {
	c, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/summary/42/" {
			t.Errorf("path = %s", r.URL.Path)
		}
		io.WriteString(w, `{"id": 42, "total_count": 0, "data": []}`)
	})

	id := int64(42)
	report, res := c.Summary(context.Background(), &id)
	if !res.OK() || report.ID != 42 {
		t.Fatalf("Summary(42) = %+v, %v", report, res)
	}
	if report.TypeDistribution == nil {
		t.Error("type distribution should default to an empty map")
	}
}

func TestRequestsCarryFreshAuthHeader(t *testing.T) {
	var got []string
	c, mgr, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.Header.Get("Authorization"))
		if _, err := uuid.Parse(r.Header.Get("X-Request-ID")); err != nil {
			t.Errorf("X-Request-ID not a uuid: %q", r.Header.Get("X-Request-ID"))
		}
		if r.Header.Get("User-Agent") != "chemviz" {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		io.WriteString(w, `[]`)
	})

	c.History(context.Background())
	mgr.Logout()
	c.History(context.Background())
	mgr.Login("operator", "secret")
	c.History(context.Background())

	want := []string{
		"Basic YWRtaW46YWRtaW4xMjM=",
		"",
		"Basic " + session.EncodeCredentials("operator", "secret"),
	}
	if len(got) != len(want) {
		t.Fatalf("got %d requests, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("request %d Authorization = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestUnauthorizedExpiresSessionOnEveryEndpoint(t *testing.T) {
	calls := map[string]func(*Client) Result{
		"history": func(c *Client) Result { _, r := c.History(context.Background()); return r },
		"summary": func(c *Client) Result { _, r := c.Summary(context.Background(), nil); return r },
		"upload": func(c *Client) Result {
			_, r := c.Upload(context.Background(), "data.csv", strings.NewReader("a,b\n"))
			return r
		},
		"pdf": func(c *Client) Result { _, r := c.Report(context.Background(), 1); return r },
	}

	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			c, mgr, expiries := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			})

			res := call(c)
			if !res.Expired() {
				t.Fatalf("outcome = %s, want auth_expired", res.Outcome)
			}
			if !errors.Is(res, ErrAuthExpired) {
				t.Error("result should wrap ErrAuthExpired")
			}
			if atomic.LoadInt32(expiries) != 1 {
				t.Errorf("expiry handler ran %d times, want 1", *expiries)
			}
			if mgr.Authenticated() {
				t.Error("session still authenticated after 401")
			}
			if mgr.AuthHeader().Get("Authorization") != "" {
				t.Error("Authorization header survived expiry")
			}
		})
	}
}

func TestFailureCarriesBackendDetail(t *testing.T) {
	c, mgr, expiries := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error": "Missing required columns: Type"}`)
	})

	created, res := c.Upload(context.Background(), "bad.csv", strings.NewReader("x\n"))
	if created != nil {
		t.Errorf("unexpected dataset %+v", created)
	}
	if res.Outcome != OutcomeFailed || res.Status != http.StatusBadRequest {
		t.Fatalf("result = %+v", res)
	}
	if res.Message() != "Missing required columns: Type" {
		t.Errorf("Message() = %q", res.Message())
	}
	if *expiries != 0 || !mgr.Authenticated() {
		t.Error("non-401 failure must not touch the session")
	}
}

func TestFailureWithoutDetailUsesStatus(t *testing.T) {
	c, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, res := c.History(context.Background())
	if res.Message() != "request failed with status code 500" {
		t.Errorf("Message() = %q", res.Message())
	}
	if res.AsError() == nil {
		t.Error("AsError should be non-nil for a failure")
	}
}

func TestTransportErrorIsFailed(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	mgr := session.NewManager(session.NewMemoryStore())
	c := NewClient(base, mgr, func() { t.Error("transport errors must not expire the session") })

	_, res := c.History(context.Background())
	if res.Outcome != OutcomeFailed || res.Status != 0 || res.Err == nil {
		t.Fatalf("result = %+v", res)
	}
}

func TestUploadSendsMultipartFile(t *testing.T) {
	c, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/upload/" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("FormFile: %v", err)
		}
		defer f.Close()
		body, _ := io.ReadAll(f)
		if hdr.Filename != "equipment.csv" || string(body) != "Equipment Name,Type\n" {
			t.Errorf("got %q: %q", hdr.Filename, body)
		}
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"id": 9, "file_name": "equipment.csv", "total_count": 0}`)
	})

	created, res := c.Upload(context.Background(), "/tmp/in/equipment.csv", strings.NewReader("Equipment Name,Type\n"))
	if !res.OK() || res.Status != http.StatusCreated {
		t.Fatalf("Upload: %v", res)
	}
	if created == nil || created.ID != 9 {
		t.Fatalf("created = %+v", created)
	}
}

func TestReportReturnsBytes(t *testing.T) {
	pdf := []byte("%PDF-1.4 fake")
	c, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/pdf/3/" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Write(pdf)
	})

	got, res := c.Report(context.Background(), 3)
	if !res.OK() || string(got) != string(pdf) {
		t.Fatalf("Report = %q, %v", got, res)
	}
	if ReportFilename(3) != "report_3.pdf" {
		t.Errorf("ReportFilename = %q", ReportFilename(3))
	}
}

func TestMetricsRecordOutcomes(t *testing.T) {
	status := http.StatusOK
	c, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		io.WriteString(w, `[]`)
	})
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	c.metrics = m

	c.History(context.Background())
	status = http.StatusUnauthorized
	c.History(context.Background())

	if got := testutil.ToFloat64(m.requests.WithLabelValues(EndpointHistory, "ok")); got != 1 {
		t.Errorf("ok count = %v", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues(EndpointHistory, "auth_expired")); got != 1 {
		t.Errorf("auth_expired count = %v", got)
	}
	if got := testutil.ToFloat64(m.expiries); got != 1 {
		t.Errorf("expiries = %v", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.observe(EndpointSummary, ok(200), 0)
}
