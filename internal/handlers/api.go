package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"chemviz/internal/api"
	"chemviz/internal/chart"
	"chemviz/internal/config"
	"chemviz/internal/export"
	"chemviz/internal/models"
)

const maxUploadSize = 32 << 20

// credentials is the login request body.
type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) getState(w http.ResponseWriter, r *http.Request) {
	JSONResponse(w, s.state.Snapshot())
}

// login accepts a JSON body or a form post.
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			JSONError(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	} else {
		creds.Username = r.FormValue("username")
		creds.Password = r.FormValue("password")
	}

	if err := s.state.Login(r.Context(), creds.Username, creds.Password); err != nil {
		config.Logger.Warnf("⚠️  Token not persisted: %v", err)
	}
	JSONResponse(w, s.state.Snapshot())
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if err := s.state.Logout(); err != nil {
		config.Logger.Warnf("⚠️  Token not removed from storage: %v", err)
	}
	JSONResponse(w, s.state.Snapshot())
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	file, hdr, err := r.FormFile("file")
	if err != nil {
		JSONError(w, "Missing file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if err := s.state.Upload(r.Context(), hdr.Filename, file); err != nil {
		backendError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(s.state.Snapshot())
}

// summary loads the latest summary, or the dataset named in the path.
// A failed fetch is reported through the snapshot's error message.
func (s *Server) summary(w http.ResponseWriter, r *http.Request) {
	var id *int64
	if raw := chi.URLParam(r, "id"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			JSONError(w, "Invalid dataset id", http.StatusBadRequest)
			return
		}
		id = &n
	}

	if err := s.state.FetchSummary(r.Context(), id); errors.Is(err, api.ErrAuthExpired) {
		backendError(w, err)
		return
	}
	JSONResponse(w, s.state.Snapshot())
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	if err := s.state.FetchHistory(r.Context()); errors.Is(err, api.ErrAuthExpired) {
		backendError(w, err)
		return
	}
	JSONResponse(w, s.state.Snapshot())
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Term string `json:"term"`
	}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			JSONError(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	} else {
		body.Term = r.FormValue("term")
	}

	s.state.SetSearch(body.Term)
	JSONResponse(w, s.state.Snapshot())
}

// report streams the PDF to the browser as report_<id>.pdf.
func (s *Server) report(w http.ResponseWriter, r *http.Request) {
	id, data, err := s.state.FetchReport(r.Context())
	if err != nil {
		backendError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, api.ReportFilename(id)))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

// export writes the visible rows in the requested format.
func (s *Server) export(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(chi.URLParam(r, "format"))
	if err != nil {
		JSONError(w, err.Error(), http.StatusNotFound)
		return
	}

	snap := s.state.Snapshot()
	if snap.Report == nil {
		JSONError(w, "No report loaded.", http.StatusConflict)
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, format, snap.Report, snap.Search, snap.VisibleRows); err != nil {
		config.Logger.Errorf("❌ Export %s failed: %v", format, err)
		JSONError(w, "Export failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, format.Filename(snap.Report.ID)))
	io.Copy(w, &buf)
}

func (s *Server) chartImage(render func(io.Writer, *models.SummaryReport) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		err := render(&buf, s.state.Report())
		if errors.Is(err, chart.ErrNoData) {
			http.NotFound(w, r)
			return
		}
		if err != nil {
			config.Logger.Errorf("❌ %v", err)
			http.Error(w, "chart rendering failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		io.Copy(w, &buf)
	}
}
