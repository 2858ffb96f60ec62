package handlers

import (
	"net/http"

	"chemviz/internal/config"
	"chemviz/internal/dashboard"
)

type pageData struct {
	dashboard.Snapshot
	Version     string
	Placeholder string
}

func (s *Server) page() pageData {
	return pageData{
		Snapshot:    s.state.Snapshot(),
		Version:     Version,
		Placeholder: dashboard.NoMatchesPlaceholder,
	}
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	s.render(w, "index.html", s.page())
}

// dashboardPartial re-renders the live region after a WebSocket update so
// the search box keeps its focus.
func (s *Server) dashboardPartial(w http.ResponseWriter, r *http.Request) {
	s.render(w, "dashboard", s.page())
}

func (s *Server) render(w http.ResponseWriter, name string, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, name, data); err != nil {
		config.Logger.Errorf("❌ Render %s: %v", name, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
