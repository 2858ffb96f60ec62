// Package handlers serves the local web dashboard: an HTML page, a JSON API
// mirroring the dashboard operations, live snapshots over WebSocket, chart
// images and Prometheus metrics.
package handlers

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chemviz/internal/chart"
	"chemviz/internal/config"
	"chemviz/internal/dashboard"
	"chemviz/internal/middleware"
)

//go:embed templates/*.html
var templateFS embed.FS

// Server is the web dashboard.
type Server struct {
	state    *dashboard.State
	hub      *Hub
	tmpl     *template.Template
	gatherer prometheus.Gatherer
	limiter  *middleware.RateLimiter
}

// NewServer builds the dashboard around state. gatherer backs /metrics and
// may be nil to disable it.
func NewServer(state *dashboard.State, gatherer prometheus.Gatherer) (*Server, error) {
	tmpl, err := template.New("index.html").Funcs(funcMap).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &Server{
		state:    state,
		hub:      NewHub(state),
		tmpl:     tmpl,
		gatherer: gatherer,
		limiter:  middleware.NewRateLimiter(10, time.Minute),
	}, nil
}

var funcMap = template.FuncMap{
	"ago": humanize.Time,
	"f1":  func(v float64) string { return humanize.FormatFloat("#,###.#", v) },
	"f2":  func(v float64) string { return humanize.FormatFloat("#,###.##", v) },
	"color": func(i int) string {
		return "#" + chart.Palette[i%len(chart.Palette)]
	},
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logging)
	r.Use(middleware.LocalCORS)

	r.Get("/", s.index)
	r.Get("/partials/dashboard", s.dashboardPartial)
	r.Get("/health", health)
	r.Get("/ws", s.hub.HandleConnection)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.getState)
		r.Post("/login", s.limiter.Limit(s.login))
		r.Post("/logout", s.logout)

		r.Group(func(r chi.Router) {
			r.Use(s.requireSession)
			r.Post("/upload", s.upload)
			r.Post("/summary", s.summary)
			r.Post("/summary/{id}", s.summary)
			r.Post("/history", s.history)
			r.Post("/search", s.search)
			r.Get("/report", s.report)
			r.Get("/export.{format}", s.export)
		})
	})

	r.Route("/chart", func(r chi.Router) {
		r.Use(s.requireSession)
		r.Get("/distribution.png", s.chartImage(chart.Distribution))
		r.Get("/averages.png", s.chartImage(chart.Averages))
	})

	return r
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		config.Logger.Infof("🌐 Dashboard listening on http://%s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	config.Logger.Info("🛑 Shutting down dashboard...")
	s.hub.Close()
	s.limiter.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// Close releases background resources when the router is used without Run.
func (s *Server) Close() {
	s.hub.Close()
	s.limiter.Close()
}

func health(w http.ResponseWriter, r *http.Request) {
	JSONResponse(w, map[string]string{
		"status":  "healthy",
		"version": Version,
	})
}

func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.state.Session().Authenticated() {
			JSONError(w, "Not signed in.", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
