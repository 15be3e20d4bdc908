package web

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"showsync/internal/config"
	"showsync/internal/importer"
	appLog "showsync/internal/log"
	"showsync/internal/store"
	"showsync/internal/tuxedo"
)

// Importer is the run orchestrator as seen by the admin API.
type Importer interface {
	Run(ctx context.Context) (importer.Summary, error)
	State() importer.State
	Last() (importer.Summary, bool)
	HasFieldStore() bool
}

// Store is the record store as seen by the admin API.
type Store interface {
	store.RecordStore
	store.FieldStore
	List(ctx context.Context, typ string) ([]store.Record, error)
	Ping(ctx context.Context) error
}

// ShowLister serves the provider show catalog.
type ShowLister interface {
	Shows(ctx context.Context) ([]tuxedo.ShowSummary, error)
}

// Schedule exposes the cron schedule for the system page.
type Schedule interface {
	Spec() string
	Next() time.Time
}

// Deps are the collaborators behind the HTTP API.
type Deps struct {
	Config   *config.Holder
	Importer Importer
	Store    Store
	Shows    ShowLister
	Schedule Schedule
	Logs     *appLog.Ring
	// Location renders show date times; defaults to time.Local.
	Location *time.Location
	// ImportRate limits manual import triggers per client per minute.
	ImportRate int
}

// Server provides the admin API, the calendar feed and /metrics.
type Server struct {
	deps   Deps
	router chi.Router
}

// NewServer constructs a new Server.
func NewServer(d Deps) *Server {
	if d.Location == nil {
		d.Location = time.Local
	}
	if d.ImportRate <= 0 {
		d.ImportRate = 6
	}
	s := &Server{deps: d, router: chi.NewRouter()}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	r := s.router
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/health", s.handleHealth)
	r.Get("/calendar.ics", s.handleCalendar)

	r.Group(func(r chi.Router) {
		r.Use(s.basicAuth)

		r.Handle("/metrics", promhttp.Handler())
		r.Get("/admin/system", s.handleSystem)

		r.Group(func(r chi.Router) {
			r.Use(httprate.LimitByIP(s.deps.ImportRate, time.Minute))
			r.Post("/api/import", s.handleImport)
			r.Get("/admin/import", s.handleAdminImport)
		})

		r.Get("/api/shows", s.handleShows)
		r.Get("/api/local-shows", s.handleListLocalShows)
		r.Post("/api/local-shows", s.handleCreateLocalShow)
		r.Get("/api/show-dates", s.handleShowDates)
		r.Get("/api/settings", s.handleGetSettings)
		r.Put("/api/settings", s.handlePutSettings)
	})
}

// basicAuth enforces HTTP Basic Auth when credentials are configured. The
// credentials are read per request so settings changes apply immediately.
func (s *Server) basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		creds := s.deps.Config.Get().BasicAuth
		if creds.Username == "" || creds.Password == "" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, creds.Username) || !secureCompare(p, creds.Password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="showsync", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		appLog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", chimiddleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}

const maxBodyBytes = 64 << 10

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
