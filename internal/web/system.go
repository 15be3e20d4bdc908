package web

import (
	"net/http"
	"time"

	"showsync/internal/importer"
	appLog "showsync/internal/log"
)

// systemResponse is the JSON response shape for /admin/system.
type systemResponse struct {
	FieldStorage bool              `json:"field_storage"`
	Store        string            `json:"store"`
	Active       bool              `json:"active"`
	State        importer.State    `json:"state"`
	Schedule     string            `json:"schedule,omitempty"`
	NextRun      *time.Time        `json:"next_run,omitempty"`
	LastRun      *importer.Summary `json:"last_run,omitempty"`
	LogFile      string            `json:"log_file,omitempty"`
	RecentLogs   []appLog.Entry    `json:"recent_logs"`
	Notice       string            `json:"notice,omitempty"`
}

// handleSystem reports whether the pieces the import depends on are in
// place, plus the last run and recent log lines.
//
// GET /admin/system?import=DONE
//   - import: state passed back by /admin/import, echoed as a notice
func (s *Server) handleSystem(w http.ResponseWriter, r *http.Request) {
	resp := systemResponse{
		FieldStorage: s.deps.Importer.HasFieldStore(),
		Store:        "ok",
		Active:       s.deps.Config.Get().Tuxedo.Active,
		State:        s.deps.Importer.State(),
		LogFile:      appLog.LatestFile(),
		RecentLogs:   []appLog.Entry{},
	}
	if err := s.deps.Store.Ping(r.Context()); err != nil {
		resp.Store = err.Error()
	}
	if s.deps.Schedule != nil {
		resp.Schedule = s.deps.Schedule.Spec()
		if next := s.deps.Schedule.Next(); !next.IsZero() {
			resp.NextRun = &next
		}
	}
	if last, ok := s.deps.Importer.Last(); ok {
		resp.LastRun = &last
	}
	if s.deps.Logs != nil {
		resp.RecentLogs = s.deps.Logs.Entries()
	}
	switch state := r.URL.Query().Get("import"); state {
	case "":
	case "running":
		resp.Notice = "an import is already running"
	default:
		resp.Notice = "import finished: " + state
	}
	writeJSON(w, http.StatusOK, resp)
}
