package web

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"showsync/internal/importer"
	appLog "showsync/internal/log"
)

// importResponse is the JSON response shape for POST /api/import.
type importResponse struct {
	importer.Summary
	Running bool `json:"already_running,omitempty"`
}

// runManual runs one import on behalf of an admin. The run is detached
// from the request so a dropped connection does not abort it.
func (s *Server) runManual(r *http.Request) (importer.Summary, error) {
	appLog.Notice("force run", "remote_addr", r.RemoteAddr)
	return s.deps.Importer.Run(context.WithoutCancel(r.Context()))
}

// handleImport runs an import synchronously and reports its summary.
//
//   - 200: run reached DONE
//   - 409: another run is in progress
//   - 422: provider credentials are not configured
//   - 502: authentication, fetch or the run deadline failed the run
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	sum, err := s.runManual(r)
	var ce *importer.ConfigError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, importResponse{Summary: sum})
	case errors.Is(err, importer.ErrRunInProgress):
		writeJSON(w, http.StatusConflict, importResponse{Summary: sum, Running: true})
	case errors.As(err, &ce):
		writeJSON(w, http.StatusUnprocessableEntity, importResponse{Summary: sum})
	default:
		writeJSON(w, http.StatusBadGateway, importResponse{Summary: sum})
	}
}

// handleAdminImport runs an import and redirects to the system page with
// the final state in the query string.
func (s *Server) handleAdminImport(w http.ResponseWriter, r *http.Request) {
	sum, err := s.runManual(r)
	q := url.Values{}
	q.Set("import", string(sum.State))
	if errors.Is(err, importer.ErrRunInProgress) {
		q.Set("import", "running")
	}
	http.Redirect(w, r, "/admin/system?"+q.Encode(), http.StatusSeeOther)
}
