package web

import (
	"io"
	"net/http"

	"github.com/goccy/go-json"

	"showsync/internal/config"
	appLog "showsync/internal/log"
)

// handleGetSettings returns the live configuration with secrets redacted.
func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Config.Get().Redacted())
}

// handlePutSettings merges a partial JSON config into the live one,
// validates and persists it. Passwords sent back as the redacted
// placeholder keep their stored value. Listen and storage changes take
// effect after a restart.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	next, err := s.deps.Config.Update(func(c *config.Config) error {
		prev := *c
		if err := json.Unmarshal(body, c); err != nil {
			return err
		}
		if c.Tuxedo.Password == config.RedactedSecret {
			c.Tuxedo.Password = prev.Tuxedo.Password
		}
		if c.BasicAuth.Password == config.RedactedSecret {
			c.BasicAuth.Password = prev.BasicAuth.Password
		}
		return nil
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	appLog.Info("settings updated", "active", next.Tuxedo.Active, "refresh", next.Import.Refresh)
	writeJSON(w, http.StatusOK, next.Redacted())
}
