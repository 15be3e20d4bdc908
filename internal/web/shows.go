package web

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"showsync/internal/ics"
	appLog "showsync/internal/log"
	"showsync/internal/model"
	"showsync/internal/store"
	"showsync/internal/tuxedo"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// handleShows returns the provider show catalog as {id, label, url}.
func (s *Server) handleShows(w http.ResponseWriter, r *http.Request) {
	if s.deps.Shows == nil {
		writeError(w, http.StatusServiceUnavailable, "show catalog unavailable")
		return
	}
	shows, err := s.deps.Shows.Shows(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, shows)
	case errors.Is(err, tuxedo.ErrMissingCredentials):
		writeError(w, http.StatusConflict, "provider credentials not configured")
	default:
		appLog.Error("api shows: provider request failed", err)
		writeError(w, http.StatusBadGateway, "failed to fetch provider shows")
	}
}

// createShowRequest is the body of POST /api/local-shows.
type createShowRequest struct {
	Title        string           `json:"title" validate:"required,max=200"`
	TuxedoShowID string           `json:"tuxedo_show_id" validate:"required,max=64"`
	Status       model.PostStatus `json:"status" validate:"omitempty,oneof=publish draft"`
}

// handleCreateLocalShow provisions a show the importer can attach dates to.
func (s *Server) handleCreateLocalShow(w http.ResponseWriter, r *http.Request) {
	var req createShowRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	req.TuxedoShowID = strings.TrimSpace(req.TuxedoShowID)
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Status == "" {
		req.Status = model.StatusPublish
	}

	ctx := r.Context()
	_, err := s.deps.Store.FindOne(ctx, store.Query{
		Type:  model.TypeShow,
		Key:   model.FieldTuxedoShowID,
		Value: req.TuxedoShowID,
	})
	switch {
	case err == nil:
		writeError(w, http.StatusConflict, "a show with this provider id already exists")
		return
	case !errors.Is(err, store.ErrNotFound):
		appLog.Error("api local-shows: lookup failed", err)
		writeError(w, http.StatusInternalServerError, "store lookup failed")
		return
	}

	id, err := s.deps.Store.Create(ctx, store.Record{Type: model.TypeShow, Title: req.Title, Status: req.Status})
	if err != nil {
		appLog.Error("api local-shows: create failed", err)
		writeError(w, http.StatusInternalServerError, "failed to create show")
		return
	}
	if err := s.deps.Store.SetFields(ctx, id, map[string]string{model.FieldTuxedoShowID: req.TuxedoShowID}); err != nil {
		appLog.Error("api local-shows: set fields failed", err, "id", id)
		writeError(w, http.StatusInternalServerError, "failed to store show fields")
		return
	}

	appLog.Info("local show created", "id", id, "title", req.Title, "tuxedo_show_id", req.TuxedoShowID)
	writeJSON(w, http.StatusCreated, model.Show{
		ID:           id,
		Title:        req.Title,
		TuxedoShowID: req.TuxedoShowID,
		Status:       req.Status,
	})
}

// handleListLocalShows lists provisioned shows.
func (s *Server) handleListLocalShows(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	recs, err := s.deps.Store.List(ctx, model.TypeShow)
	if err != nil {
		appLog.Error("api local-shows: list failed", err)
		writeError(w, http.StatusInternalServerError, "failed to list shows")
		return
	}
	out := make([]model.Show, 0, len(recs))
	for _, rec := range recs {
		fields, err := s.deps.Store.Fields(ctx, rec.ID)
		if err != nil {
			appLog.Error("api local-shows: fields failed", err, "id", rec.ID)
			continue
		}
		out = append(out, store.ShowFromRecord(rec, fields))
	}
	writeJSON(w, http.StatusOK, out)
}

// showDates loads every show date ordered by start time. Shells without a
// start sort last.
func (s *Server) showDates(ctx context.Context) ([]model.ShowDate, error) {
	recs, err := s.deps.Store.List(ctx, model.TypeShowDate)
	if err != nil {
		return nil, err
	}
	out := make([]model.ShowDate, 0, len(recs))
	for _, rec := range recs {
		fields, err := s.deps.Store.Fields(ctx, rec.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, store.ShowDateFromRecord(rec, fields, s.deps.Location))
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Start, out[j].Start
		if a.IsZero() != b.IsZero() {
			return b.IsZero()
		}
		return a.Before(b)
	})
	return out, nil
}

// handleShowDates lists imported show dates.
//
// GET /api/show-dates?upcoming=1
//   - upcoming: only dates starting after now
func (s *Server) handleShowDates(w http.ResponseWriter, r *http.Request) {
	dates, err := s.showDates(r.Context())
	if err != nil {
		appLog.Error("api show-dates: list failed", err)
		writeError(w, http.StatusInternalServerError, "failed to list show dates")
		return
	}
	if r.URL.Query().Get("upcoming") == "1" {
		now := time.Now()
		kept := dates[:0]
		for _, sd := range dates {
			if sd.Start.After(now) {
				kept = append(kept, sd)
			}
		}
		dates = kept
	}
	writeJSON(w, http.StatusOK, dates)
}

// handleCalendar serves published upcoming show dates as iCalendar.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	dates, err := s.showDates(r.Context())
	if err != nil {
		appLog.Error("calendar: list failed", err)
		http.Error(w, "calendar unavailable", http.StatusInternalServerError)
		return
	}
	cal := ics.BuildFeed(dates, ics.FeedOptions{})
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="show-dates.ics"`)
	if err := ics.WriteFeed(w, cal); err != nil {
		appLog.Error("calendar: write failed", err)
	}
}
