package importer

import (
	"context"
	"errors"
	"time"

	"showsync/internal/fingerprint"
	appLog "showsync/internal/log"
	"showsync/internal/model"
	"showsync/internal/normalize"
	"showsync/internal/store"
	"showsync/internal/tuxedo"
)

// Outcome is the reconciliation decision for one event.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
	OutcomeSkipped Outcome = "skipped"
)

// Skip reasons carried in Result.Reason and the skip log entry.
const (
	ReasonExcluded    = "excluded from the web"
	ReasonUnknownShow = "no local show for provider show id"
	ReasonBadDate     = "unparseable event date"
	ReasonPast        = "event date is in the past"
)

var liveStatuses = []model.PostStatus{model.StatusPublish, model.StatusDraft}

// Result describes what Reconcile did with one event.
type Result struct {
	Outcome  Outcome
	Reason   string
	RecordID uint64
	UUID     string
	Title    string
}

// Reconciler turns one provider event into a create, update or skip
// against the record store. fields may be nil when field storage is
// unavailable; records are then written without derived fields.
type Reconciler struct {
	records store.RecordStore
	fields  store.FieldStore
	norm    *normalize.Normalizer
	sink    appLog.Sink
	now     func() time.Time
}

// NewReconciler wires a Reconciler. A nil sink logs to the global logger.
func NewReconciler(records store.RecordStore, fields store.FieldStore, norm *normalize.Normalizer, sink appLog.Sink) *Reconciler {
	if sink == nil {
		sink = appLog.Std()
	}
	return &Reconciler{records: records, fields: fields, norm: norm, sink: sink, now: time.Now}
}

// HasFieldStore reports whether derived fields are written.
func (r *Reconciler) HasFieldStore() bool { return r.fields != nil }

// Reconcile processes one event. Skips are not errors; a *ReconcileError is
// returned only when the store fails.
func (r *Reconciler) Reconcile(ctx context.Context, e tuxedo.Event) (Result, error) {
	remoteID := e.ID.String()

	if e.ExcludedFromTheWeb {
		return r.skip(ReasonExcluded, remoteID), nil
	}

	showRec, err := r.records.FindOne(ctx, store.Query{
		Type:     model.TypeShow,
		Key:      model.FieldTuxedoShowID,
		Value:    e.ShowID.String(),
		Statuses: liveStatuses,
	})
	if errors.Is(err, store.ErrNotFound) {
		return r.skip(ReasonUnknownShow, remoteID, "show_id", e.ShowID.String()), nil
	}
	if err != nil {
		return Result{}, &ReconcileError{RemoteID: remoteID, Op: "look up show", Err: err}
	}

	start, err := r.norm.Date(e.Date)
	if err != nil {
		return r.skip(ReasonBadDate, remoteID, "date", e.Date, "err", err), nil
	}
	if normalize.IsPast(start, r.now()) {
		return r.skip(ReasonPast, remoteID, "date", e.Date), nil
	}

	sd := model.ShowDate{
		UUID:        fingerprint.Of(remoteID, e.Date, e.ShowID.String()),
		Title:       r.norm.Title(showRec.Title, start),
		Status:      normalize.PostStatus(e),
		Start:       start,
		TuxedoURL:   e.TuxedoURL,
		VenueID:     e.VenueID.String(),
		IsPublished: e.IsPublished,
		SoldOut:     normalize.IsSoldOut(e),
		SchoolOnly:  normalize.IsSchoolOnly(e),
		ShowID:      showRec.ID,
		RemoteID:    remoteID,
	}
	rec := store.Record{
		Type:   model.TypeShowDate,
		Title:  sd.Title,
		Slug:   sd.UUID,
		Status: sd.Status,
	}

	res := Result{UUID: sd.UUID, Title: sd.Title}
	existing, err := r.records.FindOne(ctx, store.Query{
		Type:     model.TypeShowDate,
		Key:      store.SlugKey,
		Value:    sd.UUID,
		Statuses: liveStatuses,
	})
	switch {
	case errors.Is(err, store.ErrNotFound):
		id, err := r.records.Create(ctx, rec)
		if err != nil {
			return Result{}, &ReconcileError{RemoteID: remoteID, Op: "create show date", Err: err}
		}
		res.Outcome, res.RecordID = OutcomeCreated, id
	case err != nil:
		return Result{}, &ReconcileError{RemoteID: remoteID, Op: "look up show date", Err: err}
	default:
		if err := r.records.Update(ctx, existing.ID, rec); err != nil {
			return Result{}, &ReconcileError{RemoteID: remoteID, Op: "update show date", Err: err}
		}
		res.Outcome, res.RecordID = OutcomeUpdated, existing.ID
	}
	sd.ID = res.RecordID

	if r.fields != nil {
		if err := r.fields.SetFields(ctx, sd.ID, store.ShowDateFields(sd, r.norm.Location())); err != nil {
			return Result{}, &ReconcileError{RemoteID: remoteID, Op: "set show date fields", Err: err}
		}
	}

	msg := "created show date"
	if res.Outcome == OutcomeUpdated {
		msg = "updated show date"
	}
	r.sink.Log(appLog.LevelInfo, msg,
		"title", sd.Title,
		"remote_id", remoteID,
		"uuid", sd.UUID,
		"id", sd.ID,
		"status", string(sd.Status),
	)
	return res, nil
}

func (r *Reconciler) skip(reason, remoteID string, kv ...any) Result {
	fields := append([]any{"reason", reason, "remote_id", remoteID}, kv...)
	r.sink.Log(appLog.LevelInfo, "skipped event", fields...)
	return Result{Outcome: OutcomeSkipped, Reason: reason}
}
