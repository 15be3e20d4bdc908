// Package importer runs the show date import: authenticate with the
// provider, fetch its events and reconcile each one into the record store.
package importer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	appLog "showsync/internal/log"
	"showsync/internal/metrics"
	"showsync/internal/normalize"
	"showsync/internal/store"
	"showsync/internal/tuxedo"
)

// State is the phase of a run.
type State string

const (
	StateIdle           State = "IDLE"
	StateAuthenticating State = "AUTHENTICATING"
	StateFetching       State = "FETCHING"
	StateReconciling    State = "RECONCILING"
	StateDone           State = "DONE"
	StateFailed         State = "FAILED"
)

// DefaultRunTimeout bounds a whole run when Config.RunTimeout is unset.
const DefaultRunTimeout = 10 * time.Minute

// Settings supplies provider credentials at the start of each run.
type Settings interface {
	Credentials() tuxedo.Credentials
}

// Config tunes the importer.
type Config struct {
	RunTimeout time.Duration
}

// Summary reports one run.
type Summary struct {
	RunID      string    `json:"run_id"`
	State      State     `json:"state"`
	Created    int       `json:"created"`
	Updated    int       `json:"updated"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Error      string    `json:"error,omitempty"`
}

// Importer is the run orchestrator. Runs never overlap.
type Importer struct {
	api        tuxedo.API
	settings   Settings
	reconciler *Reconciler
	sink       appLog.Sink
	cfg        Config
	now        func() time.Time

	running sync.Mutex

	mu    sync.RWMutex
	state State
	last  *Summary
}

// New creates an Importer. fields may be nil; see Reconciler.
func New(api tuxedo.API, settings Settings, records store.RecordStore, fields store.FieldStore, norm *normalize.Normalizer, sink appLog.Sink, cfg Config) (*Importer, error) {
	switch {
	case api == nil:
		return nil, errors.New("importer: provider api is nil")
	case settings == nil:
		return nil, errors.New("importer: settings are nil")
	case records == nil:
		return nil, errors.New("importer: record store is nil")
	case norm == nil:
		return nil, errors.New("importer: normalizer is nil")
	}
	if sink == nil {
		sink = appLog.Std()
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = DefaultRunTimeout
	}
	return &Importer{
		api:        api,
		settings:   settings,
		reconciler: NewReconciler(records, fields, norm, sink),
		sink:       sink,
		cfg:        cfg,
		now:        time.Now,
		state:      StateIdle,
	}, nil
}

// State returns the phase of the current run, or the final state of the
// last one.
func (im *Importer) State() State {
	im.mu.RLock()
	defer im.mu.RUnlock()
	return im.state
}

// Last returns the summary of the most recent finished run.
func (im *Importer) Last() (Summary, bool) {
	im.mu.RLock()
	defer im.mu.RUnlock()
	if im.last == nil {
		return Summary{}, false
	}
	return *im.last, true
}

// HasFieldStore reports whether derived fields are written.
func (im *Importer) HasFieldStore() bool { return im.reconciler.HasFieldStore() }

func (im *Importer) setState(s State) {
	im.mu.Lock()
	im.state = s
	im.mu.Unlock()
}

// Run executes one import synchronously. It returns ErrRunInProgress when
// another run holds the guard, and otherwise the error that ended the run
// in FAILED (nil on DONE). Per-event failures do not fail the run.
func (im *Importer) Run(ctx context.Context) (Summary, error) {
	if !im.running.TryLock() {
		metrics.ImportRuns.WithLabelValues("rejected").Inc()
		im.sink.Log(appLog.LevelWarning, "import already running; trigger ignored")
		return Summary{State: im.State()}, ErrRunInProgress
	}
	defer im.running.Unlock()

	sum := Summary{RunID: uuid.NewString(), StartedAt: im.now()}
	im.setState(StateIdle)

	err := im.run(ctx, &sum)

	sum.FinishedAt = im.now()
	outcome := "done"
	switch {
	case err == nil:
		sum.State = StateDone
	default:
		sum.State = StateFailed
		sum.Error = err.Error()
		outcome = "failed"
		var ce *ConfigError
		if errors.As(err, &ce) {
			outcome = "skipped"
		}
	}
	im.mu.Lock()
	im.state = sum.State
	last := sum
	im.last = &last
	im.mu.Unlock()

	metrics.RecordImportRun(outcome, sum.FinishedAt.Sub(sum.StartedAt),
		sum.Created, sum.Updated, sum.Skipped, sum.Failed)
	return sum, err
}

func (im *Importer) run(ctx context.Context, sum *Summary) error {
	runID := sum.RunID

	creds := im.settings.Credentials()
	if missing := missingCredentials(creds); len(missing) > 0 {
		err := &ConfigError{Missing: missing}
		im.sink.Log(appLog.LevelError, "import skipped: provider credentials not configured",
			"run_id", runID, "err", err)
		return err
	}

	im.sink.Log(appLog.LevelInfo, "starting show date import", "run_id", runID)

	ctx, cancel := context.WithTimeout(ctx, im.cfg.RunTimeout)
	defer cancel()

	im.setState(StateAuthenticating)
	tok, err := im.api.Authenticate(ctx, creds)
	if err != nil {
		im.sink.Log(appLog.LevelError, "authentication failed", "run_id", runID, "err", err)
		return err
	}
	authKV := []any{"run_id", runID}
	if !tok.ExpiresAt.IsZero() {
		authKV = append(authKV, "expires_at", tok.ExpiresAt.Format(time.RFC3339))
	}
	im.sink.Log(appLog.LevelInfo, "authenticated", authKV...)

	im.setState(StateFetching)
	events, err := im.api.FetchEvents(ctx, tok)
	if err != nil {
		im.sink.Log(appLog.LevelError, "fetching events failed", "run_id", runID, "err", err)
		return err
	}
	im.sink.Log(appLog.LevelInfo, "fetched events", "run_id", runID, "count", len(events))

	im.setState(StateReconciling)
	if !im.reconciler.HasFieldStore() {
		im.sink.Log(appLog.LevelError, "field storage unavailable; show dates are written without fields",
			"run_id", runID, "err", &StorageCapabilityError{Capability: "fields"})
	}

	for i, e := range events {
		if ctxErr := ctx.Err(); ctxErr != nil {
			remaining := len(events) - i
			sum.Failed += remaining
			im.sink.Log(appLog.LevelError, "import deadline exceeded",
				"run_id", runID, "remaining", remaining, "err", ctxErr)
			return fmt.Errorf("importer: run stopped with %d events left: %w", remaining, ctxErr)
		}

		res, err := im.reconciler.Reconcile(ctx, e)
		if err != nil {
			sum.Failed++
			im.sink.Log(appLog.LevelError, "reconcile failed",
				"run_id", runID, "remote_id", e.ID.String(), "err", err)
			continue
		}
		switch res.Outcome {
		case OutcomeCreated:
			sum.Created++
		case OutcomeUpdated:
			sum.Updated++
		case OutcomeSkipped:
			sum.Skipped++
		}
	}

	im.sink.Log(appLog.LevelInfo, "finished importing",
		"run_id", runID,
		"created", sum.Created,
		"updated", sum.Updated,
		"skipped", sum.Skipped,
		"failed", sum.Failed,
	)
	return nil
}

func missingCredentials(c tuxedo.Credentials) []string {
	var missing []string
	if c.AccountName == "" {
		missing = append(missing, "account")
	}
	if c.Username == "" {
		missing = append(missing, "username")
	}
	if c.Password == "" {
		missing = append(missing, "password")
	}
	return missing
}
