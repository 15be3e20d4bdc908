package importer

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	appLog "showsync/internal/log"
	"showsync/internal/model"
	"showsync/internal/store"
	"showsync/internal/tuxedo"
)

type spyAPI struct {
	mu         sync.Mutex
	authErr    error
	fetchErr   error
	events     []tuxedo.Event
	authCalls  int
	fetchCalls int

	// entered and release let a test hold a run inside Authenticate.
	entered chan struct{}
	release chan struct{}
}

func (a *spyAPI) Authenticate(ctx context.Context, _ tuxedo.Credentials) (tuxedo.Token, error) {
	a.mu.Lock()
	a.authCalls++
	a.mu.Unlock()
	if a.entered != nil {
		close(a.entered)
		<-a.release
	}
	if a.authErr != nil {
		return tuxedo.Token{}, a.authErr
	}
	return tuxedo.Token{Bearer: "jwt"}, nil
}

func (a *spyAPI) FetchEvents(context.Context, tuxedo.Token) ([]tuxedo.Event, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fetchCalls++
	if a.fetchErr != nil {
		return nil, a.fetchErr
	}
	return a.events, nil
}

func (a *spyAPI) FetchShows(context.Context, tuxedo.Token) ([]tuxedo.ShowSummary, error) {
	return nil, nil
}

func (a *spyAPI) calls() (auth, fetch int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.authCalls, a.fetchCalls
}

type staticSettings tuxedo.Credentials

func (s staticSettings) Credentials() tuxedo.Credentials { return tuxedo.Credentials(s) }

var goodSettings = staticSettings{AccountName: "theatre", Username: "importer", Password: "secret"}

// failingCreates rejects creates of records whose title starts with prefix.
type failingCreates struct {
	store.RecordStore
	prefix string
}

func (f failingCreates) Create(ctx context.Context, rec store.Record) (uint64, error) {
	if strings.HasPrefix(rec.Title, f.prefix) {
		return 0, errors.New("disk full")
	}
	return f.RecordStore.Create(ctx, rec)
}

// stalledStore blocks every lookup until the context ends.
type stalledStore struct {
	store.RecordStore
}

func (stalledStore) FindOne(ctx context.Context, _ store.Query) (store.Record, error) {
	<-ctx.Done()
	return store.Record{}, ctx.Err()
}

func newTestImporter(t *testing.T, api tuxedo.API, settings Settings, records store.RecordStore, fields store.FieldStore, ring *appLog.Ring, cfg Config) *Importer {
	t.Helper()
	im, err := New(api, settings, records, fields, newNormalizer(t), ring, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	im.reconciler.now = func() time.Time { return fixedNow }
	return im
}

func countMessages(ring *appLog.Ring, msg string) int {
	n := 0
	for _, e := range ring.Entries() {
		if e.Message == msg {
			n++
		}
	}
	return n
}

func TestRunEndToEnd(t *testing.T) {
	s := openStore(t)
	addShow(t, s, "Hamlet", "7")
	ring := appLog.NewRing(50)
	api := &spyAPI{events: []tuxedo.Event{{ID: "42", Date: "2030-01-01T20:00:00Z", ShowID: "7", IsClosed: false}}}
	im := newTestImporter(t, api, goodSettings, s, s, ring, Config{})

	sum, err := im.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if sum.State != StateDone || sum.Created != 1 || sum.RunID == "" {
		t.Fatalf("summary = %+v", sum)
	}

	want := sha1Hex("42-2030-01-01T20:00:00Z-7")
	rec, err := s.FindOne(context.Background(), store.Query{Type: model.TypeShowDate, Key: store.SlugKey, Value: want})
	if err != nil {
		t.Fatalf("FindOne(uuid) error = %v", err)
	}
	if rec.Status != model.StatusPublish {
		t.Errorf("Status = %s, want publish", rec.Status)
	}
	if !strings.HasPrefix(rec.Title, "Hamlet @ ") {
		t.Errorf("Title = %q, want prefix %q", rec.Title, "Hamlet @ ")
	}
	fields, _ := s.Fields(context.Background(), rec.ID)
	if fields[model.FieldUUID] != want {
		t.Errorf("uuid field = %q, want %q", fields[model.FieldUUID], want)
	}
	if countMessages(ring, "finished importing") != 1 {
		t.Errorf("missing finished importing log: %+v", ring.Entries())
	}
	if last, ok := im.Last(); !ok || last.RunID != sum.RunID {
		t.Errorf("Last() = %+v, %v", last, ok)
	}
	if im.State() != StateDone {
		t.Errorf("State() = %s, want DONE", im.State())
	}
}

func TestRunTwiceIsIdempotent(t *testing.T) {
	s := openStore(t)
	addShow(t, s, "Hamlet", "7")
	api := &spyAPI{events: []tuxedo.Event{hamletEvent()}}
	im := newTestImporter(t, api, goodSettings, s, s, appLog.NewRing(50), Config{})

	if _, err := im.Run(context.Background()); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	sum, err := im.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if sum.Created != 0 || sum.Updated != 1 {
		t.Errorf("second run = %+v, want one update", sum)
	}
	recs, _ := s.List(context.Background(), model.TypeShowDate)
	if len(recs) != 1 || recs[0].Slug != sha1Hex("42-2030-01-01T20:00:00Z-7") {
		t.Errorf("show dates = %+v", recs)
	}
}

func TestRunIsolatesItemFailures(t *testing.T) {
	s := openStore(t)
	addShow(t, s, "Hamlet", "7")
	addShow(t, s, "Broken", "8")
	ring := appLog.NewRing(50)
	api := &spyAPI{events: []tuxedo.Event{
		{ID: "1", Date: "2030-01-01T20:00:00Z", ShowID: "7"},
		{ID: "2", Date: "2030-01-02T20:00:00Z", ShowID: "8"},
		{ID: "3", Date: "2030-01-03T20:00:00Z", ShowID: "7"},
	}}
	im := newTestImporter(t, api, goodSettings, failingCreates{RecordStore: s, prefix: "Broken"}, s, ring, Config{})

	sum, err := im.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if sum.State != StateDone || sum.Created != 2 || sum.Failed != 1 {
		t.Errorf("summary = %+v, want DONE with 2 created and 1 failed", sum)
	}

	var failed []appLog.Entry
	for _, e := range ring.Entries() {
		if e.Message == "reconcile failed" {
			failed = append(failed, e)
		}
	}
	if len(failed) != 1 || failed[0].Fields["remote_id"] != "2" {
		t.Errorf("failure entries = %+v", failed)
	}
}

func TestRunAuthFailureSkipsFetch(t *testing.T) {
	s := openStore(t)
	api := &spyAPI{authErr: &tuxedo.AuthError{Status: http.StatusInternalServerError, Err: errors.New("500")}}
	ring := appLog.NewRing(50)
	im := newTestImporter(t, api, goodSettings, s, s, ring, Config{})

	sum, err := im.Run(context.Background())
	var ae *tuxedo.AuthError
	if !errors.As(err, &ae) {
		t.Fatalf("error = %v, want *AuthError", err)
	}
	if _, fetches := api.calls(); fetches != 0 {
		t.Errorf("FetchEvents called %d times after auth failure", fetches)
	}
	if sum.State != StateFailed {
		t.Errorf("State = %s, want FAILED", sum.State)
	}
	if countMessages(ring, "authentication failed") != 1 {
		t.Errorf("log entries = %+v", ring.Entries())
	}
}

func TestRunFetchFailure(t *testing.T) {
	s := openStore(t)
	api := &spyAPI{fetchErr: &tuxedo.FetchError{Resource: "events", Status: http.StatusBadGateway, Err: errors.New("502")}}
	im := newTestImporter(t, api, goodSettings, s, s, appLog.NewRing(50), Config{})

	sum, err := im.Run(context.Background())
	var fe *tuxedo.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("error = %v, want *FetchError", err)
	}
	if sum.State != StateFailed || sum.Error == "" {
		t.Errorf("summary = %+v", sum)
	}
}

func TestRunMissingCredentials(t *testing.T) {
	s := openStore(t)
	api := &spyAPI{}
	ring := appLog.NewRing(50)
	im := newTestImporter(t, api, staticSettings{AccountName: "theatre"}, s, s, ring, Config{})

	_, err := im.Run(context.Background())
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("error = %v, want *ConfigError", err)
	}
	if strings.Join(ce.Missing, ",") != "username,password" {
		t.Errorf("Missing = %v", ce.Missing)
	}
	if auth, _ := api.calls(); auth != 0 {
		t.Errorf("Authenticate called %d times", auth)
	}
	entries := ring.Entries()
	if len(entries) != 1 || entries[0].Level != appLog.LevelError {
		t.Errorf("log entries = %+v, want one error", entries)
	}
}

func TestRunRejectsOverlap(t *testing.T) {
	s := openStore(t)
	api := &spyAPI{entered: make(chan struct{}), release: make(chan struct{})}
	im := newTestImporter(t, api, goodSettings, s, s, appLog.NewRing(50), Config{})

	done := make(chan error, 1)
	go func() {
		_, err := im.Run(context.Background())
		done <- err
	}()
	<-api.entered

	sum, err := im.Run(context.Background())
	if !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("overlapping Run() error = %v, want ErrRunInProgress", err)
	}
	if sum.State != StateAuthenticating {
		t.Errorf("State = %s, want AUTHENTICATING", sum.State)
	}

	close(api.release)
	if err := <-done; err != nil {
		t.Fatalf("first Run() error = %v", err)
	}

	// guard released: a later run proceeds
	api.entered = nil
	if _, err := im.Run(context.Background()); err != nil {
		t.Errorf("Run() after release error = %v", err)
	}
}

func TestRunWithoutFieldStoreLogsOnce(t *testing.T) {
	s := openStore(t)
	addShow(t, s, "Hamlet", "7")
	ring := appLog.NewRing(50)
	api := &spyAPI{events: []tuxedo.Event{
		{ID: "1", Date: "2030-01-01T20:00:00Z", ShowID: "7"},
		{ID: "2", Date: "2030-01-02T20:00:00Z", ShowID: "7"},
	}}
	im := newTestImporter(t, api, goodSettings, s, nil, ring, Config{})

	sum, err := im.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if sum.Created != 2 {
		t.Errorf("Created = %d, want 2 shells", sum.Created)
	}
	if n := countMessages(ring, "field storage unavailable; show dates are written without fields"); n != 1 {
		t.Errorf("capability log count = %d, want 1", n)
	}
	if im.HasFieldStore() {
		t.Error("HasFieldStore() = true")
	}
}

func TestRunDeadlineFailsRemainingItems(t *testing.T) {
	s := openStore(t)
	api := &spyAPI{events: []tuxedo.Event{
		{ID: "1", Date: "2030-01-01T20:00:00Z", ShowID: "7"},
		{ID: "2", Date: "2030-01-02T20:00:00Z", ShowID: "7"},
		{ID: "3", Date: "2030-01-03T20:00:00Z", ShowID: "7"},
	}}
	im := newTestImporter(t, api, goodSettings, stalledStore{RecordStore: s}, s, appLog.NewRing(50), Config{RunTimeout: 50 * time.Millisecond})

	sum, err := im.Run(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want deadline exceeded", err)
	}
	if sum.State != StateFailed || sum.Failed != 3 {
		t.Errorf("summary = %+v, want FAILED with 3 failed", sum)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	s := openStore(t)
	if _, err := New(nil, goodSettings, s, s, newNormalizer(t), nil, Config{}); err == nil {
		t.Error("New(nil api) error = nil")
	}
	if _, err := New(&spyAPI{}, goodSettings, nil, s, newNormalizer(t), nil, Config{}); err == nil {
		t.Error("New(nil store) error = nil")
	}
}
