package tuxedo

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
)

type fakeProvider struct {
	authStatus int
	jwt        string
	events     string
	shows      string

	mu         sync.Mutex
	lastAuth   Credentials
	lastBearer string
}

func (p *fakeProvider) seen() (Credentials, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastAuth, p.lastBearer
}

func (p *fakeProvider) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/authentication", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("authentication method = %s, want POST", r.Method)
		}
		body, _ := io.ReadAll(r.Body)
		var creds Credentials
		if err := json.Unmarshal(body, &creds); err != nil {
			t.Errorf("authentication body: %v", err)
		}
		p.mu.Lock()
		p.lastAuth = creds
		p.mu.Unlock()
		status := p.authStatus
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"jwt":"` + p.jwt + `"}`))
	})
	mux.HandleFunc("/v1/events", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.lastBearer = r.Header.Get("Authorization")
		p.mu.Unlock()
		_, _ = w.Write([]byte(p.events))
	})
	mux.HandleFunc("/v1/shows", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+p.jwt {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(p.shows))
	})
	return mux
}

func newTestClient(t *testing.T, p *fakeProvider) *Client {
	t.Helper()
	srv := httptest.NewServer(p.handler(t))
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL, time.Second)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

var testCreds = Credentials{AccountName: "theatre", Username: "importer", Password: "secret"}

func TestAuthenticateAndFetchEvents(t *testing.T) {
	p := &fakeProvider{
		jwt: "abc.def.ghi",
		events: `[
			{"id": 42, "date": "2030-01-01T20:00:00Z", "showId": "7", "tuxedoUrl": "https://t/42",
			 "venueId": 3, "isPublished": true, "otherStatus": "soldOut"},
			{"id": "43", "date": "2030-01-02T20:00:00Z", "showId": 7, "isClosed": true, "excludedFromTheWeb": true}
		]`,
	}
	c := newTestClient(t, p)
	ctx := context.Background()

	tok, err := c.Authenticate(ctx, testCreds)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if tok.Bearer != "abc.def.ghi" {
		t.Errorf("Bearer = %q", tok.Bearer)
	}
	if sent, _ := p.seen(); sent != testCreds {
		t.Errorf("sent credentials = %+v, want %+v", sent, testCreds)
	}

	events, err := c.FetchEvents(ctx, tok)
	if err != nil {
		t.Fatalf("FetchEvents() error = %v", err)
	}
	if _, bearer := p.seen(); bearer != "Bearer abc.def.ghi" {
		t.Errorf("Authorization = %q", bearer)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	first := events[0]
	if first.ID != "42" || first.ShowID != "7" || first.VenueID != "3" {
		t.Errorf("ids = %q/%q/%q, want 42/7/3", first.ID, first.ShowID, first.VenueID)
	}
	if !first.IsPublished || first.OtherStatus != "soldOut" || first.IsClosed {
		t.Errorf("flags = %+v", first)
	}
	second := events[1]
	if second.ID != "43" || second.ShowID != "7" || !second.IsClosed || !second.ExcludedFromTheWeb {
		t.Errorf("second = %+v", second)
	}
}

func TestAuthenticateRejectsStatusAbove201(t *testing.T) {
	for _, status := range []int{http.StatusAccepted, http.StatusUnauthorized, http.StatusInternalServerError} {
		p := &fakeProvider{authStatus: status, jwt: "x"}
		c := newTestClient(t, p)

		_, err := c.Authenticate(context.Background(), testCreds)
		var ae *AuthError
		if !errors.As(err, &ae) {
			t.Fatalf("status %d: error = %v, want *AuthError", status, err)
		}
		if ae.Status != status {
			t.Errorf("AuthError.Status = %d, want %d", ae.Status, status)
		}
	}
}

func TestAuthenticateAccepts201(t *testing.T) {
	p := &fakeProvider{authStatus: http.StatusCreated, jwt: "tok"}
	c := newTestClient(t, p)
	if _, err := c.Authenticate(context.Background(), testCreds); err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
}

func TestAuthenticateEmptyJWT(t *testing.T) {
	p := &fakeProvider{}
	c := newTestClient(t, p)
	var ae *AuthError
	if _, err := c.Authenticate(context.Background(), testCreds); !errors.As(err, &ae) {
		t.Fatalf("error = %v, want *AuthError", err)
	}
}

func TestAuthenticateReadsExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("provider-key"))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}

	c := newTestClient(t, &fakeProvider{jwt: raw})
	tok, err := c.Authenticate(context.Background(), testCreds)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if !tok.ExpiresAt.Equal(exp) {
		t.Errorf("ExpiresAt = %v, want %v", tok.ExpiresAt, exp)
	}
	if tok.Expired(time.Now()) {
		t.Error("fresh token reported expired")
	}
	if !tok.Expired(exp.Add(time.Second)) {
		t.Error("token not expired after exp")
	}
}

func TestAuthenticateNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewClient(url, 200*time.Millisecond)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	var ae *AuthError
	if _, err := c.Authenticate(context.Background(), testCreds); !errors.As(err, &ae) {
		t.Fatalf("error = %v, want *AuthError", err)
	}
}

func TestFetchEventsErrors(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantStatus int
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			wantStatus: http.StatusBadGateway,
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"not":"an array"`))
			},
			wantStatus: http.StatusOK,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()
			c, _ := NewClient(srv.URL, time.Second)

			_, err := c.FetchEvents(context.Background(), Token{Bearer: "t"})
			var fe *FetchError
			if !errors.As(err, &fe) {
				t.Fatalf("error = %v, want *FetchError", err)
			}
			if fe.Status != tt.wantStatus || fe.Resource != "events" {
				t.Errorf("FetchError = %+v", fe)
			}
		})
	}
}

func TestFetchShowsMapsFrenchTitle(t *testing.T) {
	p := &fakeProvider{
		jwt:   "tok",
		shows: `[{"id": 7, "title": {"french": "Hamlet (fr)", "english": "Hamlet"}, "tuxedoUrl": "https://t/s/7"}]`,
	}
	c := newTestClient(t, p)

	shows, err := c.FetchShows(context.Background(), Token{Bearer: "tok"})
	if err != nil {
		t.Fatalf("FetchShows() error = %v", err)
	}
	want := ShowSummary{ID: "7", Label: "Hamlet (fr)", URL: "https://t/s/7"}
	if len(shows) != 1 || shows[0] != want {
		t.Errorf("shows = %+v, want [%+v]", shows, want)
	}
}

func TestNewClientBaseURIWithPath(t *testing.T) {
	c, err := NewClient("https://example.test/api", 0)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if got := c.endpoint("v1/events"); got != "https://example.test/api/v1/events" {
		t.Errorf("endpoint = %q", got)
	}
	if c.client.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", c.client.Timeout, DefaultTimeout)
	}
	if _, err := NewClient("ftp://example.test", 0); err == nil {
		t.Error("NewClient(ftp) error = nil")
	}
}

func TestFlexStringRejectsObjects(t *testing.T) {
	var e Event
	if err := json.Unmarshal([]byte(`{"id": {"nested": true}}`), &e); err == nil {
		t.Errorf("Unmarshal() error = nil, want rejection of object id")
	}
}
