package tuxedo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"

	appLog "showsync/internal/log"
)

const (
	// DefaultBaseURI is the public Tuxedo API endpoint.
	DefaultBaseURI = "https://api.tuxedoticket.ca/"
	// DefaultTimeout bounds every request so a scheduled run fails fast.
	DefaultTimeout = 2 * time.Second

	maxBodyBytes = 32 << 20
)

// Client talks to the Tuxedo ticketing API. It holds no per-run state; the
// token returned by Authenticate is passed explicitly to each fetch.
type Client struct {
	base   *url.URL
	client *http.Client
}

// NewClient creates a Client for baseURI. A zero timeout uses DefaultTimeout.
func NewClient(baseURI string, timeout time.Duration) (*Client, error) {
	if baseURI == "" {
		baseURI = DefaultBaseURI
	}
	u, err := url.Parse(baseURI)
	if err != nil {
		return nil, fmt.Errorf("tuxedo: invalid base uri: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("tuxedo: base uri must be http(s), got %q", baseURI)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		base:   u,
		client: &http.Client{Timeout: timeout},
	}, nil
}

func (c *Client) endpoint(path string) string {
	return c.base.ResolveReference(&url.URL{Path: path}).String()
}

// Authenticate exchanges credentials for a bearer token via
// POST v1/authentication. Any status above 201 is an *AuthError.
func (c *Client) Authenticate(ctx context.Context, creds Credentials) (Token, error) {
	body, err := json.Marshal(creds)
	if err != nil {
		return Token{}, &AuthError{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("v1/authentication"), bytes.NewReader(body))
	if err != nil {
		return Token{}, &AuthError{Err: err}
	}
	setJSONHeaders(req)

	appLog.Debug("tuxedo authenticate start", "base", redactURL(c.base.String()), "account", creds.AccountName)

	resp, err := c.client.Do(req)
	if err != nil {
		return Token{}, &AuthError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode > http.StatusCreated {
		return Token{}, &AuthError{Status: resp.StatusCode, Err: errors.New(resp.Status)}
	}

	var ar authResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&ar); err != nil {
		return Token{}, &AuthError{Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if ar.JWT == "" {
		return Token{}, &AuthError{Status: resp.StatusCode, Err: errors.New("response carried no jwt")}
	}

	return Token{Bearer: ar.JWT, ExpiresAt: tokenExpiry(ar.JWT)}, nil
}

// FetchEvents returns the full event collection from GET v1/events.
func (c *Client) FetchEvents(ctx context.Context, tok Token) ([]Event, error) {
	var events []Event
	if err := c.getJSON(ctx, tok, "events", &events); err != nil {
		return nil, err
	}
	return events, nil
}

// FetchShows returns the provider show catalog reduced to id, French label
// and ticketing URL.
func (c *Client) FetchShows(ctx context.Context, tok Token) ([]ShowSummary, error) {
	var shows []Show
	if err := c.getJSON(ctx, tok, "shows", &shows); err != nil {
		return nil, err
	}
	out := make([]ShowSummary, 0, len(shows))
	for _, s := range shows {
		out = append(out, ShowSummary{
			ID:    s.ID.String(),
			Label: s.Title.French,
			URL:   s.TuxedoURL,
		})
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, tok Token, resource string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("v1/"+resource), nil)
	if err != nil {
		return &FetchError{Resource: resource, Err: err}
	}
	setJSONHeaders(req)
	req.Header.Set("Authorization", "Bearer "+tok.Bearer)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return &FetchError{Resource: resource, Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(dst); err != nil {
			return &FetchError{Resource: resource, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
		}
		appLog.Debug("tuxedo fetch success", "resource", resource, "status", resp.StatusCode, "elapsed", time.Since(start))
		return nil
	default:
		return &FetchError{Resource: resource, Status: resp.StatusCode, Err: errors.New(resp.Status)}
	}
}

func setJSONHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
}

// tokenExpiry reads the exp claim without verifying the signature; the
// provider is the only party that can verify it.
func tokenExpiry(raw string) time.Time {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

// redactURL keeps only scheme and host for logging.
func redactURL(u string) string {
	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" {
		return "tuxedo://...(redacted)"
	}
	return parsed.Scheme + "://" + parsed.Host
}
