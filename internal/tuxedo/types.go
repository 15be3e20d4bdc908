package tuxedo

import (
	"bytes"
	"errors"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

// FlexString accepts either a JSON string or a JSON number. Provider ids
// are documented as strings but arrive as integers on some endpoints.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	if _, err := strconv.ParseFloat(string(b), 64); err != nil {
		return errors.New("tuxedo: id is neither string nor number: " + string(b))
	}
	*f = FlexString(b)
	return nil
}

func (f FlexString) String() string { return string(f) }

// Event is one performance as returned by GET /v1/events.
type Event struct {
	ID                 FlexString `json:"id"`
	Date               string     `json:"date"`
	ShowID             FlexString `json:"showId"`
	TuxedoURL          string     `json:"tuxedoUrl"`
	VenueID            FlexString `json:"venueId"`
	IsPublished        bool       `json:"isPublished"`
	IsSoldOut          bool       `json:"isSoldOut,omitempty"`
	OtherStatus        string     `json:"otherStatus,omitempty"`
	IsClosed           bool       `json:"isClosed,omitempty"`
	ExcludedFromTheWeb bool       `json:"excludedFromTheWeb,omitempty"`
}

// Title is the localized title object on a provider show.
type Title struct {
	French  string `json:"french"`
	English string `json:"english,omitempty"`
}

// Show is one entry of GET /v1/shows.
type Show struct {
	ID        FlexString `json:"id"`
	Title     Title      `json:"title"`
	TuxedoURL string     `json:"tuxedoUrl"`
}

// ShowSummary is the reduced show shape used by the admin show filter.
type ShowSummary struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	URL   string `json:"url"`
}

// Credentials identify an account on the provider.
type Credentials struct {
	AccountName string `json:"accountName"`
	Username    string `json:"username"`
	Password    string `json:"password"`
}

// Complete reports whether all three credential fields are set.
func (c Credentials) Complete() bool {
	return c.AccountName != "" && c.Username != "" && c.Password != ""
}

// Token is a bearer token valid for the current run only.
type Token struct {
	Bearer string
	// ExpiresAt is read from the JWT exp claim when present; zero otherwise.
	ExpiresAt time.Time
}

// Expired reports whether the token carries an expiry that is not after now.
func (t Token) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !t.ExpiresAt.After(now)
}

type authResponse struct {
	JWT string `json:"jwt"`
}
