package model

import "time"

// Record types in the content store.
const (
	TypeShow     = "show"
	TypeShowDate = "show_date"
)

// PostStatus is the publication state of a stored record.
type PostStatus string

const (
	StatusPublish PostStatus = "publish"
	StatusDraft   PostStatus = "draft"
)

// Field names written on show_date records and read from show records.
const (
	FieldUUID          = "uuid"
	FieldDate          = "date"
	FieldTuxedoURL     = "tuxedo_url"
	FieldVenueID       = "tuxedo_venue_id"
	FieldIsPublished   = "tuxedo_is_published"
	FieldSoldOut       = "tuxedo_soldout"
	FieldSchoolOnly    = "school_only"
	FieldShow          = "show"
	FieldTuxedoShowID  = "tuxedo_show_id"
	DateLayout         = "2006-01-02 15:04:05"
	DefaultDisplayZone = "America/Toronto"
)

// Show is a show provisioned by an editor. The importer only looks shows up,
// by TuxedoShowID.
type Show struct {
	ID           uint64     `json:"id"`
	Title        string     `json:"title"`
	TuxedoShowID string     `json:"tuxedo_show_id"`
	Status       PostStatus `json:"status"`
}

// ShowDate is one scheduled performance of a Show, keyed by UUID (the
// fingerprint of the remote event).
type ShowDate struct {
	ID     uint64     `json:"id"`
	UUID   string     `json:"uuid"`
	Title  string     `json:"title"`
	Status PostStatus `json:"status"`

	// Start is the performance time in the configured display timezone.
	Start time.Time `json:"start"`

	TuxedoURL   string `json:"tuxedo_url"`
	VenueID     string `json:"tuxedo_venue_id"`
	IsPublished bool   `json:"tuxedo_is_published"`
	SoldOut     bool   `json:"tuxedo_soldout"`
	SchoolOnly  bool   `json:"school_only"`

	// ShowID is the store ID of the related Show.
	ShowID uint64 `json:"show"`

	// RemoteID is the provider's event id; kept for logging only.
	RemoteID string `json:"-"`
}
