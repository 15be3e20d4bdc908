// Package store is the content store the importer writes into: typed
// records (posts) with a title, slug and status, plus a separate field
// layer holding per-record custom fields.
//
// RecordStore and FieldStore are separate capabilities. The importer is
// handed a FieldStore only when field storage is available; without it,
// records are still created and updated, but carry no derived fields.
package store

import (
	"context"
	"errors"
	"time"

	"showsync/internal/model"
)

var (
	ErrNotFound      = errors.New("store: record not found")
	ErrInvalidRecord = errors.New("store: invalid record")
	ErrSlugTaken     = errors.New("store: slug already used by another record")
)

// SlugKey selects lookup by Record.Slug instead of by a field value.
const SlugKey = "slug"

// Record is one stored post.
type Record struct {
	ID         uint64           `json:"id"`
	Type       string           `json:"type"`
	Title      string           `json:"title"`
	Slug       string           `json:"slug"`
	Status     model.PostStatus `json:"status"`
	CreatedAt  time.Time        `json:"created_at"`
	ModifiedAt time.Time        `json:"modified_at"`
}

// Query finds at most one record of Type whose Key (SlugKey or a field
// name) equals Value. An empty Statuses matches any status.
type Query struct {
	Type     string
	Key      string
	Value    string
	Statuses []model.PostStatus
}

func (q Query) statusAllowed(s model.PostStatus) bool {
	if len(q.Statuses) == 0 {
		return true
	}
	for _, want := range q.Statuses {
		if s == want {
			return true
		}
	}
	return false
}

// RecordStore creates, updates and looks up records.
type RecordStore interface {
	FindOne(ctx context.Context, q Query) (Record, error)
	Create(ctx context.Context, rec Record) (uint64, error)
	Update(ctx context.Context, id uint64, rec Record) error
}

// FieldStore writes and reads custom fields of a record. SetFields replaces
// the value of every named field and leaves others untouched.
type FieldStore interface {
	SetFields(ctx context.Context, id uint64, fields map[string]string) error
	Fields(ctx context.Context, id uint64) (map[string]string, error)
}

func validStatus(s model.PostStatus) bool {
	return s == model.StatusPublish || s == model.StatusDraft
}
