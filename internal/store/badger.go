package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// Key layout. Index keys use NUL separators so values may contain any
// printable character.
const (
	recordPrefix = "rec\x00"    // rec\0<id> -> Record JSON
	typePrefix   = "type\x00"   // type\0<type>\0<id> -> nil
	slugPrefix   = "slug\x00"   // slug\0<type>\0<slug> -> id
	fieldsPrefix = "fields\x00" // fields\0<id> -> map JSON
	metaPrefix   = "meta\x00"   // meta\0<type>\0<key>\0<value>\0<id> -> nil
	sequenceKey  = "seq\x00records"
)

// BadgerStore implements RecordStore and FieldStore on an embedded badger
// database.
type BadgerStore struct {
	db  *badger.DB
	seq *badger.Sequence
	now func() time.Time
}

// Options selects where the database lives.
type Options struct {
	// Path is the data directory. Ignored when InMemory is set.
	Path     string
	InMemory bool
}

// OpenBadger opens (or creates) the store.
func OpenBadger(opts Options) (*BadgerStore, error) {
	var bo badger.Options
	if opts.InMemory {
		bo = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if opts.Path == "" {
			return nil, errors.New("store: path is empty")
		}
		bo = badger.DefaultOptions(opts.Path)
	}
	bo.Logger = nil

	db, err := badger.Open(bo)
	if err != nil {
		return nil, fmt.Errorf("store: open badger: %w", err)
	}
	seq, err := db.GetSequence([]byte(sequenceKey), 64)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: sequence: %w", err)
	}
	return &BadgerStore{db: db, seq: seq, now: time.Now}, nil
}

// Close releases the ID sequence and closes the database.
func (s *BadgerStore) Close() error {
	relErr := s.seq.Release()
	if err := s.db.Close(); err != nil {
		return err
	}
	return relErr
}

// Ping reports whether the database accepts reads.
func (s *BadgerStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.db.IsClosed() {
		return errors.New("store: database closed")
	}
	return s.db.View(func(*badger.Txn) error { return nil })
}

func idKey(id uint64) string {
	// Fixed width keeps iteration in ID order.
	return fmt.Sprintf("%020d", id)
}

func recordKey(id uint64) []byte { return []byte(recordPrefix + idKey(id)) }
func fieldsKey(id uint64) []byte { return []byte(fieldsPrefix + idKey(id)) }
func typeKey(typ string, id uint64) []byte {
	return []byte(typePrefix + typ + "\x00" + idKey(id))
}
func slugKey(typ, slug string) []byte {
	return []byte(slugPrefix + typ + "\x00" + slug)
}
func metaValuePrefix(typ, key, value string) []byte {
	return []byte(metaPrefix + typ + "\x00" + key + "\x00" + value + "\x00")
}
func metaKey(typ, key, value string, id uint64) []byte {
	return append(metaValuePrefix(typ, key, value), idKey(id)...)
}

func getRecord(txn *badger.Txn, id uint64) (Record, error) {
	var rec Record
	item, err := txn.Get(recordKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return rec, ErrNotFound
	}
	if err != nil {
		return rec, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	})
	return rec, err
}

func putRecord(txn *badger.Txn, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	return txn.Set(recordKey(rec.ID), data)
}

func getFields(txn *badger.Txn, id uint64) (map[string]string, error) {
	fields := map[string]string{}
	item, err := txn.Get(fieldsKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fields, nil
	}
	if err != nil {
		return nil, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &fields)
	})
	return fields, err
}

func parseID(b []byte) (uint64, error) {
	return strconv.ParseUint(string(b), 10, 64)
}

// FindOne implements RecordStore. Field lookups return the lowest-ID match.
func (s *BadgerStore) FindOne(ctx context.Context, q Query) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	if q.Type == "" || q.Key == "" {
		return Record{}, fmt.Errorf("%w: query needs type and key", ErrInvalidRecord)
	}

	var found Record
	err := s.db.View(func(txn *badger.Txn) error {
		if q.Key == SlugKey {
			item, err := txn.Get(slugKey(q.Type, q.Value))
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			if err != nil {
				return err
			}
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			id, err := parseID(raw)
			if err != nil {
				return err
			}
			rec, err := getRecord(txn, id)
			if err != nil {
				return err
			}
			if !q.statusAllowed(rec.Status) {
				return ErrNotFound
			}
			found = rec
			return nil
		}

		prefix := metaValuePrefix(q.Type, q.Key, q.Value)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			id, err := parseID(it.Item().Key()[len(prefix):])
			if err != nil {
				return err
			}
			rec, err := getRecord(txn, id)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if rec.Type == q.Type && q.statusAllowed(rec.Status) {
				found = rec
				return nil
			}
		}
		return ErrNotFound
	})
	return found, err
}

// Create implements RecordStore.
func (s *BadgerStore) Create(ctx context.Context, rec Record) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if rec.Type == "" || !validStatus(rec.Status) {
		return 0, fmt.Errorf("%w: type %q status %q", ErrInvalidRecord, rec.Type, rec.Status)
	}

	next, err := s.seq.Next()
	if err != nil {
		return 0, fmt.Errorf("store: next id: %w", err)
	}
	rec.ID = next + 1
	now := s.now().UTC()
	rec.CreatedAt = now
	rec.ModifiedAt = now

	err = s.db.Update(func(txn *badger.Txn) error {
		if rec.Slug != "" {
			if _, err := txn.Get(slugKey(rec.Type, rec.Slug)); err == nil {
				return ErrSlugTaken
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			if err := txn.Set(slugKey(rec.Type, rec.Slug), []byte(strconv.FormatUint(rec.ID, 10))); err != nil {
				return err
			}
		}
		if err := txn.Set(typeKey(rec.Type, rec.ID), nil); err != nil {
			return err
		}
		return putRecord(txn, rec)
	})
	if err != nil {
		return 0, err
	}
	return rec.ID, nil
}

// Update implements RecordStore. Title, slug and status are replaced; the
// type of an existing record cannot change.
func (s *BadgerStore) Update(ctx context.Context, id uint64, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !validStatus(rec.Status) {
		return fmt.Errorf("%w: status %q", ErrInvalidRecord, rec.Status)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		cur, err := getRecord(txn, id)
		if err != nil {
			return err
		}
		if rec.Type != "" && rec.Type != cur.Type {
			return fmt.Errorf("%w: cannot change type %q to %q", ErrInvalidRecord, cur.Type, rec.Type)
		}

		if rec.Slug != cur.Slug {
			if rec.Slug != "" {
				item, err := txn.Get(slugKey(cur.Type, rec.Slug))
				switch {
				case err == nil:
					raw, verr := item.ValueCopy(nil)
					if verr != nil {
						return verr
					}
					if owner, _ := parseID(raw); owner != id {
						return ErrSlugTaken
					}
				case !errors.Is(err, badger.ErrKeyNotFound):
					return err
				}
				if err := txn.Set(slugKey(cur.Type, rec.Slug), []byte(strconv.FormatUint(id, 10))); err != nil {
					return err
				}
			}
			if cur.Slug != "" {
				if err := txn.Delete(slugKey(cur.Type, cur.Slug)); err != nil {
					return err
				}
			}
		}

		cur.Title = rec.Title
		cur.Slug = rec.Slug
		cur.Status = rec.Status
		cur.ModifiedAt = s.now().UTC()
		return putRecord(txn, cur)
	})
}

// Get loads one record by ID.
func (s *BadgerStore) Get(ctx context.Context, id uint64) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	var rec Record
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		rec, err = getRecord(txn, id)
		return err
	})
	return rec, err
}

// List returns every record of typ in ID order.
func (s *BadgerStore) List(ctx context.Context, typ string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := []Record{}
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(typePrefix + typ + "\x00")
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			id, err := parseID(it.Item().Key()[len(prefix):])
			if err != nil {
				return err
			}
			rec, err := getRecord(txn, id)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	return out, err
}

// SetFields implements FieldStore and keeps the field lookup index current.
func (s *BadgerStore) SetFields(ctx context.Context, id uint64, fields map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		rec, err := getRecord(txn, id)
		if err != nil {
			return err
		}
		cur, err := getFields(txn, id)
		if err != nil {
			return err
		}
		for name, value := range fields {
			if old, ok := cur[name]; ok {
				if old == value {
					continue
				}
				if err := txn.Delete(metaKey(rec.Type, name, old, id)); err != nil {
					return err
				}
			}
			if err := txn.Set(metaKey(rec.Type, name, value, id), nil); err != nil {
				return err
			}
			cur[name] = value
		}
		data, err := json.Marshal(cur)
		if err != nil {
			return fmt.Errorf("marshal fields: %w", err)
		}
		return txn.Set(fieldsKey(id), data)
	})
}

// Fields implements FieldStore.
func (s *BadgerStore) Fields(ctx context.Context, id uint64) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var fields map[string]string
	err := s.db.View(func(txn *badger.Txn) error {
		if _, err := getRecord(txn, id); err != nil {
			return err
		}
		var err error
		fields, err = getFields(txn, id)
		return err
	})
	return fields, err
}
