package log

import (
	"sync"
	"time"
)

// Sink accepts leveled messages. The import pipeline logs through a Sink so
// that a run's events can be captured as well as written to the global log.
type Sink interface {
	Log(level Level, msg string, kv ...any)
}

type stdSink struct{}

// Std returns a Sink that writes to the global logger.
func Std() Sink { return stdSink{} }

func (stdSink) Log(level Level, msg string, kv ...any) {
	logWithLevel(level, msg, kv...)
}

type tee []Sink

// Tee returns a Sink that forwards every entry to each of sinks in order.
func Tee(sinks ...Sink) Sink { return tee(sinks) }

func (t tee) Log(level Level, msg string, kv ...any) {
	for _, s := range t {
		s.Log(level, msg, kv...)
	}
}

// Entry is one message retained by a Ring.
type Entry struct {
	Time    time.Time      `json:"time"`
	Level   Level          `json:"level"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// Line renders the entry as "LEVEL message key=value ...".
func (e Entry) Line() string {
	kv := make([]any, 0, len(e.Fields)*2)
	for k, v := range e.Fields {
		kv = append(kv, k, v)
	}
	return string(e.Level) + " " + e.Message + formatKVs(kv...)
}

// Ring keeps the most recent entries in memory, oldest first.
type Ring struct {
	mu      sync.Mutex
	size    int
	entries []Entry
	now     func() time.Time
}

// NewRing creates a Ring holding at most size entries (minimum 1).
func NewRing(size int) *Ring {
	if size < 1 {
		size = 1
	}
	return &Ring{size: size, now: time.Now}
}

func (r *Ring) Log(level Level, msg string, kv ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{
		Time:    r.now(),
		Level:   level,
		Message: msg,
		Fields:  pairs(kv),
	})
	if over := len(r.entries) - r.size; over > 0 {
		r.entries = append(r.entries[:0:0], r.entries[over:]...)
	}
}

// Entries returns a copy of the retained entries.
func (r *Ring) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Reset drops all retained entries.
func (r *Ring) Reset() {
	r.mu.Lock()
	r.entries = nil
	r.mu.Unlock()
}

// CronLogger adapts the global logger to robfig/cron's Logger interface.
type CronLogger struct{}

func (CronLogger) Info(msg string, keysAndValues ...interface{}) {
	Debug("cron: "+msg, keysAndValues...)
}

func (CronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	Error("cron: "+msg, err, keysAndValues...)
}
