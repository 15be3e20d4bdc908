package log

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const defaultMaxFiles = 5

// RotatingFile is an io.Writer that appends to one file per calendar day
// (<dir>/<name>-YYYY-MM-DD.log) and prunes the oldest files beyond maxFiles.
type RotatingFile struct {
	dir      string
	name     string
	maxFiles int

	mu      sync.Mutex
	day     string
	current *os.File
	now     func() time.Time
}

// NewRotatingFile prepares a rotating writer under dir, creating the
// directory with 0700 permissions if needed. The first file is opened lazily.
func NewRotatingFile(dir, name string, maxFiles int) (*RotatingFile, error) {
	if dir == "" {
		return nil, errors.New("log dir is empty")
	}
	if name == "" {
		name = "showsync"
	}
	if maxFiles <= 0 {
		maxFiles = defaultMaxFiles
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &RotatingFile{
		dir:      dir,
		name:     name,
		maxFiles: maxFiles,
		now:      time.Now,
	}, nil
}

func (r *RotatingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	day := r.now().Format("2006-01-02")
	if r.current == nil || day != r.day {
		if err := r.rotate(day); err != nil {
			return 0, err
		}
	}
	return r.current.Write(p)
}

// rotate must be called with r.mu held.
func (r *RotatingFile) rotate(day string) error {
	if r.current != nil {
		_ = r.current.Close()
		r.current = nil
	}
	f, err := os.OpenFile(r.pathFor(day), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return err
	}
	r.current = f
	r.day = day
	r.prune()
	return nil
}

func (r *RotatingFile) pathFor(day string) string {
	return filepath.Join(r.dir, r.name+"-"+day+".log")
}

// prune removes the oldest files so that at most maxFiles remain.
func (r *RotatingFile) prune() {
	files := r.list()
	if len(files) <= r.maxFiles {
		return
	}
	for _, f := range files[:len(files)-r.maxFiles] {
		_ = os.Remove(f)
	}
}

// list returns this writer's files sorted oldest first. The date suffix
// sorts lexically.
func (r *RotatingFile) list() []string {
	matches, err := filepath.Glob(filepath.Join(r.dir, r.name+"-*.log"))
	if err != nil {
		return nil
	}
	out := matches[:0]
	for _, m := range matches {
		day := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(m), r.name+"-"), ".log")
		if _, err := time.Parse("2006-01-02", day); err == nil {
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out
}

// Latest returns the newest log file path, or "" if none exist.
func (r *RotatingFile) Latest() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	files := r.list()
	if len(files) == 0 {
		return ""
	}
	return files[len(files)-1]
}

func (r *RotatingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return nil
	}
	err := r.current.Close()
	r.current = nil
	return err
}
