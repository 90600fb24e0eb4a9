// Package transcript persists completed question/answer pairs as markdown
// records under a single storage root. Records are immutable once written;
// every read or delete validates that the requested filename resolves to a
// canonical path inside the root before the filesystem is touched.
package transcript

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/fundmesh/logging"
)

// RecordExt is the filename extension of persisted Q&A records.
const RecordExt = ".md"

var (
	// ErrNotFound indicates the requested record does not exist or is not a
	// regular file.
	ErrNotFound = errors.New("transcript: record not found")
	// ErrPathViolation indicates the requested filename resolves outside the
	// storage root.
	ErrPathViolation = errors.New("transcript: path outside storage root")
	// ErrInvalidFormat indicates the requested filename does not carry the
	// record extension.
	ErrInvalidFormat = errors.New("transcript: invalid record filename")
)

// Options configures a Store.
type Options struct {
	// Logger receives operational messages. Defaults to NoOpLogger.
	Logger logging.Logger
	// Now supplies timestamps for record naming. Defaults to time.Now.
	Now func() time.Time
}

// Store is an append-only transcript store rooted at a single directory.
// All methods are safe for concurrent use; filename generation is serialized
// so that two records appended in the same second never collide.
type Store struct {
	root   string
	logger logging.Logger
	now    func() time.Time

	mu sync.Mutex
}

// NewStore creates (if necessary) the storage directory and returns a store
// bound to its canonical absolute path.
func NewStore(dir string, optFns ...func(o *Options)) (*Store, error) {
	opts := Options{
		Logger: logging.NoOpLogger{},
		Now:    time.Now,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create transcript dir: %w", err)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve transcript dir: %w", err)
	}

	// Canonicalize so later confinement checks compare like with like even
	// when the root itself sits behind a symlink (e.g. /tmp on macOS).
	root, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("canonicalize transcript dir: %w", err)
	}

	return &Store{root: root, logger: opts.Logger, now: opts.Now}, nil
}

// Root returns the canonical storage root.
func (s *Store) Root() string { return s.root }

// Append writes a new record for the given question/answer pair and returns
// the generated filename. The write is atomic: content lands in a temporary
// file which is renamed into place, so a partially written record is never
// observable through List or Read.
func (s *Store) Append(question, answer string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.now()
	name := ts.Format("20060102_150405") + RecordExt
	for i := 1; ; i++ {
		if _, err := os.Lstat(filepath.Join(s.root, name)); errors.Is(err, os.ErrNotExist) {
			break
		}
		name = fmt.Sprintf("%s_%d%s", ts.Format("20060102_150405"), i, RecordExt)
	}

	content := formatRecord(ts, question, answer)

	tmp, err := os.CreateTemp(s.root, ".record-*")
	if err != nil {
		return "", fmt.Errorf("create temp record: %w", err)
	}
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close record: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.root, name)); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("publish record: %w", err)
	}

	s.logger.Info("transcript saved", "file", name)

	return name, nil
}

// List returns all record filenames sorted by modification time, newest
// first. The listing is computed fresh on every call.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("list transcripts: %w", err)
	}

	type record struct {
		name string
		mod  time.Time
	}

	records := make([]record, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), RecordExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		records = append(records, record{name: e.Name(), mod: info.ModTime()})
	}

	sort.Slice(records, func(i, j int) bool { return records[i].mod.After(records[j].mod) })

	names := make([]string, len(records))
	for i, r := range records {
		names[i] = r.name
	}
	return names, nil
}

// Read returns the content of a single record. The filename is confined to
// the storage root before any filesystem access.
func (s *Store) Read(name string) (string, error) {
	path, err := s.resolve(name)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read record %s: %w", name, err)
	}
	return string(data), nil
}

// DeleteResult reports the per-item outcome of a batch delete.
type DeleteResult struct {
	// Deleted holds the filenames that were removed.
	Deleted []string
	// Failed maps each filename that could not be removed to a reason.
	Failed map[string]string
}

// Delete removes the named records best effort: each filename is validated
// and deleted independently, and an individual failure never aborts the
// remaining names.
func (s *Store) Delete(names []string) DeleteResult {
	res := DeleteResult{Deleted: []string{}, Failed: map[string]string{}}

	for _, name := range names {
		if !strings.HasSuffix(name, RecordExt) {
			res.Failed[name] = fmt.Sprintf("%v", ErrInvalidFormat)
			continue
		}

		path, err := s.resolve(name)
		if err != nil {
			res.Failed[name] = "invalid file path"
			continue
		}

		if _, err := os.Lstat(path); errors.Is(err, os.ErrNotExist) {
			res.Failed[name] = "file does not exist"
			continue
		}

		if err := os.Remove(path); err != nil {
			res.Failed[name] = err.Error()
			s.logger.Error("failed to delete transcript", "file", name, "error", err)
			continue
		}

		s.logger.Info("transcript deleted", "file", name)
		res.Deleted = append(res.Deleted, name)
	}

	return res
}

// resolve maps a user supplied filename to a canonical absolute path and
// verifies it lies strictly inside the storage root. Comparing path
// components via filepath.Rel avoids the classic prefix-check bypass where a
// sibling directory shares the root's name as a prefix.
func (s *Store) resolve(name string) (string, error) {
	joined := filepath.Join(s.root, name)

	abs, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrPathViolation, name)
	}

	// Canonicalize the containing directory; the record itself may not exist
	// yet (or already be gone) which is fine.
	dir, base := filepath.Split(abs)
	canonDir, err := filepath.EvalSymlinks(filepath.Clean(dir))
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrPathViolation, name)
	}
	canon := filepath.Join(canonDir, base)

	// The record itself may be a symlink; resolve it too so a link planted
	// inside the root cannot reach outside. A missing file is fine.
	if resolved, err := filepath.EvalSymlinks(canon); err == nil {
		canon = resolved
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrPathViolation, name)
	}

	rel, err := filepath.Rel(s.root, canon)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: %s", ErrPathViolation, name)
	}

	return canon, nil
}

func formatRecord(ts time.Time, question, answer string) string {
	var b strings.Builder
	b.WriteString("# Q&A Record\n\n")
	fmt.Fprintf(&b, "**Time**: %s\n\n", ts.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "**Question**:\n\n%s\n\n", question)
	fmt.Fprintf(&b, "**Answer**:\n\n%s\n\n", answer)
	return b.String()
}
