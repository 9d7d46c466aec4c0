// Package artifact writes rendered documents to the output directory and
// maintains the per-controller latest pointer and backups.
package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/loryanstrant/unifi-documenter/internal/model"
	"github.com/loryanstrant/unifi-documenter/internal/render"
)

// TimestampLayout is the timestamp embedded in artifact and backup names.
const TimestampLayout = "20060102_150405"

// Error is a failure to render or persist an artifact.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("artifact %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("artifact %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Artifact describes a written document.
type Artifact struct {
	Path   string
	Latest string
	Size   int
}

// Store manages artifact IO rooted at the output directory.
type Store struct {
	dir         string
	prefix      string
	keepBackups int
	symlinks    bool
	now         func() time.Time
}

// Option customizes a Store during construction.
type Option func(*Store)

// WithClock overrides the clock used for file timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		s.now = clock
	}
}

// WithKeepBackups keeps at most n backups per controller and format. Zero
// keeps all of them.
func WithKeepBackups(n int) Option {
	return func(s *Store) {
		s.keepBackups = n
	}
}

// WithoutSymlinks makes the latest pointer a full copy instead of a symlink.
func WithoutSymlinks() Option {
	return func(s *Store) {
		s.symlinks = false
	}
}

// NewStore builds a store writing into dir.
func NewStore(dir, prefix string, opts ...Option) *Store {
	if prefix == "" {
		prefix = "unifi"
	}
	store := &Store{
		dir:      dir,
		prefix:   prefix,
		symlinks: true,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Dir returns the output directory.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) base(controller string) string {
	return s.prefix + "-" + controller
}

// ArtifactName returns the timestamped file name for a controller artifact.
func (s *Store) ArtifactName(controller string, f render.Format, t time.Time) string {
	return fmt.Sprintf("%s-%s.%s", s.base(controller), t.Format(TimestampLayout), f.Extension())
}

// LatestPath returns the path of the latest pointer.
func (s *Store) LatestPath(controller string, f render.Format) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s-latest.%s", s.base(controller), f.Extension()))
}

func (s *Store) backupName(controller string, f render.Format, t time.Time) string {
	return fmt.Sprintf("%s-latest-backup-%s.%s", s.base(controller), t.Format(TimestampLayout), f.Extension())
}

func checkName(controller string) error {
	if controller == "" || filepath.Base(controller) != controller || strings.ContainsAny(controller, `/\`) {
		return fmt.Errorf("invalid controller file name %q", controller)
	}
	return nil
}

// Resolve returns the file the latest pointer refers to, or "" when there
// is no latest artifact.
func (s *Store) Resolve(controller string, f render.Format) (string, error) {
	latest := s.LatestPath(controller, f)
	info, err := os.Lstat(latest)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", &Error{Op: "resolve", Path: latest, Err: err}
	}
	if info.Mode()&os.ModeSymlink == 0 {
		return latest, nil
	}
	target, err := os.Readlink(latest)
	if err != nil {
		return "", &Error{Op: "resolve", Path: latest, Err: err}
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(s.dir, target)
	}
	if _, err := os.Stat(target); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", &Error{Op: "resolve", Path: target, Err: err}
	}
	return target, nil
}

// Backup copies the current latest artifact to a timestamped backup and
// returns its path. It returns "" when there is nothing to back up.
func (s *Store) Backup(controller string, f render.Format) (string, error) {
	if err := checkName(controller); err != nil {
		return "", &Error{Op: "backup", Err: err}
	}
	current, err := s.Resolve(controller, f)
	if err != nil || current == "" {
		return "", err
	}

	data, err := os.ReadFile(current)
	if err != nil {
		return "", &Error{Op: "backup", Path: current, Err: err}
	}
	path := filepath.Join(s.dir, s.backupName(controller, f, s.now()))
	if err := writeAtomic(path, data); err != nil {
		return "", &Error{Op: "backup", Path: path, Err: err}
	}
	return path, nil
}

// Write renders snap, stores it under a timestamped name and then moves the
// latest pointer to it. The pointer only moves once the artifact is durable.
func (s *Store) Write(controller string, r render.Renderer, snap *model.Snapshot) (*Artifact, error) {
	if err := checkName(controller); err != nil {
		return nil, &Error{Op: "write", Err: err}
	}
	data, err := r.Render(snap)
	if err != nil {
		return nil, &Error{Op: "render", Err: err}
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, &Error{Op: "write", Path: s.dir, Err: err}
	}

	path := filepath.Join(s.dir, s.ArtifactName(controller, r.Format(), s.now()))
	if err := writeAtomic(path, data); err != nil {
		return nil, &Error{Op: "write", Path: path, Err: err}
	}

	latest := s.LatestPath(controller, r.Format())
	if err := s.pointLatest(latest, path, data); err != nil {
		return nil, &Error{Op: "link", Path: latest, Err: err}
	}

	return &Artifact{Path: path, Latest: latest, Size: len(data)}, nil
}

// pointLatest swaps the latest pointer to target. A relative symlink is
// created under a temporary name and renamed over the old pointer; when
// symlinks are unavailable a copy is swapped in the same way.
func (s *Store) pointLatest(latest, target string, data []byte) error {
	if s.symlinks {
		tmp := latest + ".tmp-" + strconv.Itoa(os.Getpid())
		_ = os.Remove(tmp)
		if err := os.Symlink(filepath.Base(target), tmp); err == nil {
			if err := os.Rename(tmp, latest); err != nil {
				_ = os.Remove(tmp)
				return err
			}
			return nil
		}
	}
	return writeAtomic(latest, data)
}

// Prune removes the oldest backups beyond the configured limit.
func (s *Store) Prune(controller string, f render.Format) ([]string, error) {
	if s.keepBackups <= 0 {
		return nil, nil
	}
	pattern := filepath.Join(s.dir, fmt.Sprintf("%s-latest-backup-*.%s", s.base(controller), f.Extension()))
	backups, err := filepath.Glob(pattern)
	if err != nil {
		return nil, &Error{Op: "prune", Path: pattern, Err: err}
	}
	if len(backups) <= s.keepBackups {
		return nil, nil
	}

	// Timestamps sort lexically.
	sort.Strings(backups)
	stale := backups[:len(backups)-s.keepBackups]
	for _, path := range stale {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, &Error{Op: "prune", Path: path, Err: err}
		}
	}
	return stale, nil
}

// WriteFile atomically writes a named file in the output directory.
func (s *Store) WriteFile(name string, data []byte) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", &Error{Op: "write", Path: s.dir, Err: err}
	}
	path := filepath.Join(s.dir, name)
	if err := writeAtomic(path, data); err != nil {
		return "", &Error{Op: "write", Path: path, Err: err}
	}
	return path, nil
}

// writeAtomic writes data to a temp file next to path, syncs it and renames
// it into place.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	syncDir(dir)
	return nil
}

func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
