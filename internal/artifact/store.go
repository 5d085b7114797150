package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattjoyce/imageledger/internal/failure"
)

// Store manages the derived directory.
type Store struct {
	dir string
}

// NewStore returns a Store rooted at dir. The directory is created on demand.
func NewStore(dir string) (*Store, error) {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return nil, fmt.Errorf("derived directory is empty")
	}
	return &Store{dir: filepath.Clean(trimmed)}, nil
}

// Dir returns the derived directory.
func (s *Store) Dir() string { return s.dir }

// Path returns where the artifact for src lives.
func (s *Store) Path(src string) string {
	return filepath.Join(s.dir, Name(src))
}

// Ensure creates the derived directory if needed.
func (s *Store) Ensure() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return failure.New(failure.KindIO, "create derived directory", err)
	}
	return nil
}

// Exists reports whether the artifact for src is present.
func (s *Store) Exists(src string) bool {
	info, err := os.Stat(s.Path(src))
	return err == nil && info.Mode().IsRegular()
}

// Read returns the artifact bytes for src.
func (s *Store) Read(src string) ([]byte, error) {
	data, err := os.ReadFile(s.Path(src))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, failure.New(failure.KindNotFound, "read artifact", err)
	}
	if err != nil {
		return nil, failure.New(failure.KindIO, "read artifact", err)
	}
	return data, nil
}

// Remove deletes the artifact for src. A missing artifact is not an error;
// removed reports whether a file was actually deleted.
func (s *Store) Remove(src string) (removed bool, err error) {
	return s.RemoveName(Name(src))
}

// RemoveName deletes a derived file by its name in the derived directory.
func (s *Store) RemoveName(name string) (bool, error) {
	if name != filepath.Base(name) {
		return false, failure.Newf(failure.KindValidation, "remove artifact", "%q is not a plain filename", name)
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, failure.New(failure.KindIO, "remove artifact", err)
	}
	return true, nil
}

// Materialize makes the artifact of fromSrc also available under toSrc's
// derived name. It hard-links when possible and falls back to copying, and
// never overwrites an artifact that already exists at the destination.
func (s *Store) Materialize(ctx context.Context, fromSrc, toSrc string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	from, to := s.Path(fromSrc), s.Path(toSrc)
	if from == to {
		return nil
	}
	if _, err := os.Stat(to); err == nil {
		return nil
	}

	info, err := os.Stat(from)
	if errors.Is(err, fs.ErrNotExist) {
		return failure.New(failure.KindNotFound, "materialize artifact", err)
	}
	if err != nil {
		return failure.New(failure.KindIO, "materialize artifact", err)
	}
	if !info.Mode().IsRegular() {
		return failure.Newf(failure.KindIO, "materialize artifact", "%s is not a regular file", from)
	}

	if err := os.Link(from, to); err == nil {
		return nil
	}
	if err := copyFile(from, to, info.Mode().Perm()); err != nil {
		return failure.New(failure.KindIO, "materialize artifact", err)
	}
	return nil
}

// Names lists derived files present in the directory, keyed by Key. A missing
// directory yields an empty set.
func (s *Store) Names() (map[string]string, error) {
	return ListImages(s.dir, func(name string) bool {
		return strings.EqualFold(filepath.Ext(name), Ext)
	})
}

// ListImages lists regular files in dir (non-recursive) accepted by keep,
// returned as Key -> filename. A missing directory yields an empty map.
func ListImages(dir string, keep func(name string) bool) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, failure.New(failure.KindIO, "list "+dir, err)
	}

	out := make(map[string]string, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if !keep(entry.Name()) {
			continue
		}
		key := Key(entry.Name())
		if prev, dup := out[key]; dup && prev < entry.Name() {
			continue
		}
		out[key] = entry.Name()
	}
	return out, nil
}

func copyFile(src, dst string, perm fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".copy-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("copy bytes: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
