// Package version provides the content-addressed snapshot history of a
// document: an ordered JSON manifest plus one flat content file per version.
package version

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/ashureev/draftsmith/internal/document"
	"github.com/ashureev/draftsmith/internal/domain"
	"github.com/google/uuid"
	"github.com/moby/sys/atomicwriter"
)

// ManifestName is the file name of the manifest inside the store directory.
const ManifestName = "manifest.json"

var (
	// ErrNotFound is returned when no manifest entry has the requested id.
	ErrNotFound = errors.New("version not found")
	// ErrCorrupt is returned when a manifest entry exists but its content
	// file is missing.
	ErrCorrupt = errors.New("version content missing")
)

var contentFilePattern = regexp.MustCompile(`^v[0-9]+-[0-9a-f]{8}\.md$`)

// Store defines the version history operations.
type Store interface {
	// List returns manifest metadata in insertion order.
	List(ctx context.Context) ([]domain.VersionMeta, error)

	// Save snapshots content. It returns nil metadata, and no error, when
	// content equals the most recent snapshot byte-for-byte.
	Save(ctx context.Context, content string) (*domain.VersionMeta, error)

	// Content returns the snapshot content for id.
	Content(ctx context.Context, id string) (string, error)

	// Clear removes every snapshot and empties the manifest.
	Clear(ctx context.Context) error
}

type manifestEntry struct {
	domain.VersionMeta
	Filename string `json:"filename"`
}

// FileStore implements Store on a local directory. All operations on one
// FileStore are serialized; readers share the lock.
type FileStore struct {
	dir string
	mu  sync.RWMutex

	now   func() time.Time
	newID func() string
}

// NewFileStore creates a store rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create versions directory: %w", err)
	}
	return &FileStore{
		dir:   dir,
		now:   time.Now,
		newID: uuid.NewString,
	}, nil
}

// Dir returns the store directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// List returns version metadata in insertion order.
func (s *FileStore) List(_ context.Context) ([]domain.VersionMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	manifest, err := s.readManifest()
	if err != nil {
		return nil, err
	}
	out := make([]domain.VersionMeta, 0, len(manifest))
	for _, e := range manifest {
		out = append(out, e.VersionMeta)
	}
	return out, nil
}

// Save snapshots content unless it duplicates the latest version.
func (s *FileStore) Save(_ context.Context, content string) (*domain.VersionMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	manifest, err := s.readManifest()
	if err != nil {
		return nil, err
	}

	if n := len(manifest); n > 0 {
		latest := manifest[n-1]
		data, err := os.ReadFile(s.path(latest.Filename))
		switch {
		case err == nil:
			if string(data) == content {
				return nil, nil
			}
		case errors.Is(err, os.ErrNotExist):
			slog.Warn("Latest version content missing, skipping duplicate check",
				"version_id", latest.ID, "filename", latest.Filename)
		default:
			return nil, fmt.Errorf("read latest version: %w", err)
		}
	}

	id := s.newID()
	number := len(manifest) + 1
	entry := manifestEntry{
		VersionMeta: domain.VersionMeta{
			ID:        id,
			Label:     fmt.Sprintf("Version %d", number),
			Timestamp: s.now().UnixMilli(),
			Hash:      document.Hash(content),
		},
		Filename: contentFilename(number, id),
	}

	if err := writeFileAtomic(s.path(entry.Filename), []byte(content)); err != nil {
		return nil, fmt.Errorf("write version content: %w", err)
	}
	if err := s.writeManifest(append(manifest, entry)); err != nil {
		if rmErr := os.Remove(s.path(entry.Filename)); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			slog.Warn("Failed to roll back version content", "filename", entry.Filename, "error", rmErr)
		}
		return nil, err
	}

	meta := entry.VersionMeta
	return &meta, nil
}

// Content returns the snapshot content for id. A known id whose content
// file is gone yields ErrCorrupt rather than ErrNotFound.
func (s *FileStore) Content(_ context.Context, id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	manifest, err := s.readManifest()
	if err != nil {
		return "", err
	}
	for _, e := range manifest {
		if e.ID != id {
			continue
		}
		data, err := os.ReadFile(s.path(e.Filename))
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s (%s)", ErrCorrupt, id, e.Filename)
		}
		if err != nil {
			return "", fmt.Errorf("read version %s: %w", id, err)
		}
		return string(data), nil
	}
	return "", ErrNotFound
}

// Clear empties the manifest first and then deletes content files, so no
// reader can observe a manifest entry whose content was already removed.
// Content files not referenced by the manifest are swept as well.
func (s *FileStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	manifest, err := s.readManifest()
	if err != nil {
		return err
	}
	if err := s.writeManifest([]manifestEntry{}); err != nil {
		return err
	}

	var errs []error
	for _, e := range manifest {
		if err := os.Remove(s.path(e.Filename)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		errs = append(errs, err)
	}
	for _, de := range entries {
		if de.IsDir() || !contentFilePattern.MatchString(de.Name()) {
			continue
		}
		if err := os.Remove(s.path(de.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("remove version content: %w", err)
	}
	return nil
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, name)
}

func (s *FileStore) readManifest() ([]manifestEntry, error) {
	data, err := os.ReadFile(s.path(ManifestName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var manifest []manifestEntry
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return manifest, nil
}

func (s *FileStore) writeManifest(manifest []manifestEntry) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := writeFileAtomic(s.path(ManifestName), data); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

func contentFilename(number int, id string) string {
	short := id
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("v%d-%s.md", number, short)
}

// writeFileAtomic replaces path so that readers see either the old or the
// new content, never a partial write.
func writeFileAtomic(path string, data []byte) error {
	return atomicwriter.WriteFile(path, data, 0o644)
}

var _ Store = (*FileStore)(nil)
