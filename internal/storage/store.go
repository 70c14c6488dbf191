// Package storage persists a feature.State as one compressed, versioned
// artifact inside the state directory. Writes go to a temporary file that is
// renamed over the artifact, so readers only ever see a complete old or a
// complete new version.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nickthorpe71/legend/internal/feature"
	"github.com/nickthorpe71/legend/internal/guard"
)

// StateFile is the artifact name inside the state directory.
const StateFile = "state.zst"

// Overridable in tests to control time and to simulate an interrupted write.
var (
	timeNow    = time.Now
	renameFile = os.Rename
)

// Store defines the persistence interface for the project state.
type Store interface {
	Load() (*feature.State, error)
	Save(s *feature.State) error
	Exists() bool
	Path() string
}

// FileStore implements Store on the local filesystem.
type FileStore struct {
	dir         string
	projectName string
	codec       *Codec
	guard       *guard.Guard
}

// NewFileStore creates a store rooted at dir. projectName stamps the empty
// State returned before the first save. A nil guard uses guard.DefaultPolicy.
func NewFileStore(dir, projectName string, g *guard.Guard) (*FileStore, error) {
	codec, err := NewCodec()
	if err != nil {
		return nil, err
	}
	if g == nil {
		g = guard.New(guard.DefaultPolicy)
	}
	return &FileStore{dir: dir, projectName: projectName, codec: codec, guard: g}, nil
}

// Close releases the codec.
func (fs *FileStore) Close() error {
	return fs.codec.Close()
}

// Dir returns the state directory.
func (fs *FileStore) Dir() string {
	return fs.dir
}

// Path returns the absolute or dir-relative path of the state artifact.
func (fs *FileStore) Path() string {
	return filepath.Join(fs.dir, StateFile)
}

// Exists reports whether a state artifact has been written.
func (fs *FileStore) Exists() bool {
	_, err := os.Stat(fs.Path())
	return err == nil
}

// Load reads the state artifact. A missing artifact yields an empty State;
// an unreadable one is reported as feature.ErrCorrupted and never replaced.
func (fs *FileStore) Load() (*feature.State, error) {
	data, err := os.ReadFile(fs.Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return feature.NewState(fs.projectName, timeNow().Unix()), nil
		}
		return nil, fmt.Errorf("reading state file: %w", err)
	}

	s, err := fs.codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", fs.Path(), err)
	}
	return s, nil
}

// Save serializes, compresses and atomically replaces the state artifact.
// Capacity limits are checked before anything touches the disk.
func (fs *FileStore) Save(s *feature.State) error {
	if v := fs.guard.CheckFeatureCount(len(s.Features)); v != nil {
		return v.Err()
	}

	payload, err := fs.codec.Marshal(s)
	if err != nil {
		return err
	}
	if v := fs.guard.CheckPayload(len(payload)); v != nil {
		return v.Err()
	}

	if err := os.MkdirAll(fs.dir, 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	if err := writeFileAtomic(fs.Path(), fs.codec.Seal(payload), 0o644); err != nil {
		return fmt.Errorf("writing state file: %w", err)
	}
	return nil
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it over path. The temp file is removed on every failure path.
func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmpFile.Name()

	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmpFile.Chmod(mode); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := renameFile(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	committed = true

	syncDir(dir)
	return nil
}

// syncDir flushes the directory entry after a rename. Not every platform
// supports fsync on directories, so failures are ignored.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
