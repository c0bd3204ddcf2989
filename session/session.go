// Package session persists serialized tracking state so an interrupted
// editing session can be resumed by a later process. The on-disk form is
// the plain document the tracking package produces; this package only adds
// naming, atomic writes and filesystem plumbing.
package session

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/josephgoksu/TrackWing/tracking"
	"github.com/spf13/afero"
)

const (
	treeSuffix  = ".tree.json"
	graphSuffix = ".graph.json"
)

// ErrSessionNotFound is returned when the named session has no saved state.
var ErrSessionNotFound = errors.New("session not found")

// Store reads and writes session state below one directory. The filesystem
// is injected so tests can run against an in-memory one.
type Store struct {
	fs  afero.Fs
	dir string
}

// NewStore creates a session store rooted at dir.
func NewStore(fsys afero.Fs, dir string) *Store {
	return &Store{fs: fsys, dir: dir}
}

// NewOSStore creates a session store on the real filesystem.
func NewOSStore(dir string) *Store {
	return NewStore(afero.NewOsFs(), dir)
}

// SaveTree persists the tracking tree under the given session name.
func (s *Store) SaveTree(name string, t *tracking.Tree) error {
	data, err := t.SerializeState()
	if err != nil {
		return err
	}
	return s.write(name+treeSuffix, data)
}

// LoadTree restores a tracking tree saved with SaveTree.
func (s *Store) LoadTree(name string) (*tracking.Tree, error) {
	data, err := s.read(name + treeSuffix)
	if err != nil {
		return nil, err
	}
	return tracking.DeserializeTreeState(data)
}

// SaveGraph persists the tracking graph under the given session name.
func (s *Store) SaveGraph(name string, g *tracking.Graph) error {
	data, err := g.SerializeState()
	if err != nil {
		return err
	}
	return s.write(name+graphSuffix, data)
}

// LoadGraph restores a tracking graph saved with SaveGraph.
func (s *Store) LoadGraph(name string) (*tracking.Graph, error) {
	data, err := s.read(name + graphSuffix)
	if err != nil {
		return nil, err
	}
	return tracking.DeserializeGraphState(data)
}

// Delete removes all saved state for the session. Deleting a session that
// was never saved is not an error.
func (s *Store) Delete(name string) error {
	for _, suffix := range []string{treeSuffix, graphSuffix} {
		err := s.fs.Remove(filepath.Join(s.dir, name+suffix))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("delete session %s: %w", name, err)
		}
	}
	return nil
}

// List returns the names of every session with saved state.
func (s *Store) List() ([]string, error) {
	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	seen := make(map[string]bool)
	var out []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		for _, suffix := range []string{treeSuffix, graphSuffix} {
			if strings.HasSuffix(name, suffix) {
				base := strings.TrimSuffix(name, suffix)
				if !seen[base] {
					seen[base] = true
					out = append(out, base)
				}
			}
		}
	}
	return out, nil
}

// write lands the data atomically: temp file first, then rename.
func (s *Store) write(file string, data []byte) error {
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create session directory %s: %w", s.dir, err)
	}
	path := filepath.Join(s.dir, file)
	tmp := path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("write session file %s: %w", tmp, err)
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("rename session file into place: %w", err)
	}
	slog.Debug("saved session state", "file", path, "bytes", len(data))
	return nil
}

func (s *Store) read(file string) ([]byte, error) {
	path := filepath.Join(s.dir, file)
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, ErrSessionNotFound)
		}
		return nil, fmt.Errorf("read session file %s: %w", path, err)
	}
	return data, nil
}
