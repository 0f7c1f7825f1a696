package modelstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"nlud/internal/common/fsutil"
	"nlud/pkg/types"
)

const modelExt = ".model.json"

// FileStore keeps one JSON document per model in a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed. A leading '~' is expanded.
func NewFileStore(dir string) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("file store: empty directory")
	}
	d, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(d, 0o755); err != nil {
		return nil, fmt.Errorf("create model dir: %w", err)
	}
	return &FileStore{dir: d}, nil
}

// ids may contain '/', so file names are path-escaped.
func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, url.PathEscape(id)+modelExt)
}

func (s *FileStore) HasModel(_ context.Context, id string) (bool, error) {
	_, err := os.Stat(s.path(id))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (s *FileStore) GetModel(_ context.Context, id string) (*types.Model, error) {
	b, err := os.ReadFile(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrModelNotFound(id)
	}
	if err != nil {
		return nil, err
	}
	var m types.Model
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode model %s: %w", id, err)
	}
	return &m, nil
}

func (s *FileStore) PutModel(_ context.Context, id string, m types.Model) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(s.path(id), b, 0o644)
}

func (s *FileStore) DeleteModel(_ context.Context, id string) error {
	err := os.Remove(s.path(id))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *FileStore) ListModels(_ context.Context, prefix string) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, modelExt) {
			continue
		}
		id, err := url.PathUnescape(strings.TrimSuffix(name, modelExt))
		if err != nil {
			continue
		}
		if strings.HasPrefix(id, prefix) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}
