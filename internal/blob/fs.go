package blob

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const metaSuffix = ".meta.json"

// fsStore persists blobs under a root directory with a JSON metadata sidecar
// per object. Keys map to relative paths; traversal outside the root is
// rejected.
type fsStore struct {
	root string
}

// NewFilesystem constructs a filesystem store rooted at dir (default
// ./blobdata).
func NewFilesystem(dir string) (Store, error) {
	if dir == "" {
		dir = "./blobdata"
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	return &fsStore{root: abs}, nil
}

func (s *fsStore) Driver() Driver { return DriverFilesystem }

func (s *fsStore) pathFor(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("blob key required")
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid blob key %s", key)
	}
	return filepath.Join(s.root, clean), nil
}

func (s *fsStore) Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error) {
	target, err := s.pathFor(key)
	if err != nil {
		return Info{}, err
	}
	if _, err := os.Stat(target); err == nil {
		return Info{}, fmt.Errorf("blob %s already exists", key)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return Info{}, fmt.Errorf("create blob dir: %w", err)
	}
	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640) // #nosec G304 -- key sanitized by pathFor
	if err != nil {
		return Info{}, err
	}
	size, err := io.Copy(f, r)
	closeErr := f.Close()
	if err != nil {
		_ = os.Remove(target)
		return Info{}, err
	}
	if closeErr != nil {
		_ = os.Remove(target)
		return Info{}, closeErr
	}
	info := Info{
		Key:          key,
		Size:         size,
		ContentType:  opts.ContentType,
		Metadata:     opts.Metadata,
		LastModified: time.Now().UTC(),
		URL:          "file://" + filepath.ToSlash(target),
	}
	meta, err := json.Marshal(info)
	if err != nil {
		_ = os.Remove(target)
		return Info{}, err
	}
	if err := os.WriteFile(target+metaSuffix, meta, 0o640); err != nil {
		_ = os.Remove(target)
		return Info{}, err
	}
	return info, nil
}

func (s *fsStore) Get(ctx context.Context, key string) (Info, io.ReadCloser, error) {
	info, err := s.readMeta(key)
	if err != nil {
		return Info{}, nil, err
	}
	target, err := s.pathFor(key)
	if err != nil {
		return Info{}, nil, err
	}
	f, err := os.Open(target) // #nosec G304 -- key sanitized by pathFor
	if err != nil {
		return Info{}, nil, err
	}
	return info, f, nil
}

func (s *fsStore) Delete(ctx context.Context, key string) (bool, error) {
	target, err := s.pathFor(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(target); err != nil {
		return false, nil
	}
	if err := os.Remove(target); err != nil {
		return false, err
	}
	_ = os.Remove(target + metaSuffix)
	return true, nil
}

func (s *fsStore) List(ctx context.Context, prefix string) ([]Info, error) {
	var infos []Info
	err := filepath.Walk(s.root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() || strings.HasSuffix(path, metaSuffix) {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := s.readMeta(key)
		if err != nil {
			// Data file without sidecar: surface minimal info.
			info = Info{Key: key, Size: fi.Size(), LastModified: fi.ModTime().UTC()}
		}
		infos = append(infos, info)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

func (s *fsStore) URLFor(ctx context.Context, key string) (string, error) {
	info, err := s.readMeta(key)
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (s *fsStore) readMeta(key string) (Info, error) {
	target, err := s.pathFor(key)
	if err != nil {
		return Info{}, err
	}
	data, err := os.ReadFile(target + metaSuffix) // #nosec G304 -- key sanitized by pathFor
	if err != nil {
		return Info{}, err
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return Info{}, fmt.Errorf("decode blob metadata %s: %w", key, err)
	}
	return info, nil
}
