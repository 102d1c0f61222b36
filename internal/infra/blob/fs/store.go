// Package fs keeps blobs as plain files under a directory opened with
// os.OpenRoot, so no key can resolve outside it. Each blob written through
// the store gets a YAML sidecar (<key>.meta.yaml) with its content type,
// metadata and digest. Files placed in the directory by hand are served
// with metadata derived from the file itself.
package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"sleevemark/internal/blob/core"
)

const (
	sidecarSuffix = ".meta.yaml"
	tempMarker    = ".tmp-"
)

// Store implements core.Store on a local directory.
type Store struct {
	root *os.Root
	now  func() time.Time

	mu sync.Mutex
}

// New opens (creating if needed) the directory dir as a blob store.
func New(dir string) (*Store, error) {
	if dir == "" {
		dir = "./blobdata"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("open blob dir: %w", err)
	}
	return &Store{root: root, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close releases the directory handle.
func (s *Store) Close() error { return s.root.Close() }

// Driver reports core.DriverFilesystem.
func (s *Store) Driver() core.Driver { return core.DriverFilesystem }

type sidecar struct {
	ContentType string            `yaml:"content_type,omitempty"`
	Metadata    map[string]string `yaml:"metadata,omitempty"`
	SHA256      string            `yaml:"sha256"`
	Size        int64             `yaml:"size"`
	Created     time.Time         `yaml:"created"`
	Updated     time.Time         `yaml:"updated"`
}

func (m sidecar) info(key string) core.Info {
	info := core.Info{Key: key, Size: m.Size, ContentType: m.ContentType, ETag: m.SHA256, LastModified: m.Updated}
	if len(m.Metadata) > 0 {
		info.Metadata = make(map[string]string, len(m.Metadata))
		for k, v := range m.Metadata {
			info.Metadata[k] = v
		}
	}
	return info
}

func cleanKey(key string) (string, error) {
	switch {
	case strings.TrimSpace(key) == "":
		return "", errors.New("blob key is empty")
	case strings.HasPrefix(key, "/"):
		return "", fmt.Errorf("blob key %q is absolute", key)
	case strings.HasSuffix(key, sidecarSuffix), strings.Contains(path.Base(key), tempMarker):
		return "", fmt.Errorf("blob key %q uses a reserved name", key)
	}
	k := path.Clean(key)
	if k == "." || k == ".." || strings.HasPrefix(k, "../") {
		return "", fmt.Errorf("blob key %q leaves the store", key)
	}
	return k, nil
}

// Put writes r to a temporary file next to the target and renames it into
// place, then records the sidecar.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	if err := ctx.Err(); err != nil {
		return core.Info{}, err
	}
	k, err := cleanKey(key)
	if err != nil {
		return core.Info{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	created := now
	if prev, err := s.describe(k); err == nil {
		if !opts.Overwrite {
			return core.Info{}, fmt.Errorf("blob %s: %w", key, core.ErrExists)
		}
		created = prev.Created
	} else if !errors.Is(err, core.ErrNotFound) {
		return core.Info{}, err
	}
	if dir := path.Dir(k); dir != "." {
		if err := s.root.MkdirAll(dir, 0o755); err != nil {
			return core.Info{}, fmt.Errorf("blob %s: %w", key, err)
		}
	}
	digest, size, err := s.writeFile(k, r, now)
	if err != nil {
		return core.Info{}, fmt.Errorf("blob %s: %w", key, err)
	}
	meta := sidecar{
		ContentType: opts.ContentType,
		Metadata:    opts.Metadata,
		SHA256:      digest,
		Size:        size,
		Created:     created,
		Updated:     now,
	}
	out, err := yaml.Marshal(meta)
	if err != nil {
		return core.Info{}, err
	}
	if err := s.root.WriteFile(k+sidecarSuffix, out, 0o644); err != nil {
		return core.Info{}, fmt.Errorf("blob %s sidecar: %w", key, err)
	}
	return meta.info(key), nil
}

func (s *Store) writeFile(k string, r io.Reader, now time.Time) (string, int64, error) {
	tmp := k + tempMarker + strconv.FormatInt(now.UnixNano(), 36)
	f, err := s.root.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", 0, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = s.root.Remove(tmp)
		}
	}()
	h := sha256.New()
	size, err := io.Copy(io.MultiWriter(f, h), r)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", 0, err
	}
	if err := s.root.Rename(tmp, k); err != nil {
		return "", 0, err
	}
	committed = true
	return hex.EncodeToString(h.Sum(nil)), size, nil
}

// describe returns the sidecar of k, deriving one from the file when the
// blob was not written through the store.
func (s *Store) describe(k string) (sidecar, error) {
	st, err := s.root.Stat(k)
	if errors.Is(err, iofs.ErrNotExist) {
		return sidecar{}, fmt.Errorf("blob %s: %w", k, core.ErrNotFound)
	}
	if err != nil {
		return sidecar{}, err
	}
	if st.IsDir() {
		return sidecar{}, fmt.Errorf("blob %s: %w", k, core.ErrNotFound)
	}
	raw, err := s.root.ReadFile(k + sidecarSuffix)
	if errors.Is(err, iofs.ErrNotExist) {
		mod := st.ModTime().UTC()
		return sidecar{Size: st.Size(), Created: mod, Updated: mod}, nil
	}
	if err != nil {
		return sidecar{}, err
	}
	var meta sidecar
	if err := yaml.Unmarshal(raw, &meta); err != nil {
		return sidecar{}, fmt.Errorf("blob %s sidecar: %w", k, err)
	}
	return meta, nil
}

// Get opens the blob for reading; the caller closes the reader.
func (s *Store) Get(_ context.Context, key string) (core.Info, io.ReadCloser, error) {
	k, err := cleanKey(key)
	if err != nil {
		return core.Info{}, nil, err
	}
	meta, err := s.describe(k)
	if err != nil {
		return core.Info{}, nil, err
	}
	f, err := s.root.Open(k)
	if errors.Is(err, iofs.ErrNotExist) {
		return core.Info{}, nil, fmt.Errorf("blob %s: %w", key, core.ErrNotFound)
	}
	if err != nil {
		return core.Info{}, nil, err
	}
	return meta.info(key), f, nil
}

// Head returns the blob metadata.
func (s *Store) Head(_ context.Context, key string) (core.Info, error) {
	k, err := cleanKey(key)
	if err != nil {
		return core.Info{}, err
	}
	meta, err := s.describe(k)
	if err != nil {
		return core.Info{}, err
	}
	return meta.info(key), nil
}

// Delete removes the blob and its sidecar.
func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	k, err := cleanKey(key)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.root.Remove(k); errors.Is(err, iofs.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	if err := s.root.Remove(k + sidecarSuffix); err != nil && !errors.Is(err, iofs.ErrNotExist) {
		return true, err
	}
	return true, nil
}

// List returns the blobs whose key starts with prefix, ordered by key.
func (s *Store) List(_ context.Context, prefix string) ([]core.Info, error) {
	var infos []core.Info
	err := iofs.WalkDir(s.root.FS(), ".", func(p string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(p, sidecarSuffix) || strings.Contains(d.Name(), tempMarker) {
			return nil
		}
		if !strings.HasPrefix(p, prefix) {
			return nil
		}
		meta, err := s.describe(p)
		if err != nil {
			return err
		}
		infos = append(infos, meta.info(p))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}
