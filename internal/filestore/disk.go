package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/felipepmaragno/genai-bridge/internal/domain"
)

const metaSuffix = ".json"

// DiskBackend writes each file as <dir>/<id> with a <dir>/<id>.json sidecar
// holding its metadata.
type DiskBackend struct {
	dir string
}

func NewDiskBackend(dir string) (*DiskBackend, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create file directory: %w", err)
	}
	return &DiskBackend{dir: dir}, nil
}

func (b *DiskBackend) paths(id string) (string, string, error) {
	if !IsLocalID(id) {
		return "", "", fmt.Errorf("%w: malformed file id %q", domain.ErrNotFound, id)
	}
	data := filepath.Join(b.dir, id)
	return data, data + metaSuffix, nil
}

func (b *DiskBackend) Save(ctx context.Context, f *File) error {
	dataPath, metaPath, err := b.paths(f.ID)
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dataPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return errIDTaken
		}
		return err
	}
	if _, err := out.Write(f.Data); err != nil {
		out.Close()
		os.Remove(dataPath)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dataPath)
		return err
	}

	meta := *f
	meta.Data = nil
	encoded, err := json.Marshal(meta)
	if err != nil {
		os.Remove(dataPath)
		return err
	}
	if err := os.WriteFile(metaPath, encoded, 0o640); err != nil {
		os.Remove(dataPath)
		return err
	}
	return nil
}

func (b *DiskBackend) Load(ctx context.Context, id string) (*File, error) {
	dataPath, metaPath, err := b.paths(id)
	if err != nil {
		return nil, err
	}

	f, err := readMeta(metaPath)
	if err != nil {
		return nil, err
	}

	f.Data, err = os.ReadFile(dataPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

func (b *DiskBackend) Remove(ctx context.Context, id string) error {
	dataPath, metaPath, err := b.paths(id)
	if err != nil {
		return err
	}

	metaErr := os.Remove(metaPath)
	dataErr := os.Remove(dataPath)
	if errors.Is(metaErr, fs.ErrNotExist) && errors.Is(dataErr, fs.ErrNotExist) {
		return domain.ErrNotFound
	}
	for _, err := range []error{metaErr, dataErr} {
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

func (b *DiskBackend) List(ctx context.Context) ([]File, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, err
	}

	var out []File
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, metaSuffix) {
			continue
		}
		if !IsLocalID(strings.TrimSuffix(name, metaSuffix)) {
			continue
		}
		f, err := readMeta(filepath.Join(b.dir, name))
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, *f)
	}
	return out, nil
}

func readMeta(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	var f File
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return &f, nil
}
