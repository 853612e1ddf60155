package filestore

import (
	"context"
	"sync"

	"github.com/felipepmaragno/genai-bridge/internal/domain"
)

type MemoryBackend struct {
	mu    sync.RWMutex
	files map[string]*File
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		files: make(map[string]*File),
	}
}

func (b *MemoryBackend) Save(ctx context.Context, f *File) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.files[f.ID]; ok {
		return errIDTaken
	}

	stored := *f
	stored.Data = append([]byte(nil), f.Data...)
	b.files[f.ID] = &stored
	return nil
}

func (b *MemoryBackend) Load(ctx context.Context, id string) (*File, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	f, ok := b.files[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *f
	return &out, nil
}

func (b *MemoryBackend) Remove(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.files[id]; !ok {
		return domain.ErrNotFound
	}
	delete(b.files, id)
	return nil
}

func (b *MemoryBackend) List(ctx context.Context) ([]File, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]File, 0, len(b.files))
	for _, f := range b.files {
		meta := *f
		meta.Data = nil
		out = append(out, meta)
	}
	return out, nil
}
