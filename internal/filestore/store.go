// Package filestore keeps client uploads long enough for the vendor to fetch
// them back over HTTP. Files are addressed by opaque ids and exposed through
// a public URL on this proxy. Memory, disk and Redis backends are supported.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/felipepmaragno/genai-bridge/internal/domain"
	"github.com/felipepmaragno/genai-bridge/internal/metrics"
	"github.com/google/uuid"
)

const idPrefix = "file-"

// errIDTaken is returned by a Backend when Save would overwrite a file.
var errIDTaken = errors.New("file id already in use")

type File struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Purpose     string    `json:"purpose,omitempty"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
	Data        []byte    `json:"data,omitempty"`
}

// Backend persists files. Save must never overwrite an existing id; Load and
// Remove return domain.ErrNotFound for unknown ids. List returns metadata
// only.
type Backend interface {
	Save(ctx context.Context, f *File) error
	Load(ctx context.Context, id string) (*File, error)
	Remove(ctx context.Context, id string) error
	List(ctx context.Context) ([]File, error)
}

type Upload struct {
	Data        []byte
	ContentType string
	Filename    string
	Purpose     string
}

type Options struct {
	// PublicHost is the externally reachable base URL of this proxy.
	PublicHost string
	MaxBytes   int64
	// Retention of zero keeps files for the life of the process.
	Retention time.Duration
}

type Store struct {
	backend    Backend
	publicHost string
	maxBytes   int64
	retention  time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

func New(backend Backend, opts Options) *Store {
	return &Store{
		backend:    backend,
		publicHost: strings.TrimRight(opts.PublicHost, "/"),
		maxBytes:   opts.MaxBytes,
		retention:  opts.Retention,
		now:        time.Now,
		logger:     slog.Default().With("component", "filestore"),
	}
}

// NewID returns a fresh file id.
func NewID() string {
	return idPrefix + uuid.New().String()
}

// IsLocalID reports whether ref has the shape of an id issued by this store.
func IsLocalID(ref string) bool {
	rest, ok := strings.CutPrefix(ref, idPrefix)
	if !ok {
		return false
	}
	_, err := uuid.Parse(rest)
	return err == nil
}

func (s *Store) Put(ctx context.Context, up Upload) (*File, error) {
	size := int64(len(up.Data))
	if s.maxBytes > 0 && size > s.maxBytes {
		return nil, fmt.Errorf("%w: %w: %d bytes exceeds limit of %d", domain.ErrStorage, domain.ErrFileTooLarge, size, s.maxBytes)
	}

	contentType := up.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(up.Data)
	}

	f := &File{
		Filename:    up.Filename,
		ContentType: contentType,
		Purpose:     up.Purpose,
		Size:        size,
		CreatedAt:   s.now(),
		Data:        up.Data,
	}

	unnamed := up.Filename == ""

	var err error
	for attempt := 0; attempt < 3; attempt++ {
		f.ID = NewID()
		if unnamed {
			f.Filename = f.ID
		}
		err = s.backend.Save(ctx, f)
		if !errors.Is(err, errIDTaken) {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	metrics.RecordFileStored(size)
	s.logger.Debug("file stored", "file_id", f.ID, "bytes", size, "content_type", contentType)

	return f, nil
}

// Get returns the file and true, or false when the id is unknown or expired.
func (s *Store) Get(ctx context.Context, id string) (*File, bool) {
	if !IsLocalID(id) {
		return nil, false
	}

	f, err := s.backend.Load(ctx, id)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("file lookup failed", "file_id", id, "error", err)
		}
		return nil, false
	}

	if s.expired(f) {
		return nil, false
	}
	return f, true
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if !IsLocalID(id) {
		return fmt.Errorf("%w: file %q", domain.ErrNotFound, id)
	}
	if err := s.backend.Remove(ctx, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("%w: file %q", domain.ErrNotFound, id)
		}
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return nil
}

// List returns live files ordered by creation time.
func (s *Store) List(ctx context.Context) ([]File, error) {
	files, err := s.backend.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	live := files[:0]
	for _, f := range files {
		if !s.expired(&f) {
			live = append(live, f)
		}
	}
	sort.Slice(live, func(i, j int) bool {
		return live[i].CreatedAt.Before(live[j].CreatedAt)
	})
	return live, nil
}

// Prune removes files created before cutoff and returns how many were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	files, err := s.backend.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	removed := 0
	for _, f := range files {
		if !f.CreatedAt.Before(cutoff) {
			continue
		}
		if err := s.backend.Remove(ctx, f.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return removed, fmt.Errorf("%w: %v", domain.ErrStorage, err)
		}
		removed++
	}

	metrics.RecordFilesPruned(removed)
	return removed, nil
}

// PublicURL is deterministic and does not check that the file exists.
func (s *Store) PublicURL(id string) string {
	return s.publicHost + "/files/" + url.PathEscape(id)
}

func (s *Store) Retention() time.Duration {
	return s.retention
}

func (s *Store) expired(f *File) bool {
	return s.retention > 0 && s.now().Sub(f.CreatedAt) > s.retention
}
