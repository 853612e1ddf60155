// Package translator turns OpenAI chat requests into POSTECH GenAI request
// bodies. Attachments never travel inline: every image or file reference is
// rewritten to a URL the vendor can fetch.
package translator

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/felipepmaragno/genai-bridge/internal/domain"
	"github.com/felipepmaragno/genai-bridge/internal/filestore"
	"github.com/felipepmaragno/genai-bridge/internal/registry"
)

// FileStore is the part of filestore.Store the translator needs.
type FileStore interface {
	Get(ctx context.Context, id string) (*filestore.File, bool)
	Put(ctx context.Context, up filestore.Upload) (*filestore.File, error)
	Delete(ctx context.Context, id string) error
	PublicURL(id string) string
}

// parameterNames maps OpenAI generation parameters onto vendor names.
// Anything not listed is dropped.
var parameterNames = map[string]string{
	"temperature":           "temperature",
	"top_p":                 "top_p",
	"max_tokens":            "max_tokens",
	"max_completion_tokens": "max_tokens",
	"stop":                  "stop",
	"presence_penalty":      "presence_penalty",
	"frequency_penalty":     "frequency_penalty",
	"seed":                  "seed",
}

type Translator struct {
	registry *registry.Registry
	files    FileStore
	logger   *slog.Logger
}

func New(reg *registry.Registry, files FileStore) *Translator {
	return &Translator{
		registry: reg,
		files:    files,
		logger:   slog.Default().With("component", "translator"),
	}
}

// Translate validates req, resolves its model and builds the vendor body.
// Capability violations are reported before anything is stored.
func (t *Translator) Translate(ctx context.Context, req domain.ChatRequest) (domain.VendorRequest, registry.Model, error) {
	if err := Validate(req); err != nil {
		return domain.VendorRequest{}, registry.Model{}, err
	}

	model, err := t.registry.Resolve(req.Model)
	if err != nil {
		return domain.VendorRequest{}, registry.Model{}, err
	}

	if err := checkCapabilities(model, req.Messages); err != nil {
		return domain.VendorRequest{}, model, err
	}

	files, err := t.attachments(ctx, req.Messages)
	if err != nil {
		return domain.VendorRequest{}, model, err
	}

	return domain.VendorRequest{
		Message:    Flatten(req.Messages),
		Stream:     req.Stream,
		Files:      files,
		Parameters: t.mapParameters(req.Params),
	}, model, nil
}

func checkCapabilities(model registry.Model, messages []domain.Message) error {
	for i, m := range messages {
		for _, part := range m.Content {
			switch part.Type {
			case domain.PartImage:
				if !model.Supports(registry.CapabilityImages) {
					return fmt.Errorf("%w: model %q does not accept images (messages[%d])", domain.ErrUnsupportedContent, model.Alias, i)
				}
			case domain.PartFile:
				if !model.Supports(registry.CapabilityFiles) {
					return fmt.Errorf("%w: model %q does not accept files (messages[%d])", domain.ErrUnsupportedContent, model.Alias, i)
				}
			}
		}
	}
	return nil
}

// Flatten renders the conversation as "ROLE: text" lines joined by newlines.
func Flatten(messages []domain.Message) string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		lines = append(lines, strings.ToUpper(m.Role)+": "+m.Text())
	}
	return strings.Join(lines, "\n")
}

func (t *Translator) attachments(ctx context.Context, messages []domain.Message) ([]domain.VendorFile, error) {
	files := []domain.VendorFile{}
	seen := make(map[string]bool)
	var stored []string

	add := func(f domain.VendorFile) {
		if seen[f.URL] {
			return
		}
		seen[f.URL] = true
		files = append(files, f)
	}

	for i, m := range messages {
		for j, part := range m.Content {
			var (
				f   domain.VendorFile
				err error
			)
			switch part.Type {
			case domain.PartImage:
				f, err = t.imageRef(ctx, part.ImageURL)
			case domain.PartFile:
				f, err = t.fileRef(ctx, part)
			default:
				continue
			}
			if err != nil {
				t.discard(ctx, stored)
				return nil, fmt.Errorf("messages[%d].content[%d]: %w", i, j, err)
			}
			if isInline(part) {
				stored = append(stored, f.ID)
			}
			add(f)
		}
	}
	return files, nil
}

// isInline reports whether the part carries its own bytes, which are stored
// for the duration of the request.
func isInline(part domain.ContentPart) bool {
	switch part.Type {
	case domain.PartImage:
		return strings.HasPrefix(part.ImageURL, "data:")
	case domain.PartFile:
		return part.FileID == ""
	}
	return false
}

// discard removes uploads made for a request that was rejected.
func (t *Translator) discard(ctx context.Context, ids []string) {
	for _, id := range ids {
		if err := t.files.Delete(ctx, id); err != nil {
			t.logger.Warn("failed to discard attachment", "file_id", id, "error", err)
		}
	}
}

func (t *Translator) imageRef(ctx context.Context, ref string) (domain.VendorFile, error) {
	switch {
	case filestore.IsLocalID(ref):
		return t.localFile(ctx, ref)
	case strings.HasPrefix(ref, "data:"):
		mediaType, data, err := parseDataURL(ref)
		if err != nil {
			return domain.VendorFile{}, fmt.Errorf("%w: image_url: %v", domain.ErrInvalidRequest, err)
		}
		return t.store(ctx, data, mediaType, "")
	case isRemoteURL(ref):
		return remoteFile(ref), nil
	default:
		return domain.VendorFile{}, fmt.Errorf("%w: image_url must be an http(s) URL, a data URL or a file id", domain.ErrInvalidRequest)
	}
}

func (t *Translator) fileRef(ctx context.Context, part domain.ContentPart) (domain.VendorFile, error) {
	if part.FileID != "" {
		if isRemoteURL(part.FileID) {
			return remoteFile(part.FileID), nil
		}
		return t.localFile(ctx, part.FileID)
	}

	var (
		mediaType string
		data      []byte
		err       error
	)
	if strings.HasPrefix(part.FileData, "data:") {
		mediaType, data, err = parseDataURL(part.FileData)
	} else {
		data, err = decodeBase64(part.FileData)
	}
	if err != nil {
		return domain.VendorFile{}, fmt.Errorf("%w: file_data is not valid base64: %v", domain.ErrInvalidRequest, err)
	}

	if mediaType == "" && part.Filename != "" {
		mediaType = mime.TypeByExtension(path.Ext(part.Filename))
	}
	return t.store(ctx, data, mediaType, part.Filename)
}

func (t *Translator) localFile(ctx context.Context, id string) (domain.VendorFile, error) {
	f, ok := t.files.Get(ctx, id)
	if !ok {
		return domain.VendorFile{}, fmt.Errorf("%w: file %q not found", domain.ErrInvalidRequest, id)
	}
	return domain.VendorFile{ID: f.ID, Name: f.Filename, URL: t.files.PublicURL(f.ID)}, nil
}

func (t *Translator) store(ctx context.Context, data []byte, mediaType, filename string) (domain.VendorFile, error) {
	if len(data) == 0 {
		return domain.VendorFile{}, fmt.Errorf("%w: inline attachment is empty", domain.ErrInvalidRequest)
	}

	f, err := t.files.Put(ctx, filestore.Upload{
		Data:        data,
		ContentType: mediaType,
		Filename:    filename,
		Purpose:     "vision",
	})
	if err != nil {
		return domain.VendorFile{}, err
	}

	name := f.Filename
	if filename == "" {
		name = f.ID + extensionFor(f.ContentType)
	}
	return domain.VendorFile{ID: f.ID, Name: name, URL: t.files.PublicURL(f.ID)}, nil
}

func (t *Translator) mapParameters(params map[string]any) map[string]any {
	if len(params) == 0 {
		return nil
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]any)
	var dropped []string
	for _, k := range keys {
		v := params[k]
		dst, ok := parameterNames[k]
		if !ok {
			dropped = append(dropped, k)
			continue
		}
		if v == nil {
			continue
		}
		// max_completion_tokens sorts first and wins over max_tokens.
		if _, exists := out[dst]; exists {
			continue
		}
		out[dst] = v
	}

	if len(dropped) > 0 {
		t.logger.Debug("dropping parameters the vendor does not support", "params", dropped)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func isRemoteURL(ref string) bool {
	u, err := url.Parse(ref)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func remoteFile(ref string) domain.VendorFile {
	name := "attachment"
	if u, err := url.Parse(ref); err == nil {
		if base := path.Base(u.Path); base != "/" && base != "." {
			name = base
		}
	}
	return domain.VendorFile{ID: ref, Name: name, URL: ref}
}

var commonExtensions = map[string]string{
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"application/pdf": ".pdf",
	"text/plain":      ".txt",
}

func extensionFor(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	if ext, ok := commonExtensions[mediaType]; ok {
		return ext
	}
	exts, err := mime.ExtensionsByType(mediaType)
	if err != nil || len(exts) == 0 {
		return ""
	}
	return exts[0]
}
