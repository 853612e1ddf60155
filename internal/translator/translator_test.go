package translator

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/felipepmaragno/genai-bridge/internal/domain"
	"github.com/felipepmaragno/genai-bridge/internal/filestore"
	"github.com/felipepmaragno/genai-bridge/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const proxyHost = "http://proxy.test"

func newTranslator(t *testing.T) (*Translator, *filestore.Store) {
	t.Helper()
	store := filestore.New(filestore.NewMemoryBackend(), filestore.Options{PublicHost: proxyHost, MaxBytes: 1 << 20})
	return New(registry.Default(), store), store
}

func decodeRequest(t *testing.T, body string) domain.ChatRequest {
	t.Helper()
	var req domain.ChatRequest
	require.NoError(t, json.Unmarshal([]byte(body), &req))
	return req
}

// MockFileStore records calls so tests can assert nothing was stored.
type MockFileStore struct {
	GetFunc func(ctx context.Context, id string) (*filestore.File, bool)
	PutFunc func(ctx context.Context, up filestore.Upload) (*filestore.File, error)
	puts    int
	deleted []string
}

func (m *MockFileStore) Get(ctx context.Context, id string) (*filestore.File, bool) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, id)
	}
	return nil, false
}

func (m *MockFileStore) Put(ctx context.Context, up filestore.Upload) (*filestore.File, error) {
	m.puts++
	if m.PutFunc != nil {
		return m.PutFunc(ctx, up)
	}
	return &filestore.File{ID: filestore.NewID(), Filename: up.Filename, ContentType: up.ContentType}, nil
}

func (m *MockFileStore) Delete(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *MockFileStore) PublicURL(id string) string {
	return proxyHost + "/files/" + id
}

// ============================================================================
// Prompt and model
// ============================================================================

func TestTranslate_TextConversation(t *testing.T) {
	tr, _ := newTranslator(t)

	req := decodeRequest(t, `{
		"model": "postech-claude",
		"messages": [
			{"role": "system", "content": "Be brief."},
			{"role": "user", "content": [{"type":"text","text":"line one"},{"type":"text","text":"line two"}]},
			{"role": "assistant", "content": "ok"}
		]
	}`)

	vreq, model, err := tr.Translate(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "postech-claude", model.Alias)
	assert.Equal(t, "a3/claude", model.VendorEndpoint)
	assert.Equal(t, "SYSTEM: Be brief.\nUSER: line one\nline two\nASSISTANT: ok", vreq.Message)
	assert.False(t, vreq.Stream)
	assert.NotNil(t, vreq.Files)
	assert.Empty(t, vreq.Files)
}

func TestTranslate_DefaultModel(t *testing.T) {
	tr, _ := newTranslator(t)

	_, model, err := tr.Translate(context.Background(), decodeRequest(t, `{"messages":[{"role":"user","content":"hi"}],"stream":true}`))
	require.NoError(t, err)
	assert.Equal(t, "postech-gpt", model.Alias)
}

func TestTranslate_UnknownModel(t *testing.T) {
	tr, _ := newTranslator(t)

	_, _, err := tr.Translate(context.Background(), decodeRequest(t, `{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`))
	assert.ErrorIs(t, err, domain.ErrUnknownModel)
}

func TestTranslate_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{"no messages", `{"model":"postech-gpt","messages":[]}`, "messages"},
		{"missing messages", `{"model":"postech-gpt"}`, "messages is required"},
		{"missing role", `{"model":"postech-gpt","messages":[{"content":"x"}]}`, "messages[0].role is required"},
		{"bad role", `{"model":"postech-gpt","messages":[{"role":"robot","content":"x"}]}`, "messages[0].role must be one of"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, _ := newTranslator(t)

			_, _, err := tr.Translate(context.Background(), decodeRequest(t, tt.body))
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrInvalidRequest)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

// ============================================================================
// Parameters
// ============================================================================

func TestTranslate_Parameters(t *testing.T) {
	tr, _ := newTranslator(t)

	req := decodeRequest(t, `{
		"model": "postech-gpt",
		"messages": [{"role":"user","content":"hi"}],
		"temperature": 0.3,
		"top_p": 0.9,
		"max_tokens": 10,
		"max_completion_tokens": 20,
		"stop": ["\n\n"],
		"seed": 7,
		"logit_bias": {"1": 2},
		"tools": [],
		"user": "someone",
		"presence_penalty": null
	}`)

	vreq, _, err := tr.Translate(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"temperature": 0.3,
		"top_p":       0.9,
		"max_tokens":  float64(20),
		"stop":        []any{"\n\n"},
		"seed":        float64(7),
	}, vreq.Parameters)
}

func TestTranslate_NoParameters(t *testing.T) {
	tr, _ := newTranslator(t)

	vreq, _, err := tr.Translate(context.Background(), decodeRequest(t, `{"messages":[{"role":"user","content":"hi"}],"user":"x"}`))
	require.NoError(t, err)
	assert.Nil(t, vreq.Parameters)
}

// ============================================================================
// Attachments
// ============================================================================

func TestTranslate_LocalFileBecomesPublicURL(t *testing.T) {
	tr, store := newTranslator(t)
	ctx := context.Background()

	f, err := store.Put(ctx, filestore.Upload{Data: []byte("%PDF"), ContentType: "application/pdf", Filename: "paper.pdf"})
	require.NoError(t, err)

	req := decodeRequest(t, `{"messages":[{"role":"user","content":[
		{"type":"text","text":"summarize"},
		{"type":"file","file":{"file_id":"`+f.ID+`"}},
		{"type":"image_url","image_url":{"url":"`+f.ID+`"}}
	]}]}`)

	vreq, _, err := tr.Translate(ctx, req)
	require.NoError(t, err)

	require.Len(t, vreq.Files, 1)
	assert.Equal(t, domain.VendorFile{ID: f.ID, Name: "paper.pdf", URL: store.PublicURL(f.ID)}, vreq.Files[0])
	assert.Equal(t, proxyHost+"/files/"+f.ID, vreq.Files[0].URL)
	assert.Equal(t, "USER: summarize", vreq.Message)
}

func TestTranslate_RemoteURLPassesThrough(t *testing.T) {
	tr, _ := newTranslator(t)

	req := decodeRequest(t, `{"messages":[{"role":"user","content":[
		{"type":"image_url","image_url":{"url":"https://cdn.example.com/img/cat.png?size=large"}}
	]}]}`)

	vreq, _, err := tr.Translate(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, vreq.Files, 1)
	assert.Equal(t, "https://cdn.example.com/img/cat.png?size=large", vreq.Files[0].URL)
	assert.Equal(t, "cat.png", vreq.Files[0].Name)
}

func TestTranslate_InlineImageIsStoredNotForwarded(t *testing.T) {
	tr, store := newTranslator(t)
	ctx := context.Background()

	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 1, 2, 3}
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)

	req := decodeRequest(t, `{"messages":[{"role":"user","content":[
		{"type":"text","text":"what is this"},
		{"type":"image_url","image_url":{"url":"`+dataURL+`"}}
	]}]}`)

	vreq, _, err := tr.Translate(ctx, req)
	require.NoError(t, err)

	require.Len(t, vreq.Files, 1)
	vf := vreq.Files[0]
	assert.True(t, strings.HasPrefix(vf.URL, proxyHost+"/files/file-"))
	assert.True(t, strings.HasSuffix(vf.Name, ".png"))
	assert.NotContains(t, vreq.Message, "base64")

	stored, ok := store.Get(ctx, vf.ID)
	require.True(t, ok)
	assert.Equal(t, png, stored.Data)
	assert.Equal(t, "image/png", stored.ContentType)
}

func TestTranslate_FileDataIsStored(t *testing.T) {
	tr, store := newTranslator(t)
	ctx := context.Background()

	payload := base64.StdEncoding.EncodeToString([]byte("hello file"))
	req := decodeRequest(t, `{"messages":[{"role":"user","content":[
		{"type":"file","file":{"file_data":"`+payload+`","filename":"notes.txt"}}
	]}]}`)

	vreq, _, err := tr.Translate(ctx, req)
	require.NoError(t, err)

	require.Len(t, vreq.Files, 1)
	assert.Equal(t, "notes.txt", vreq.Files[0].Name)

	stored, ok := store.Get(ctx, vreq.Files[0].ID)
	require.True(t, ok)
	assert.Equal(t, []byte("hello file"), stored.Data)
	assert.True(t, strings.HasPrefix(stored.ContentType, "text/plain"))
}

func TestTranslate_AttachmentErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{"unknown local id", `[{"type":"file","file":{"file_id":"` + filestore.NewID() + `"}}]`, domain.ErrInvalidRequest},
		{"foreign file id", `[{"type":"file","file":{"file_id":"file-abc123"}}]`, domain.ErrInvalidRequest},
		{"bad base64", `[{"type":"file","file":{"file_data":"!!!"}}]`, domain.ErrInvalidRequest},
		{"bad image ref", `[{"type":"image_url","image_url":{"url":"ftp://example.com/a.png"}}]`, domain.ErrInvalidRequest},
		{"broken data url", `[{"type":"image_url","image_url":{"url":"data:image/png;base64"}}]`, domain.ErrInvalidRequest},
		{"empty data url", `[{"type":"image_url","image_url":{"url":"data:image/png;base64,"}}]`, domain.ErrInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, _ := newTranslator(t)
			req := decodeRequest(t, `{"messages":[{"role":"user","content":`+tt.content+`}]}`)

			_, _, err := tr.Translate(context.Background(), req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestTranslate_RejectedRequestDiscardsInlineUploads(t *testing.T) {
	tr, store := newTranslator(t)
	ctx := context.Background()

	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte{0x89, 'P', 'N', 'G'})
	payload := base64.StdEncoding.EncodeToString([]byte("hello file"))

	req := decodeRequest(t, `{"messages":[{"role":"user","content":[
		{"type":"image_url","image_url":{"url":"`+dataURL+`"}},
		{"type":"file","file":{"file_data":"`+payload+`","filename":"notes.txt"}},
		{"type":"file","file":{"file_id":"file-00000000-0000-0000-0000-000000000000"}}
	]}]}`)

	_, _, err := tr.Translate(ctx, req)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	files, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestTranslate_RejectedRequestKeepsExistingFiles(t *testing.T) {
	existing := filestore.NewID()
	files := &MockFileStore{
		GetFunc: func(ctx context.Context, id string) (*filestore.File, bool) {
			if id == existing {
				return &filestore.File{ID: existing, Filename: "a.pdf"}, true
			}
			return nil, false
		},
	}
	tr := New(registry.Default(), files)

	payload := base64.StdEncoding.EncodeToString([]byte("inline"))
	req := decodeRequest(t, `{"messages":[{"role":"user","content":[
		{"type":"file","file":{"file_id":"`+existing+`"}},
		{"type":"file","file":{"file_data":"`+payload+`"}},
		{"type":"image_url","image_url":{"url":"ftp://example.com/a.png"}}
	]}]}`)

	_, _, err := tr.Translate(context.Background(), req)
	require.Error(t, err)

	assert.Equal(t, 1, files.puts)
	require.Len(t, files.deleted, 1)
	assert.NotEqual(t, existing, files.deleted[0])
}

func TestTranslate_InlineTooLarge(t *testing.T) {
	store := filestore.New(filestore.NewMemoryBackend(), filestore.Options{PublicHost: proxyHost, MaxBytes: 4})
	tr := New(registry.Default(), store)

	payload := base64.StdEncoding.EncodeToString([]byte("too many bytes"))
	req := decodeRequest(t, `{"messages":[{"role":"user","content":[{"type":"file","file":{"file_data":"`+payload+`"}}]}]}`)

	_, _, err := tr.Translate(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrStorage)
	assert.ErrorIs(t, err, domain.ErrFileTooLarge)
}

// ============================================================================
// Capabilities
// ============================================================================

func TestTranslate_UnsupportedContentBeforeStoring(t *testing.T) {
	reg, err := registry.New([]registry.Model{
		{Alias: "text-only", VendorEndpoint: "a9/text", VendorModelID: "text"},
		{Alias: "images-only", VendorEndpoint: "a8/vision", VendorModelID: "vision", Capabilities: registry.CapabilityImages},
	}, "text-only")
	require.NoError(t, err)

	tests := []struct {
		name    string
		model   string
		content string
	}{
		{"image to text model", "text-only", `[{"type":"image_url","image_url":{"url":"data:image/png;base64,AAAA"}}]`},
		{"file to images model", "images-only", `[{"type":"file","file":{"file_data":"AAAA"}}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files := &MockFileStore{}
			tr := New(reg, files)

			req := decodeRequest(t, `{"model":"`+tt.model+`","messages":[{"role":"user","content":`+tt.content+`}]}`)
			_, _, err := tr.Translate(context.Background(), req)

			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrUnsupportedContent)
			assert.Equal(t, 0, files.puts)
		})
	}
}

func TestTranslate_DeduplicatesSameAttachment(t *testing.T) {
	tr, store := newTranslator(t)
	ctx := context.Background()

	f, err := store.Put(ctx, filestore.Upload{Data: []byte("x"), Filename: "x.txt"})
	require.NoError(t, err)

	req := decodeRequest(t, `{"messages":[
		{"role":"user","content":[{"type":"file","file":{"file_id":"`+f.ID+`"}}]},
		{"role":"user","content":[{"type":"file","file":{"file_id":"`+f.ID+`"}},{"type":"image_url","image_url":"https://example.com/b.jpg"}]}
	]}`)

	vreq, _, err := tr.Translate(ctx, req)
	require.NoError(t, err)
	require.Len(t, vreq.Files, 2)
	assert.Equal(t, f.ID, vreq.Files[0].ID)
	assert.Equal(t, "https://example.com/b.jpg", vreq.Files[1].URL)
}

func TestParseDataURL(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		wantType  string
		wantData  string
		wantError bool
	}{
		{"base64", "data:text/plain;base64,aGk=", "text/plain", "hi", false},
		{"unpadded", "data:text/plain;base64,aGk", "text/plain", "hi", false},
		{"percent encoded", "data:text/plain,a%20b", "text/plain", "a b", false},
		{"charset param", "data:text/plain;charset=utf-8;base64,aGk=", "text/plain", "hi", false},
		{"no comma", "data:text/plain;base64", "", "", true},
		{"not a data url", "https://example.com", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mediaType, data, err := parseDataURL(tt.in)
			if tt.wantError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, mediaType)
			assert.Equal(t, tt.wantData, string(data))
		})
	}
}
