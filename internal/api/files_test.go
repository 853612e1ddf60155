package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/felipepmaragno/genai-bridge/internal/domain"
)

func uploadFile(t *testing.T, env *testEnv, req *http.Request) domain.FileObject {
	t.Helper()

	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("upload status = %d: %s", rr.Code, rr.Body.String())
	}

	var obj domain.FileObject
	if err := json.Unmarshal(rr.Body.Bytes(), &obj); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	return obj
}

func TestUploadAndDownload_Multipart(t *testing.T) {
	env := setupTestHandler(t)
	data := []byte{0x89, 'P', 'N', 'G', 0, 1, 2, 3, 0xff}

	obj := uploadFile(t, env, multipartRequest(t, "/v1/files",
		map[string]string{"purpose": "vision"},
		&formFile{field: "file", filename: "pixel.png", contentType: "image/png", data: data}))

	if !strings.HasPrefix(obj.ID, "file-") {
		t.Errorf("id = %q", obj.ID)
	}
	if obj.Object != "file" || obj.Filename != "pixel.png" || obj.Purpose != "vision" {
		t.Errorf("unexpected file object: %+v", obj)
	}
	if obj.Bytes != int64(len(data)) {
		t.Errorf("bytes = %d, want %d", obj.Bytes, len(data))
	}
	if obj.URL != testProxyHost+"/files/"+obj.ID {
		t.Errorf("url = %q", obj.URL)
	}
	if obj.CreatedAt == 0 {
		t.Error("created_at not set")
	}

	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, httptest.NewRequest("GET", "/files/"+obj.ID, nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("download status = %d", rr.Code)
	}
	if !bytes.Equal(rr.Body.Bytes(), data) {
		t.Errorf("downloaded bytes differ: %v", rr.Body.Bytes())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q, want image/png", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "pixel.png") {
		t.Errorf("Content-Disposition = %q", cd)
	}
}

func TestUploadAndDownload_RawBody(t *testing.T) {
	env := setupTestHandler(t)

	req := httptest.NewRequest("POST", "/v1/files?purpose=assistants", strings.NewReader("%PDF-1.4 body"))
	req.Header.Set("Content-Type", "application/pdf")
	req.Header.Set("X-Filename", "paper.pdf")

	obj := uploadFile(t, env, req)
	if obj.Filename != "paper.pdf" || obj.Purpose != "assistants" {
		t.Errorf("unexpected file object: %+v", obj)
	}

	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, httptest.NewRequest("GET", "/files/"+obj.ID, nil))
	if rr.Body.String() != "%PDF-1.4 body" {
		t.Errorf("body = %q", rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestUpload_DefaultPurpose(t *testing.T) {
	env := setupTestHandler(t)

	req := httptest.NewRequest("POST", "/v1/files", strings.NewReader("hello"))
	obj := uploadFile(t, env, req)

	if obj.Purpose != "user_data" {
		t.Errorf("purpose = %q, want user_data", obj.Purpose)
	}
	if obj.Filename != obj.ID {
		t.Errorf("filename = %q, want id %q", obj.Filename, obj.ID)
	}
}

func TestUpload_Rejected(t *testing.T) {
	tests := []struct {
		name       string
		request    func(t *testing.T) *http.Request
		wantStatus int
	}{
		{
			name: "empty raw body",
			request: func(t *testing.T) *http.Request {
				return httptest.NewRequest("POST", "/v1/files", strings.NewReader(""))
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "multipart without file",
			request: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/v1/files", map[string]string{"purpose": "vision"}, nil)
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "over store limit",
			request: func(t *testing.T) *http.Request {
				return httptest.NewRequest("POST", "/v1/files", bytes.NewReader(make([]byte, (1<<20)+1)))
			},
			wantStatus: http.StatusRequestEntityTooLarge,
		},
		{
			name: "over body limit",
			request: func(t *testing.T) *http.Request {
				return httptest.NewRequest("POST", "/v1/files", bytes.NewReader(make([]byte, (2<<20)+1)))
			},
			wantStatus: http.StatusRequestEntityTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestHandler(t)

			rr := httptest.NewRecorder()
			env.handler.ServeHTTP(rr, tt.request(t))

			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d: %s", rr.Code, tt.wantStatus, rr.Body.String())
			}
		})
	}
}

func TestDownload_NotFound(t *testing.T) {
	env := setupTestHandler(t)

	for _, id := range []string{"file-00000000-0000-0000-0000-000000000000", "nope"} {
		rr := httptest.NewRecorder()
		env.handler.ServeHTTP(rr, httptest.NewRequest("GET", "/files/"+id, nil))

		if rr.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", id, rr.Code)
		}
		if !strings.Contains(rr.Body.String(), "File not found") {
			t.Errorf("%s: body = %s", id, rr.Body.String())
		}
	}
}

func TestFileMetadataListAndDelete(t *testing.T) {
	env := setupTestHandler(t)

	req := httptest.NewRequest("POST", "/v1/files", strings.NewReader("abc"))
	req.Header.Set("X-Filename", "a.txt")
	obj := uploadFile(t, env, req)

	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, httptest.NewRequest("GET", "/v1/files/"+obj.ID, nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("metadata status = %d", rr.Code)
	}
	var meta domain.FileObject
	json.Unmarshal(rr.Body.Bytes(), &meta)
	if meta != obj {
		t.Errorf("metadata = %+v, want %+v", meta, obj)
	}

	rr = httptest.NewRecorder()
	env.handler.ServeHTTP(rr, httptest.NewRequest("GET", "/v1/files", nil))
	var list domain.FileList
	json.Unmarshal(rr.Body.Bytes(), &list)
	if list.Object != "list" || len(list.Data) != 1 || list.Data[0].ID != obj.ID {
		t.Errorf("list = %+v", list)
	}

	rr = httptest.NewRecorder()
	env.handler.ServeHTTP(rr, httptest.NewRequest("DELETE", "/v1/files/"+obj.ID, nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rr.Code)
	}
	var del domain.FileDeleteResponse
	json.Unmarshal(rr.Body.Bytes(), &del)
	if !del.Deleted || del.ID != obj.ID {
		t.Errorf("delete response = %+v", del)
	}

	rr = httptest.NewRecorder()
	env.handler.ServeHTTP(rr, httptest.NewRequest("GET", "/files/"+obj.ID, nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("download after delete = %d, want 404", rr.Code)
	}

	rr = httptest.NewRecorder()
	env.handler.ServeHTTP(rr, httptest.NewRequest("DELETE", "/v1/files/"+obj.ID, nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", rr.Code)
	}
}
