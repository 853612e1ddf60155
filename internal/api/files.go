package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/felipepmaragno/genai-bridge/internal/domain"
	"github.com/felipepmaragno/genai-bridge/internal/filestore"
	"github.com/felipepmaragno/genai-bridge/internal/metrics"
)

const defaultPurpose = "user_data"

func (h *Handler) fileObject(f *filestore.File) domain.FileObject {
	return domain.FileObject{
		ID:        f.ID,
		Object:    "file",
		Bytes:     f.Size,
		CreatedAt: f.CreatedAt.Unix(),
		Filename:  f.Filename,
		Purpose:   f.Purpose,
		URL:       h.files.PublicURL(f.ID),
	}
}

// handleUploadFile accepts either multipart/form-data with a "file" field or
// the raw bytes as the body, named by X-Filename.
func (h *Handler) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := RequestIDFromContext(ctx)
	h.limitBody(w, r)

	up, err := readUpload(r)
	if err != nil {
		h.logger.Warn("rejected upload", "error", err, "request_id", requestID)
		writeDomainError(w, err)
		return
	}

	f, err := h.files.Put(ctx, up)
	if err != nil {
		h.logger.Error("failed to store upload", "error", err, "request_id", requestID)
		writeDomainError(w, err)
		return
	}

	h.logger.Info("file stored",
		"request_id", requestID,
		"file_id", f.ID,
		"bytes", f.Size,
		"content_type", f.ContentType,
	)
	writeJSON(w, http.StatusOK, h.fileObject(f))
}

func readUpload(r *http.Request) (filestore.Upload, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return filestore.Upload{}, bodyError(err)
		}
		if len(data) == 0 {
			return filestore.Upload{}, fmt.Errorf("%w: request body is empty", domain.ErrInvalidRequest)
		}
		return filestore.Upload{
			Data:        data,
			ContentType: r.Header.Get("Content-Type"),
			Filename:    r.Header.Get("X-Filename"),
			Purpose:     purposeOr(r.URL.Query().Get("purpose")),
		}, nil
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return filestore.Upload{}, bodyError(err)
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return filestore.Upload{}, fmt.Errorf("%w: file field is required", domain.ErrInvalidRequest)
	}
	if err != nil {
		return filestore.Upload{}, bodyError(err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return filestore.Upload{}, bodyError(err)
	}
	if len(data) == 0 {
		return filestore.Upload{}, fmt.Errorf("%w: file is empty", domain.ErrInvalidRequest)
	}

	return filestore.Upload{
		Data:        data,
		ContentType: header.Header.Get("Content-Type"),
		Filename:    header.Filename,
		Purpose:     purposeOr(r.FormValue("purpose")),
	}, nil
}

func purposeOr(p string) string {
	if p == "" {
		return defaultPurpose
	}
	return p
}

func (h *Handler) handleListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := h.files.List(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := domain.FileList{Object: "list", Data: make([]domain.FileObject, 0, len(files))}
	for i := range files {
		out.Data = append(out.Data, h.fileObject(&files[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetFile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	f, ok := h.files.Get(r.Context(), id)
	if !ok {
		writeDomainError(w, fmt.Errorf("%w: file %q", domain.ErrNotFound, id))
		return
	}
	writeJSON(w, http.StatusOK, h.fileObject(f))
}

func (h *Handler) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.files.Delete(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}

	h.logger.Info("file deleted", "file_id", id, "request_id", RequestIDFromContext(r.Context()))
	writeJSON(w, http.StatusOK, domain.FileDeleteResponse{ID: id, Object: "file", Deleted: true})
}

// handleDownloadFile serves stored bytes back to the vendor.
func (h *Handler) handleDownloadFile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	f, ok := h.files.Get(r.Context(), id)
	if !ok {
		metrics.RecordFileDownload("not_found")
		writeError(w, http.StatusNotFound, typeInvalidRequest, "not_found", "File not found")
		return
	}

	contentType := f.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(f.Data)))
	if f.Filename != "" {
		w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": f.Filename}))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(f.Data); err != nil {
		h.logger.Debug("download interrupted", "file_id", id, "error", err)
	}
	metrics.RecordFileDownload("ok")
}
