package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/felipepmaragno/genai-bridge/internal/domain"
	"github.com/felipepmaragno/genai-bridge/internal/filestore"
	"github.com/felipepmaragno/genai-bridge/internal/metrics"
	"github.com/felipepmaragno/genai-bridge/internal/registry"
	"github.com/felipepmaragno/genai-bridge/internal/relay"
	"github.com/felipepmaragno/genai-bridge/internal/telemetry"
	"github.com/felipepmaragno/genai-bridge/internal/translator"
)

func (h *Handler) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	ctx, span := telemetry.StartSpan(r.Context(), "chat.completions")
	defer span.End()

	start := time.Now()
	requestID := RequestIDFromContext(ctx)
	h.limitBody(w, r)

	req, err := h.decodeChatRequest(ctx, r)
	if err != nil {
		h.logger.Warn("rejected chat request", "error", err, "request_id", requestID)
		metrics.RecordRequest("unknown", "unknown", statusLabel(err), time.Since(start).Seconds())
		writeDomainError(w, err)
		return
	}

	mode := "single"
	if req.Stream {
		mode = "stream"
	}

	vreq, model, err := h.translator.Translate(ctx, req)
	if err != nil {
		label := model.Alias
		if label == "" {
			label = "unknown"
		}
		h.logger.Warn("rejected chat request", "error", err, "request_id", requestID, "alias", req.Model)
		telemetry.AddErrorAttribute(span, err)
		metrics.RecordRequest(label, mode, statusLabel(err), time.Since(start).Seconds())
		writeDomainError(w, err)
		return
	}

	telemetry.AddRequestAttributes(span, model.Alias, model.VendorEndpoint, requestID, vreq.Stream)
	telemetry.AddFileAttributes(span, len(vreq.Files))

	upstreamCtx, cancel := context.WithTimeout(ctx, h.upstreamTimeout)
	defer cancel()

	if vreq.Stream {
		err = h.streamCompletion(ctx, upstreamCtx, cancel, w, model, vreq)
	} else {
		err = h.singleCompletion(upstreamCtx, w, model, vreq)
	}

	latency := time.Since(start)
	metrics.RecordRequest(model.Alias, mode, statusLabel(err), latency.Seconds())

	if err != nil {
		telemetry.AddErrorAttribute(span, err)
		h.logger.Error("chat request failed",
			"error", err,
			"request_id", requestID,
			"alias", model.Alias,
			"model", model.VendorModelID,
			"latency_ms", latency.Milliseconds(),
		)
		return
	}

	h.logger.Info("request completed",
		"request_id", requestID,
		"alias", model.Alias,
		"model", model.VendorModelID,
		"stream", vreq.Stream,
		"files", len(vreq.Files),
		"latency_ms", latency.Milliseconds(),
	)
}

func (h *Handler) singleCompletion(ctx context.Context, w http.ResponseWriter, model registry.Model, vreq domain.VendorRequest) error {
	resp, err := h.provider.ChatCompletion(ctx, model, vreq)
	if err != nil {
		writeDomainError(w, err)
		return err
	}

	if resp.Usage != nil {
		metrics.RecordTokens(model.Alias, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}
	writeJSON(w, http.StatusOK, resp)
	return nil
}

// streamCompletion relays the vendor stream. clientCtx ends when the caller
// disconnects; upstreamCtx additionally carries the upstream deadline.
func (h *Handler) streamCompletion(clientCtx, upstreamCtx context.Context, cancel context.CancelFunc, w http.ResponseWriter, model registry.Model, vreq domain.VendorRequest) error {
	rl, err := relay.New(w, domain.NewCompletionID(), model.Alias)
	if err != nil {
		writeError(w, http.StatusInternalServerError, typeServer, "", "streaming not supported")
		return err
	}

	events, errs := h.provider.ChatCompletionStream(upstreamCtx, model, vreq)
	err = rl.Run(clientCtx, cancel, events, errs)
	if err != nil && !rl.HeadersSent() {
		writeDomainError(w, err)
	}
	if usage := rl.Usage(); usage != nil {
		metrics.RecordTokens(model.Alias, usage.PromptTokens, usage.CompletionTokens)
	}
	return err
}

func (h *Handler) decodeChatRequest(ctx context.Context, r *http.Request) (domain.ChatRequest, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		return h.decodeMultipartChat(ctx, r)
	}

	var req domain.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, bodyError(err)
	}
	return req, nil
}

// decodeMultipartChat reads the form variant: model, messages as a JSON
// string, stream as "true", and an optional file that is attached to the last
// user message.
func (h *Handler) decodeMultipartChat(ctx context.Context, r *http.Request) (domain.ChatRequest, error) {
	var req domain.ChatRequest
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return req, bodyError(err)
	}
	defer r.MultipartForm.RemoveAll()

	req.Model = r.FormValue("model")

	raw := r.FormValue("messages")
	if raw == "" {
		return req, fmt.Errorf("%w: messages field is required", domain.ErrInvalidRequest)
	}
	if err := json.Unmarshal([]byte(raw), &req.Messages); err != nil {
		return req, fmt.Errorf("%w: invalid messages format: %v", domain.ErrInvalidRequest, err)
	}

	if s := r.FormValue("stream"); s != "" {
		stream, err := strconv.ParseBool(strings.TrimSpace(s))
		if err != nil {
			return req, fmt.Errorf("%w: stream must be a boolean", domain.ErrInvalidRequest)
		}
		req.Stream = stream
	}

	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return req, nil
	}
	if err != nil {
		return req, bodyError(err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return req, bodyError(err)
	}
	if len(data) == 0 {
		return req, nil
	}

	contentType := header.Header.Get("Content-Type")
	part := domain.ContentPart{Type: domain.PartFile}
	capability := registry.CapabilityFiles
	if strings.HasPrefix(contentType, "image/") {
		part.Type = domain.PartImage
		capability = registry.CapabilityImages
	}

	// Check the model before storing anything on its behalf.
	model, err := h.registry.Resolve(req.Model)
	if err != nil {
		return req, err
	}
	if !model.Supports(capability) {
		return req, fmt.Errorf("%w: model %q does not accept %s", domain.ErrUnsupportedContent, model.Alias, capability)
	}

	attached := attachToLastUserMessage(&req, part)
	if err := translator.Validate(req); err != nil {
		return req, err
	}

	stored, err := h.files.Put(ctx, filestore.Upload{
		Data:        data,
		ContentType: contentType,
		Filename:    header.Filename,
		Purpose:     "user_data",
	})
	if err != nil {
		return req, err
	}

	if attached.Type == domain.PartImage {
		attached.ImageURL = stored.ID
	} else {
		attached.FileID = stored.ID
	}
	return req, nil
}

// attachToLastUserMessage appends part to the last user message, or to a new
// one, and returns the appended part.
func attachToLastUserMessage(req *domain.ChatRequest, part domain.ContentPart) *domain.ContentPart {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			m := &req.Messages[i]
			m.Content = append(m.Content, part)
			return &m.Content[len(m.Content)-1]
		}
	}
	req.Messages = append(req.Messages, domain.Message{Role: "user", Content: []domain.ContentPart{part}})
	last := &req.Messages[len(req.Messages)-1]
	return &last.Content[0]
}

// bodyError classifies a failure to read or decode the request body.
func bodyError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return fmt.Errorf("%w: request body exceeds %d bytes", domain.ErrFileTooLarge, maxErr.Limit)
	}
	return fmt.Errorf("%w: invalid request body: %v", domain.ErrInvalidRequest, err)
}
