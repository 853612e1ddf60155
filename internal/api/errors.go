package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/felipepmaragno/genai-bridge/internal/domain"
)

const (
	typeInvalidRequest = "invalid_request_error"
	typeUpstream       = "upstream_error"
	typeServer         = "server_error"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, errType, code, message string) {
	writeErrorParam(w, status, errType, code, message, nil)
}

func writeErrorParam(w http.ResponseWriter, status int, errType, code, message string, param *string) {
	writeJSON(w, status, domain.ErrorResponse{Error: domain.ErrorDetail{
		Message: message,
		Type:    errType,
		Code:    code,
		Param:   param,
	}})
}

// writeDomainError is the single place where domain errors become HTTP
// statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	status, errType, code := classifyError(err)

	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}

	var param *string
	if errors.Is(err, domain.ErrUnknownModel) {
		p := "model"
		param = &p
	}
	writeErrorParam(w, status, errType, code, message, param)
}

func classifyError(err error) (status int, errType, code string) {
	switch {
	case errors.Is(err, domain.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, typeInvalidRequest, "file_too_large"
	case errors.Is(err, domain.ErrStorage):
		return http.StatusInsufficientStorage, typeServer, "storage_error"
	case errors.Is(err, domain.ErrUnknownModel):
		return http.StatusBadRequest, typeInvalidRequest, "model_not_found"
	case errors.Is(err, domain.ErrUnsupportedContent):
		return http.StatusBadRequest, typeInvalidRequest, "unsupported_content"
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest, typeInvalidRequest, ""
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, typeInvalidRequest, "not_found"
	case errors.Is(err, domain.ErrUpstreamTimeout):
		return http.StatusGatewayTimeout, typeUpstream, "timeout"
	case errors.Is(err, domain.ErrUpstream):
		return http.StatusBadGateway, typeUpstream, ""
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, typeUpstream, "timeout"
	default:
		return http.StatusInternalServerError, typeServer, ""
	}
}

// statusLabel buckets an error for the requests_total metric.
func statusLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if errors.Is(err, context.Canceled) {
		return "cancelled"
	}
	status, _, _ := classifyError(err)
	if status >= 500 {
		return "server_error"
	}
	return "client_error"
}
