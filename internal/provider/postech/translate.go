package postech

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/felipepmaragno/genai-bridge/internal/domain"
)

type vendorResponse struct {
	Replies      json.RawMessage `json:"replies"`
	FinishReason string          `json:"finish_reason,omitempty"`
	Usage        *vendorUsage    `json:"usage,omitempty"`
	Error        json.RawMessage `json:"error,omitempty"`
}

type vendorEvent struct {
	Replies      json.RawMessage `json:"replies"`
	Done         bool            `json:"done"`
	FinishReason string          `json:"finish_reason,omitempty"`
	Usage        *vendorUsage    `json:"usage,omitempty"`
	Error        json.RawMessage `json:"error,omitempty"`
}

type vendorUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
	InputTokens      int `json:"input_tokens"`
	OutputTokens     int `json:"output_tokens"`
}

func (p *Provider) toOpenAIResponse(resp vendorResponse, alias string) *domain.ChatResponse {
	return &domain.ChatResponse{
		ID:      domain.NewCompletionID(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   alias,
		Choices: []domain.Choice{
			{
				Index: 0,
				Message: &domain.AssistantMessage{
					Role:    "assistant",
					Content: repliesText(resp.Replies),
				},
				FinishReason: p.mapFinishReason(resp.FinishReason),
			},
		},
		Usage: toUsage(resp.Usage),
	}
}

func (p *Provider) mapFinishReason(reason string) string {
	switch strings.ToLower(strings.TrimSpace(reason)) {
	case "", "stop", "end_turn", "stop_sequence":
		return "stop"
	case "length-limit", "length", "max_tokens":
		return "length"
	default:
		p.logger.Warn("unrecognized vendor finish reason, reporting stop", "finish_reason", reason)
		return "stop"
	}
}

// toUsage returns nil when the vendor reported no counts.
func toUsage(u *vendorUsage) *domain.Usage {
	if u == nil {
		return nil
	}

	prompt := u.PromptTokens
	if prompt == 0 {
		prompt = u.InputTokens
	}
	completion := u.CompletionTokens
	if completion == 0 {
		completion = u.OutputTokens
	}
	total := u.TotalTokens
	if total == 0 {
		total = prompt + completion
	}
	if total == 0 {
		return nil
	}

	return &domain.Usage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      total,
	}
}

// repliesText accepts replies as a string or as an array of strings.
func repliesText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var parts []string
	if err := json.Unmarshal(raw, &parts); err == nil {
		return strings.Join(parts, "")
	}

	return string(raw)
}

// errorMessage reads the vendor error field, which may be a string or an
// object with a message.
func errorMessage(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) || bytes.Equal(raw, []byte("false")) || bytes.Equal(raw, []byte("{}")) {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var obj struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.Message != "" {
			return obj.Message
		}
		if obj.Detail != "" {
			return obj.Detail
		}
	}

	return string(raw)
}
