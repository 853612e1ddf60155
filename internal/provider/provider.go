package provider

import (
	"context"

	"github.com/felipepmaragno/genai-bridge/internal/domain"
	"github.com/felipepmaragno/genai-bridge/internal/registry"
)

// Provider issues one vendor call per client call.
//
// ChatCompletionStream sends events on an unbuffered channel so a slow reader
// slows the upstream read. Both channels are closed when the producer exits;
// at most one error is sent. Cancelling ctx aborts the upstream request.
type Provider interface {
	ID() string
	ChatCompletion(ctx context.Context, model registry.Model, req domain.VendorRequest) (*domain.ChatResponse, error)
	ChatCompletionStream(ctx context.Context, model registry.Model, req domain.VendorRequest) (<-chan domain.StreamEvent, <-chan error)
}
