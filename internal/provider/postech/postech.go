package postech

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"strings"

	"github.com/felipepmaragno/genai-bridge/internal/domain"
	"github.com/felipepmaragno/genai-bridge/internal/httputil"
	"github.com/felipepmaragno/genai-bridge/internal/metrics"
	"github.com/felipepmaragno/genai-bridge/internal/registry"
	"github.com/felipepmaragno/genai-bridge/internal/telemetry"
)

const maxEventBytes = 1 << 20

type Provider struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// New creates a client for the vendor API rooted at baseURL. A nil client
// falls back to httputil.DefaultClient.
func New(apiKey, baseURL string, client *http.Client) *Provider {
	if client == nil {
		client = httputil.DefaultClient()
	}
	return &Provider{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  slog.Default().With("component", "postech"),
	}
}

func (p *Provider) ID() string {
	return "postech"
}

func (p *Provider) ChatCompletion(ctx context.Context, model registry.Model, req domain.VendorRequest) (*domain.ChatResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "postech.chat_completion")
	defer span.End()

	req.Stream = false

	resp, err := p.do(ctx, model, req)
	if err != nil {
		telemetry.AddErrorAttribute(span, err)
		p.recordError(model, err)
		return nil, err
	}
	defer resp.Body.Close()

	var vendorResp vendorResponse
	if err := json.NewDecoder(resp.Body).Decode(&vendorResp); err != nil {
		err = classify(fmt.Errorf("decode response: %w", err))
		telemetry.AddErrorAttribute(span, err)
		p.recordError(model, err)
		return nil, err
	}

	if msg := errorMessage(vendorResp.Error); msg != "" {
		err := fmt.Errorf("%w: postech: %s", domain.ErrUpstream, msg)
		telemetry.AddErrorAttribute(span, err)
		p.recordError(model, err)
		return nil, err
	}

	out := p.toOpenAIResponse(vendorResp, model.Alias)
	if out.Usage != nil {
		telemetry.AddTokenAttributes(span, out.Usage.PromptTokens, out.Usage.CompletionTokens)
	}
	telemetry.AddFinishAttribute(span, out.Choices[0].FinishReason)

	return out, nil
}

func (p *Provider) ChatCompletionStream(ctx context.Context, model registry.Model, req domain.VendorRequest) (<-chan domain.StreamEvent, <-chan error) {
	events := make(chan domain.StreamEvent)
	errs := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errs)

		ctx, span := telemetry.StartSpan(ctx, "postech.chat_completion_stream")
		defer span.End()

		fail := func(err error) {
			if ctx.Err() != nil && !errors.Is(err, domain.ErrUpstreamTimeout) {
				return
			}
			telemetry.AddErrorAttribute(span, err)
			p.recordError(model, err)
			errs <- err
		}

		req.Stream = true

		resp, err := p.do(ctx, model, req)
		if err != nil {
			fail(err)
			return
		}
		defer resp.Body.Close()

		// A vendor that ignores the stream flag answers with one JSON body.
		if isJSON(resp.Header.Get("Content-Type")) {
			var vendorResp vendorResponse
			if err := json.NewDecoder(resp.Body).Decode(&vendorResp); err != nil {
				fail(classify(fmt.Errorf("decode response: %w", err)))
				return
			}
			if msg := errorMessage(vendorResp.Error); msg != "" {
				fail(fmt.Errorf("%w: postech: %s", domain.ErrUpstream, msg))
				return
			}
			ev := domain.StreamEvent{
				Delta:        repliesText(vendorResp.Replies),
				Done:         true,
				FinishReason: p.mapFinishReason(vendorResp.FinishReason),
				Usage:        toUsage(vendorResp.Usage),
			}
			select {
			case events <- ev:
			case <-ctx.Done():
			}
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), maxEventBytes)

		for scanner.Scan() {
			payload, ok := ssePayload(scanner.Text())
			if !ok {
				continue
			}
			if payload == "[DONE]" {
				return
			}

			var ve vendorEvent
			if err := json.Unmarshal([]byte(payload), &ve); err != nil {
				p.logger.Warn("skipping malformed stream event", "error", err, "endpoint", model.VendorEndpoint)
				continue
			}

			if msg := errorMessage(ve.Error); msg != "" {
				fail(fmt.Errorf("%w: postech: %s", domain.ErrUpstream, msg))
				return
			}

			ev := domain.StreamEvent{
				Delta: repliesText(ve.Replies),
				Done:  ve.Done,
				Usage: toUsage(ve.Usage),
			}
			if ve.Done || ve.FinishReason != "" {
				ev.Done = true
				ev.FinishReason = p.mapFinishReason(ve.FinishReason)
			}
			if ev.Delta == "" && !ev.Done {
				continue
			}

			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}

			if ev.Done {
				telemetry.AddFinishAttribute(span, ev.FinishReason)
				return
			}
		}

		if err := scanner.Err(); err != nil {
			fail(classify(fmt.Errorf("read stream: %w", err)))
		}
	}()

	return events, errs
}

func (p *Provider) do(ctx context.Context, model registry.Model, req domain.VendorRequest) (*http.Response, error) {
	if req.Files == nil {
		req.Files = []domain.VendorFile{}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := p.baseURL + "/" + model.VendorEndpoint
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Api-Key", p.apiKey)
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	} else {
		httpReq.Header.Set("Accept", "application/json")
	}

	p.logger.Debug("calling vendor",
		"endpoint", model.VendorEndpoint,
		"stream", req.Stream,
		"files", len(req.Files),
		"message_bytes", len(req.Message),
	)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, classify(fmt.Errorf("do request: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%w: postech error: status=%d body=%s", domain.ErrUpstream, resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}

	return resp, nil
}

func (p *Provider) recordError(model registry.Model, err error) {
	errorType := "upstream"
	switch {
	case errors.Is(err, domain.ErrUpstreamTimeout):
		errorType = "timeout"
	case errors.Is(err, context.Canceled):
		errorType = "cancelled"
	}
	metrics.RecordUpstreamError(model.Alias, errorType)
}

// classify maps transport failures onto the upstream sentinels. Caller
// cancellation passes through untouched.
func classify(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", domain.ErrUpstreamTimeout, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrUpstream, err)
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "application/json"
}

// ssePayload extracts the data of one SSE line. Bare JSON lines are accepted
// for vendors that stream newline-delimited JSON.
func ssePayload(line string) (string, bool) {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return "", false
	case strings.HasPrefix(line, "data:"):
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		return payload, payload != ""
	case strings.HasPrefix(line, "{"):
		return line, true
	default:
		// event:, id:, retry: and comment lines
		return "", false
	}
}
