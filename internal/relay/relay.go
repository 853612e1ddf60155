// Package relay turns a provider's event channel into an OpenAI
// server-sent-event stream.
//
// A Relay moves through OPEN -> STREAMING -> DONE or FAILED. Nothing is
// written while it is OPEN, so an upstream failure at that point can still be
// answered with an ordinary JSON error. Once the first chunk is out, every
// failure is reported in-band as a terminal chunk followed by [DONE].
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/felipepmaragno/genai-bridge/internal/domain"
	"github.com/felipepmaragno/genai-bridge/internal/metrics"
)

type State int

const (
	StateOpen State = iota
	StateStreaming
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateStreaming:
		return "streaming"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

const (
	finishStop  = "stop"
	finishError = "error"
)

var ErrStreamingUnsupported = errors.New("response writer does not support flushing")

type Relay struct {
	w       http.ResponseWriter
	flusher http.Flusher
	id      string
	model   string
	created int64

	state       State
	headersSent bool
	chunks      int
	finish      string
	usage       *domain.Usage
	logger      *slog.Logger
}

// New prepares a relay for one completion. id and model are echoed in every
// chunk.
func New(w http.ResponseWriter, id, model string) (*Relay, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	return &Relay{
		w:       w,
		flusher: flusher,
		id:      id,
		model:   model,
		created: time.Now().Unix(),
		state:   StateOpen,
		logger:  slog.Default().With("component", "relay", "completion_id", id),
	}, nil
}

func (r *Relay) State() State { return r.state }

// HeadersSent reports whether anything has been written to the client.
func (r *Relay) HeadersSent() bool { return r.headersSent }

func (r *Relay) Chunks() int { return r.chunks }

func (r *Relay) FinishReason() string { return r.finish }

func (r *Relay) Usage() *domain.Usage { return r.usage }

// Run copies events to the client until the stream ends. ctx is the client's
// request context; cancel aborts the upstream call and is invoked whenever
// the relay stops reading early.
//
// The returned error is nil only for a DONE stream. When HeadersSent is false
// the caller still owns the response and should write a JSON error.
func (r *Relay) Run(ctx context.Context, cancel context.CancelFunc, events <-chan domain.StreamEvent, errs <-chan error) error {
	metrics.IncrementActiveStreams()
	defer metrics.DecrementActiveStreams()
	defer cancel()

	for events != nil || errs != nil {
		select {
		case <-ctx.Done():
			return r.abandon(ctx.Err())

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ctx.Err() != nil {
				return r.abandon(ctx.Err())
			}
			if err := r.handle(ev); err != nil {
				return r.abandon(err)
			}
			if r.state == StateDone {
				return nil
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err == nil {
				continue
			}
			return r.fail(err)
		}
	}

	// Both channels closed without a done marker or an error.
	if err := r.terminate(finishStop, nil); err != nil {
		return r.abandon(err)
	}
	return nil
}

func (r *Relay) handle(ev domain.StreamEvent) error {
	if ev.Delta != "" {
		if err := r.send(r.chunk(ev.Delta, nil)); err != nil {
			return err
		}
		r.chunks++
		metrics.RecordStreamChunk(r.model)
	}
	if !ev.Done {
		return nil
	}

	finish := ev.FinishReason
	if finish == "" {
		finish = finishStop
	}
	return r.terminate(finish, ev.Usage)
}

func (r *Relay) terminate(finish string, usage *domain.Usage) error {
	chunk := r.chunk("", &finish)
	chunk.Usage = usage
	if err := r.send(chunk); err != nil {
		return err
	}
	if err := r.done(); err != nil {
		return err
	}

	r.state = StateDone
	r.finish = finish
	r.usage = usage
	metrics.RecordStreamTerminated(r.model, StateDone.String())
	return nil
}

// fail handles an upstream error. While OPEN the error is handed back
// untouched; afterwards it becomes an error chunk.
func (r *Relay) fail(err error) error {
	if r.state == StateOpen {
		r.state = StateFailed
		metrics.RecordStreamTerminated(r.model, StateFailed.String())
		return err
	}

	r.logger.Warn("upstream failed mid-stream", "error", err, "chunks", r.chunks)

	finish := finishError
	chunk := r.chunk("", &finish)
	chunk.Error = errorDetail(err)
	if werr := r.send(chunk); werr == nil {
		_ = r.done()
	}

	r.state = StateFailed
	r.finish = finishError
	metrics.RecordStreamTerminated(r.model, StateFailed.String())
	return err
}

// abandon stops without writing anything further, after a client disconnect
// or a failed write.
func (r *Relay) abandon(err error) error {
	r.logger.Info("stream abandoned", "reason", err, "chunks", r.chunks)
	r.state = StateFailed
	metrics.RecordStreamTerminated(r.model, "cancelled")
	return fmt.Errorf("client went away: %w", err)
}

func (r *Relay) chunk(content string, finish *string) domain.StreamChunk {
	delta := domain.Delta{Content: content}
	if r.state == StateOpen {
		delta.Role = "assistant"
	}
	return domain.StreamChunk{
		ID:      r.id,
		Object:  "chat.completion.chunk",
		Created: r.created,
		Model:   r.model,
		Choices: []domain.StreamChoice{{Index: 0, Delta: delta, FinishReason: finish}},
	}
}

func (r *Relay) send(chunk domain.StreamChunk) error {
	if r.state == StateOpen {
		h := r.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		r.w.WriteHeader(http.StatusOK)
		r.headersSent = true
		r.state = StateStreaming
	}
	return writeEvent(r.w, r.flusher, chunk)
}

func (r *Relay) done() error {
	return writeDone(r.w, r.flusher)
}

func errorDetail(err error) *domain.ErrorDetail {
	detail := &domain.ErrorDetail{Message: err.Error(), Type: "upstream_error"}
	if errors.Is(err, domain.ErrUpstreamTimeout) {
		detail.Code = "timeout"
	}
	return detail
}
