package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordRequest(t *testing.T) {
	// Reset metrics for test isolation
	RequestsTotal.Reset()
	RequestDuration.Reset()

	RecordRequest("postech-gpt", "stream", "success", 1.5)

	count := testutil.ToFloat64(RequestsTotal.WithLabelValues("postech-gpt", "stream", "success"))
	if count != 1 {
		t.Errorf("RequestsTotal = %v, want 1", count)
	}
}

func TestRecordTokens(t *testing.T) {
	TokensTotal.Reset()

	RecordTokens("postech-claude", 100, 50)

	prompt := testutil.ToFloat64(TokensTotal.WithLabelValues("postech-claude", "prompt"))
	if prompt != 100 {
		t.Errorf("prompt tokens = %v, want 100", prompt)
	}

	completion := testutil.ToFloat64(TokensTotal.WithLabelValues("postech-claude", "completion"))
	if completion != 50 {
		t.Errorf("completion tokens = %v, want 50", completion)
	}
}

func TestRecordUpstreamError(t *testing.T) {
	UpstreamErrors.Reset()

	RecordUpstreamError("postech-gpt", "timeout")
	RecordUpstreamError("postech-gpt", "status")
	RecordUpstreamError("postech-gpt", "timeout")

	timeouts := testutil.ToFloat64(UpstreamErrors.WithLabelValues("postech-gpt", "timeout"))
	if timeouts != 2 {
		t.Errorf("timeout errors = %v, want 2", timeouts)
	}

	status := testutil.ToFloat64(UpstreamErrors.WithLabelValues("postech-gpt", "status"))
	if status != 1 {
		t.Errorf("status errors = %v, want 1", status)
	}
}

func TestStreamMetrics(t *testing.T) {
	StreamChunks.Reset()
	StreamsTerminated.Reset()

	RecordStreamChunk("postech-gemini")
	RecordStreamChunk("postech-gemini")
	RecordStreamTerminated("postech-gemini", "done")

	if got := testutil.ToFloat64(StreamChunks.WithLabelValues("postech-gemini")); got != 2 {
		t.Errorf("StreamChunks = %v, want 2", got)
	}
	if got := testutil.ToFloat64(StreamsTerminated.WithLabelValues("postech-gemini", "done")); got != 1 {
		t.Errorf("StreamsTerminated = %v, want 1", got)
	}
}

func TestActiveStreams(t *testing.T) {
	before := testutil.ToFloat64(ActiveStreams)

	IncrementActiveStreams()
	IncrementActiveStreams()

	if got := testutil.ToFloat64(ActiveStreams); got != before+2 {
		t.Errorf("ActiveStreams = %v, want %v", got, before+2)
	}

	DecrementActiveStreams()
	DecrementActiveStreams()

	if got := testutil.ToFloat64(ActiveStreams); got != before {
		t.Errorf("ActiveStreams after dec = %v, want %v", got, before)
	}
}

func TestRecordFileStored(t *testing.T) {
	files := testutil.ToFloat64(FilesStored)
	bytes := testutil.ToFloat64(FileBytesStored)

	RecordFileStored(1024)

	if got := testutil.ToFloat64(FilesStored); got != files+1 {
		t.Errorf("FilesStored = %v, want %v", got, files+1)
	}
	if got := testutil.ToFloat64(FileBytesStored); got != bytes+1024 {
		t.Errorf("FileBytesStored = %v, want %v", got, bytes+1024)
	}
}

func TestRecordFileDownload(t *testing.T) {
	FileDownloads.Reset()

	RecordFileDownload("hit")
	RecordFileDownload("miss")
	RecordFileDownload("hit")

	if got := testutil.ToFloat64(FileDownloads.WithLabelValues("hit")); got != 2 {
		t.Errorf("hits = %v, want 2", got)
	}
}
