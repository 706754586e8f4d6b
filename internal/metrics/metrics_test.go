package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorders(t *testing.T) {
	m := New()

	m.RecordChunk(800)
	m.RecordChunk(200)
	m.RecordTranscription(time.Second, nil)
	m.RecordTranscription(time.Second, errors.New("boom"))
	m.RecordDeferred()
	m.RecordQuery("question", OutcomeOK, time.Second)
	m.SetPendingQueries(3)

	if got := testutil.ToFloat64(m.AudioChunks); got != 2 {
		t.Errorf("chunks = %v", got)
	}
	if got := testutil.ToFloat64(m.AudioBytes); got != 1000 {
		t.Errorf("bytes = %v", got)
	}
	if got := testutil.ToFloat64(m.TranscriptionRequests); got != 2 {
		t.Errorf("requests = %v", got)
	}
	if got := testutil.ToFloat64(m.TranscriptionFailures); got != 1 {
		t.Errorf("failures = %v", got)
	}
	if got := testutil.ToFloat64(m.Queries.WithLabelValues("question", OutcomeOK)); got != 1 {
		t.Errorf("queries = %v", got)
	}
	if got := testutil.ToFloat64(m.PendingQueries); got != 3 {
		t.Errorf("pending = %v", got)
	}
}

func TestIndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.RecordDeferred()
	if got := testutil.ToFloat64(b.TranscriptionDeferred); got != 0 {
		t.Fatalf("registries share state: %v", got)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.RecordChunk(1)
	m.RecordCaptureError()
	m.RecordTranscription(0, nil)
	m.RecordQuery("summary", OutcomeError, 0)
	m.SetTranscriptChars(10)
	if m.Registry() != nil {
		t.Fatal("nil metrics returned a registry")
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.SetTranscriptChars(42)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "huddle_transcript_chars 42") {
		t.Fatalf("exposition missing gauge:\n%s", body)
	}
}
