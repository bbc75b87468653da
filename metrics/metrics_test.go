package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordRequest(t *testing.T) {
	before := testutil.ToFloat64(ChatRequestsTotal.WithLabelValues("openai", "gpt-4o", StatusSuccess))
	tokensBefore := testutil.ToFloat64(TokensTotal.WithLabelValues("openai", "gpt-4o", "out"))

	RecordRequest("openai", "gpt-4o", StatusSuccess, 1500*time.Millisecond, 10, 25)

	if got := testutil.ToFloat64(ChatRequestsTotal.WithLabelValues("openai", "gpt-4o", StatusSuccess)); got != before+1 {
		t.Errorf("requests: got %v, want %v", got, before+1)
	}
	if got := testutil.ToFloat64(TokensTotal.WithLabelValues("openai", "gpt-4o", "out")); got != tokensBefore+25 {
		t.Errorf("output tokens: got %v, want %v", got, tokensBefore+25)
	}
	if n := testutil.CollectAndCount(ChatRequestDuration); n == 0 {
		t.Error("duration histogram should have a series")
	}
}

func TestActiveStreams(t *testing.T) {
	before := testutil.ToFloat64(ActiveStreams)

	StreamStarted()
	if got := testutil.ToFloat64(ActiveStreams); got != before+1 {
		t.Errorf("active: got %v, want %v", got, before+1)
	}
	StreamEnded()
	if got := testutil.ToFloat64(ActiveStreams); got != before {
		t.Errorf("active: got %v, want %v", got, before)
	}
}

func TestRecordDelta(t *testing.T) {
	before := testutil.ToFloat64(ContentDeltasTotal.WithLabelValues("ollama"))
	RecordDelta("ollama")
	RecordDelta("ollama")
	if got := testutil.ToFloat64(ContentDeltasTotal.WithLabelValues("ollama")); got != before+2 {
		t.Errorf("deltas: got %v, want %v", got, before+2)
	}
}
