package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveVideo(t *testing.T) {
	m := New()
	m.ObserveVideo("indexed", 12, 2*time.Second)
	m.ObserveVideo("indexed", 3, time.Second)
	m.ObserveVideo("skipped", 0, time.Millisecond)

	if act := testutil.ToFloat64(m.videos.WithLabelValues("indexed")); act != 2 {
		t.Errorf("exp 2 indexed, got %v", act)
	}
	if act := testutil.ToFloat64(m.videos.WithLabelValues("skipped")); act != 1 {
		t.Errorf("exp 1 skipped, got %v", act)
	}
	if act := testutil.ToFloat64(m.segments); act != 15 {
		t.Errorf("exp 15 segments, got %v", act)
	}
}

func TestObserveQuery(t *testing.T) {
	m := New()
	m.ObserveQuery("ok", 1, 4, 3*time.Millisecond)
	m.ObserveQuery("rejected", 0, 0, 0)

	if act := testutil.ToFloat64(m.queries.WithLabelValues("ok")); act != 1 {
		t.Errorf("exp 1 ok query, got %v", act)
	}
	if act := testutil.ToFloat64(m.results.WithLabelValues("transcript")); act != 4 {
		t.Errorf("exp 4 transcript results, got %v", act)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.ObserveVideo("failed", 1, time.Second)
	m.ObserveQuery("error", 0, 0, time.Second)
	if m.Registry() != nil {
		t.Error("exp nil registry")
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveVideo("indexed", 1, time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("exp 200, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `sermonsearch_ingest_videos_total{outcome="indexed"} 1`) {
		t.Errorf("exp ingest counter in exposition, got:\n%s", body)
	}
}
