package metrics

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRenderIncludesLabeledCounters(t *testing.T) {
	IncProviderAttempt("openai", false)
	IncProviderAttempt("anthropic", true)
	IncExtractionTier("secondary")
	IncKnowledgeTier("")
	IncWorkerJob("deleted_unrecoverable")

	out := Render()
	for _, want := range []string{
		`provider_attempts_total{provider="openai",outcome="failed"}`,
		`provider_attempts_total{provider="anthropic",outcome="succeeded"}`,
		`extraction_tier_total{tier="secondary"}`,
		`knowledge_tier_total{tier="unknown"}`,
		`worker_jobs_total{outcome="deleted_unrecoverable"}`,
		"# TYPE pipeline_duration_ms histogram",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}

func TestHistogramBucketsAreCumulative(t *testing.T) {
	h := newHistogram([]float64{10, 100})
	h.Observe(5)
	h.Observe(50)
	h.Observe(500)

	snap := h.Snapshot()
	if snap.count != 3 || snap.counts[0] != 1 || snap.counts[1] != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}

	var buf bytes.Buffer
	writeHistogram(&buf, "x", "test", snap)
	out := buf.String()
	if !strings.Contains(out, `x_bucket{le="100"} 2`) || !strings.Contains(out, `x_bucket{le="+Inf"} 3`) {
		t.Fatalf("unexpected histogram:\n%s", out)
	}
}

func TestHandlerServesText(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/metrics", Handler())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain") {
		t.Fatalf("content type = %q", rec.Header().Get("Content-Type"))
	}
}
