package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

var (
	pipelineStartedTotal   atomic.Uint64
	pipelineCompletedTotal atomic.Uint64
	pipelineFailedTotal    atomic.Uint64
	repairRoundsTotal      atomic.Uint64

	extractionTierTotal     = newLabeledCounter("tier")
	classificationTierTotal = newLabeledCounter("tier")
	knowledgeTierTotal      = newLabeledCounter("tier")
	providerAttemptsTotal   = newLabeledCounter("provider", "outcome")
	persistFailuresTotal    = newLabeledCounter("target")
	workerJobsTotal         = newLabeledCounter("outcome")

	pipelineDuration = newHistogram([]float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000, 120000})
)

// IncPipelineStarted increments the started counter.
func IncPipelineStarted() {
	pipelineStartedTotal.Add(1)
}

// IncPipelineCompleted increments the completed counter.
func IncPipelineCompleted() {
	pipelineCompletedTotal.Add(1)
}

// IncPipelineFailed increments the failed counter.
func IncPipelineFailed() {
	pipelineFailedTotal.Add(1)
}

// IncRepairRound counts supplementary analysis requests.
func IncRepairRound() {
	repairRoundsTotal.Add(1)
}

// IncExtractionTier counts the extraction tier that produced the text.
func IncExtractionTier(tier string) {
	extractionTierTotal.Inc(tier)
}

// IncClassificationTier counts the classifier tier that decided the label.
func IncClassificationTier(tier string) {
	classificationTierTotal.Inc(tier)
}

// IncKnowledgeTier counts the retrieval tier that answered a query.
func IncKnowledgeTier(tier string) {
	knowledgeTierTotal.Inc(tier)
}

// IncProviderAttempt counts one inference provider call.
func IncProviderAttempt(provider string, succeeded bool) {
	outcome := "failed"
	if succeeded {
		outcome = "succeeded"
	}
	providerAttemptsTotal.Inc(provider, outcome)
}

// IncPersistenceFailure counts a best-effort write that failed.
func IncPersistenceFailure(target string) {
	persistFailuresTotal.Inc(target)
}

// IncWorkerJob counts a queued job by outcome: received, completed, failed
// or deleted_unrecoverable.
func IncWorkerJob(outcome string) {
	workerJobsTotal.Inc(outcome)
}

// ObservePipelineDurationMs records a pipeline duration in milliseconds.
func ObservePipelineDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	pipelineDuration.Observe(value)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "pipeline_started_total", "Total pipeline runs started", pipelineStartedTotal.Load())
	writeCounter(&buf, "pipeline_completed_total", "Total pipeline runs completed", pipelineCompletedTotal.Load())
	writeCounter(&buf, "pipeline_failed_total", "Total pipeline runs failed", pipelineFailedTotal.Load())
	writeCounter(&buf, "analysis_repair_rounds_total", "Total supplementary analysis requests", repairRoundsTotal.Load())
	writeLabeled(&buf, "extraction_tier_total", "Extraction results by tier", extractionTierTotal)
	writeLabeled(&buf, "classification_tier_total", "Classification results by tier", classificationTierTotal)
	writeLabeled(&buf, "knowledge_tier_total", "Knowledge answers by tier", knowledgeTierTotal)
	writeLabeled(&buf, "provider_attempts_total", "Inference provider calls", providerAttemptsTotal)
	writeLabeled(&buf, "persistence_failures_total", "Best-effort writes that failed", persistFailuresTotal)
	writeLabeled(&buf, "worker_jobs_total", "Queued jobs by outcome", workerJobsTotal)
	writeHistogram(&buf, "pipeline_duration_ms", "Pipeline duration in milliseconds", pipelineDuration.Snapshot())
	return buf.String()
}

type labeledCounter struct {
	mu     sync.Mutex
	names  []string
	values map[string]*atomic.Uint64
}

func newLabeledCounter(names ...string) *labeledCounter {
	return &labeledCounter{names: names, values: map[string]*atomic.Uint64{}}
}

func (l *labeledCounter) Inc(labelValues ...string) {
	key := l.key(labelValues)
	l.mu.Lock()
	c, ok := l.values[key]
	if !ok {
		c = &atomic.Uint64{}
		l.values[key] = c
	}
	l.mu.Unlock()
	c.Add(1)
}

func (l *labeledCounter) key(labelValues []string) string {
	parts := make([]string, 0, len(l.names))
	for i, name := range l.names {
		val := "unknown"
		if i < len(labelValues) && strings.TrimSpace(labelValues[i]) != "" {
			val = labelValues[i]
		}
		parts = append(parts, fmt.Sprintf("%s=%q", name, val))
	}
	return strings.Join(parts, ",")
}

func (l *labeledCounter) snapshot() ([]string, map[string]uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	keys := make([]string, 0, len(l.values))
	out := make(map[string]uint64, len(l.values))
	for k, v := range l.values {
		keys = append(keys, k)
		out[k] = v.Load()
	}
	sort.Strings(keys)
	return keys, out
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
			break
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeLabeled(buf *bytes.Buffer, name, help string, c *labeledCounter) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	keys, values := c.snapshot()
	for _, k := range keys {
		fmt.Fprintf(buf, "%s{%s} %d\n", name, k, values[k])
	}
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// SinceMillis returns the elapsed milliseconds since start.
func SinceMillis(start time.Time) float64 {
	return float64(time.Since(start)) / float64(time.Millisecond)
}
