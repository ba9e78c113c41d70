// Package pipeline runs one document through extraction, classification,
// optional knowledge lookup and analysis.
package pipeline

import (
	"context"
	"time"

	"creditdocs-backend/internal/analysis"
	"creditdocs-backend/internal/classify"
	"creditdocs-backend/internal/extract"
	"creditdocs-backend/internal/knowledge"
	"creditdocs-backend/internal/reports"
	"creditdocs-backend/internal/shared/metrics"
	"creditdocs-backend/internal/shared/storage/object"
	"creditdocs-backend/internal/shared/telemetry"
)

// Extractor turns document bytes into text.
type Extractor interface {
	Extract(ctx context.Context, doc extract.Document) (extract.Result, error)
}

// Classifier labels extracted text.
type Classifier interface {
	Classify(ctx context.Context, text string) (classify.Result, error)
}

// Analyzer produces the structured record.
type Analyzer interface {
	Analyze(ctx context.Context, text string, label classify.Label, opts analysis.Options) (analysis.Record, error)
}

// Retriever answers knowledge queries.
type Retriever interface {
	Retrieve(ctx context.Context, query string, opts knowledge.Options) (knowledge.Response, error)
}

// Document is one pipeline input.
type Document struct {
	Bytes    []byte
	FileName string
	OwnerID  string
	// MimeType is optional; the extraction chain sniffs when empty.
	MimeType string
}

// Options toggles optional stages.
type Options struct {
	// WithKnowledge looks up reference material for the label and adds it to
	// the analysis prompt.
	WithKnowledge bool
	// PersistKnowledge stores web results found during that lookup.
	PersistKnowledge bool
}

// Result is everything one run produced.
type Result struct {
	Extraction     extract.Result
	Classification classify.Result
	Record         analysis.Record
	Knowledge      *knowledge.Response
	Duration       time.Duration
}

// Service wires the pipeline stages together.
type Service struct {
	extractor  Extractor
	classifier Classifier
	analyzer   Analyzer
	retriever  Retriever
	locations  *object.Locations
	reports    reports.Repo
}

// Option configures a Service.
type Option func(*Service)

// WithRetriever enables the knowledge stage.
func WithRetriever(r Retriever) Option {
	return func(s *Service) { s.retriever = r }
}

// WithLocations sets where queued documents are read from.
func WithLocations(l *object.Locations) Option {
	return func(s *Service) { s.locations = l }
}

// WithReports sets where results are stored.
func WithReports(r reports.Repo) Option {
	return func(s *Service) { s.reports = r }
}

// New builds a Service.
func New(extractor Extractor, classifier Classifier, analyzer Analyzer, opts ...Option) *Service {
	s := &Service{extractor: extractor, classifier: classifier, analyzer: analyzer}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run processes doc. The only error is context cancellation; the partial
// result is returned with it.
func (s *Service) Run(ctx context.Context, doc Document, opts Options) (Result, error) {
	start := time.Now()
	metrics.IncPipelineStarted()
	var res Result

	fail := func(err error) (Result, error) {
		res.Duration = time.Since(start)
		metrics.IncPipelineFailed()
		telemetry.Warn("pipeline.cancelled", map[string]any{
			"file_name": doc.FileName,
			"owner_id":  doc.OwnerID,
			"error":     err.Error(),
		})
		return res, err
	}

	ext, err := s.extractor.Extract(ctx, extract.Document{Bytes: doc.Bytes, FileName: doc.FileName, MimeType: doc.MimeType})
	res.Extraction = ext
	if err != nil {
		if ctx.Err() != nil {
			return fail(ctx.Err())
		}
		telemetry.Error("pipeline.extract_error", map[string]any{"file_name": doc.FileName, "error": err.Error()})
		res.Extraction = extract.Result{Text: extract.Placeholder(doc.FileName), Tier: extract.TierNone, NeedsOCR: true, Failure: err}
	}

	cls, err := s.classifier.Classify(ctx, res.Extraction.Text)
	res.Classification = cls
	if err != nil {
		if ctx.Err() != nil {
			return fail(ctx.Err())
		}
		telemetry.Error("pipeline.classify_error", map[string]any{"file_name": doc.FileName, "error": err.Error()})
		res.Classification = classify.Result{Label: classify.LabelOther, Tier: classify.TierNone, Failure: err}
	}

	var reference string
	if opts.WithKnowledge && s.retriever != nil {
		resp, err := s.retriever.Retrieve(ctx, KnowledgeQuery(res.Classification.Label), knowledge.Options{Persist: opts.PersistKnowledge})
		switch {
		case err != nil && ctx.Err() != nil:
			return fail(ctx.Err())
		case err != nil:
			telemetry.Warn("pipeline.knowledge_error", map[string]any{"file_name": doc.FileName, "error": err.Error()})
		case resp.Tier != knowledge.TierNone:
			res.Knowledge = &resp
			reference = resp.Text
		}
	}

	record, err := s.analyzer.Analyze(ctx, res.Extraction.Text, res.Classification.Label, analysis.Options{Knowledge: reference})
	if err != nil {
		if ctx.Err() != nil {
			return fail(ctx.Err())
		}
		record = analysis.Degraded(err)
	}
	res.Record = record
	res.Duration = time.Since(start)

	metrics.IncPipelineCompleted()
	metrics.ObservePipelineDurationMs(metrics.SinceMillis(start))
	telemetry.Info("pipeline.complete", map[string]any{
		"file_name":           doc.FileName,
		"owner_id":            doc.OwnerID,
		"extraction_tier":     string(res.Extraction.Tier),
		"needs_ocr":           res.Extraction.NeedsOCR,
		"label":               string(res.Classification.Label),
		"classification_tier": string(res.Classification.Tier),
		"missing_sections":    len(record.Missing()),
		"with_knowledge":      res.Knowledge != nil,
		"duration_ms":         float64(res.Duration.Microseconds()) / 1000.0,
	})
	return res, nil
}

// KnowledgeQuery is the reference lookup issued for a label.
func KnowledgeQuery(label classify.Label) string {
	switch label {
	case classify.LabelCreditReport:
		return "FCRA dispute inaccurate credit report information"
	case classify.LabelDebtLetter:
		return "FDCPA debt validation collection letter rights"
	case classify.LabelCFPBComplaint:
		return "CFPB complaint credit reporting FCRA violation"
	default:
		return "FCRA consumer dispute rights"
	}
}
