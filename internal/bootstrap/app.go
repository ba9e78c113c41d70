package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"github.com/gin-gonic/gin"

	"creditdocs-backend/internal/analysis"
	"creditdocs-backend/internal/classify"
	"creditdocs-backend/internal/documents"
	"creditdocs-backend/internal/embedding"
	"creditdocs-backend/internal/extract"
	"creditdocs-backend/internal/extract/ocr"
	"creditdocs-backend/internal/knowledge"
	"creditdocs-backend/internal/knowledge/websearch"
	"creditdocs-backend/internal/llm"
	"creditdocs-backend/internal/llm/anthropic"
	"creditdocs-backend/internal/llm/ollama"
	"creditdocs-backend/internal/llm/openai"
	"creditdocs-backend/internal/llm/vertex"
	"creditdocs-backend/internal/pipeline"
	"creditdocs-backend/internal/queue"
	"creditdocs-backend/internal/reports"
	"creditdocs-backend/internal/shared/config"
	"creditdocs-backend/internal/shared/server"
	"creditdocs-backend/internal/shared/storage/db"
	"creditdocs-backend/internal/shared/storage/object"
	gcsstore "creditdocs-backend/internal/shared/storage/object/gcs"
	localstore "creditdocs-backend/internal/shared/storage/object/local"
	s3store "creditdocs-backend/internal/shared/storage/object/s3"
	"creditdocs-backend/internal/shared/telemetry"
)

// App holds shared dependencies for every entrypoint.
type App struct {
	Config     config.Config
	Router     *gin.Engine
	DB         *sql.DB
	Gateway    *llm.Gateway
	Embedder   embedding.Embedder
	Extractor  *extract.Chain
	Classifier *classify.Classifier
	Exemplars  classify.ExemplarStore
	Analyzer   *analysis.Analyzer
	Retriever  *knowledge.Retriever
	Locations  *object.Locations
	Reports    reports.Repo
	Queue      queue.Client
	Pipeline   *pipeline.Service
	Documents  *documents.Service

	poolOptions db.Options
	closers     []func() error
}

// Option adjusts Build.
type Option func(*App)

// WithPoolOptions overrides the server pool defaults, e.g. for workers and
// the CLI.
func WithPoolOptions(opts db.Options) Option {
	return func(a *App) { a.poolOptions = opts }
}

// Close releases clients opened by Build. Errors are logged, not returned.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			telemetry.Warn("bootstrap.close_error", map[string]any{"error": err.Error()})
		}
	}
	a.closers = nil
}

func (a *App) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Build wires the pipeline and its HTTP surface from cfg.
func Build(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	app := &App{Config: cfg, poolOptions: db.DefaultServerOptions()}
	for _, opt := range opts {
		opt(app)
	}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	vocab, err := config.LoadVocabulary(cfg.VocabFile)
	if err != nil {
		return nil, err
	}

	if err := app.buildDB(ctx); err != nil {
		return nil, err
	}

	// One Vertex client serves both the provider and OCR.
	var genaiClient *genai.Client
	if needsVertex(cfg) {
		genaiClient, err = vertex.NewGenAIClient(ctx, cfg.GCPProject, cfg.GCPRegion)
		if err != nil {
			telemetry.Warn("bootstrap.vertex_unavailable", map[string]any{"error": err.Error()})
			genaiClient = nil
		} else {
			app.onClose(genaiClient.Close)
		}
	}

	app.Gateway = buildGateway(cfg, genaiClient)

	emb, err := embedding.New(embedding.Config{
		Provider: cfg.EmbeddingProvider,
		Model:    cfg.EmbeddingModel,
		APIKey:   embeddingKey(cfg),
		BaseURL:  embeddingBaseURL(cfg),
		Timeout:  cfg.EmbeddingTimeout,
	})
	if err != nil {
		telemetry.Warn("bootstrap.embedding_unavailable", map[string]any{"error": err.Error()})
	} else if emb != nil {
		app.Embedder = emb
	}

	app.Extractor = buildExtractor(cfg, genaiClient)

	if app.DB != nil {
		app.Exemplars = &classify.PGStore{DB: app.DB}
	} else {
		app.Exemplars = classify.NewMemoryStore()
	}
	app.Classifier = classify.New(classify.Config{
		K:                cfg.ClassifyK,
		Threshold:        cfg.ClassifyThreshold,
		SampleSize:       cfg.ClassifySample,
		Rules:            vocab.Classifier,
		Timeout:          cfg.ClassifyTimeout,
		InferenceTimeout: cfg.ClassifyInferTO,
	}, app.Embedder, app.Exemplars, app.Gateway)

	normalizer := analysis.NewNormalizer(app.Gateway,
		analysis.WithAliases(vocab.Aliases),
		analysis.WithSnippetRunes(cfg.SnippetRunes),
		analysis.WithMaxTextRunes(cfg.AnalysisMaxTextRune),
	)
	app.Analyzer = analysis.NewAnalyzer(app.Gateway, normalizer, cfg.AnalysisMaxTextRune)

	collections, err := app.buildCollections(cfg)
	if err != nil {
		return nil, err
	}
	var web knowledge.WebSearcher
	if cfg.WebSearchEnabled {
		web = websearch.New(cfg.WebSearchURL, cfg.WebSearchTimeout)
	}
	app.Retriever = knowledge.NewRetriever(knowledge.Config{
		Keywords:    vocab.Keywords,
		MaxKeywords: cfg.KnowledgeMaxKeywords,
		TopK:        cfg.KnowledgeTopK,
		SampleSize:  cfg.KnowledgeSample,
		Timeout:     cfg.KnowledgeTimeout,
	}, app.Embedder, collections, web)

	app.Locations, err = app.buildLocations(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if app.DB != nil {
		app.Reports = &reports.PGRepo{DB: app.DB}
	} else {
		app.Reports = reports.NewMemoryRepo()
	}

	app.Pipeline = pipeline.New(app.Extractor, app.Classifier, app.Analyzer,
		pipeline.WithRetriever(app.Retriever),
		pipeline.WithLocations(app.Locations),
		pipeline.WithReports(app.Reports),
	)

	if err := app.buildQueue(ctx, cfg); err != nil {
		return nil, err
	}

	app.Documents = &documents.Service{
		Runner:  app.Pipeline,
		Store:   app.Locations.Primary(),
		Reports: app.Reports,
		Queue:   app.Queue,
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:    cfg,
		Documents: documents.NewHandler(app.Documents),
		Reports:   reports.NewHandler(app.Reports),
		Classify:  classify.NewHandler(app.Classifier),
		Knowledge: knowledge.NewHandler(app.Retriever),
		DB:        app.DB,
	})

	telemetry.Info("bootstrap.ready", map[string]any{
		"env":        cfg.Env,
		"providers":  providerNames(app.Gateway),
		"locations":  app.Locations.Names(),
		"embeddings": app.Embedder != nil,
		"database":   app.DB != nil,
		"knowledge":  cfg.KnowledgeBackend,
	})
	ok = true
	return app, nil
}

func (a *App) buildDB(ctx context.Context) error {
	cfg := a.Config
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.database_missing", map[string]any{"fallback": "memory"})
			return nil
		}
		return fmt.Errorf("DATABASE_URL is required")
	}

	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(a.poolOptions))
	if err != nil {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.database_unavailable", map[string]any{"error": err.Error(), "fallback": "memory"})
			return nil
		}
		return err
	}
	if isDevLike(cfg.Env) {
		if _, err := db.RunMigrations(ctx, sqlDB); err != nil {
			_ = sqlDB.Close()
			return fmt.Errorf("run migrations: %w", err)
		}
	}
	a.DB = sqlDB
	a.onClose(sqlDB.Close)
	return nil
}

func needsVertex(cfg config.Config) bool {
	if cfg.GCPProject == "" {
		return false
	}
	if cfg.OCREnabled {
		return true
	}
	for _, p := range cfg.LLMProviders {
		if llm.ParseProviderID(p) == llm.ProviderVertex {
			return true
		}
	}
	return false
}

// buildGateway adds providers in configured order, skipping any that lack
// credentials or fail to initialize.
func buildGateway(cfg config.Config, genaiClient *genai.Client) *llm.Gateway {
	var providers []llm.Provider
	for _, name := range cfg.LLMProviders {
		p, err := buildProvider(cfg, name, genaiClient)
		if err != nil {
			telemetry.Warn("bootstrap.provider_skipped", map[string]any{"provider": name, "error": err.Error()})
			continue
		}
		providers = append(providers, p)
	}
	return llm.NewGateway(providers,
		llm.WithTimeout(cfg.LLMProviderTimeout),
		llm.WithRateLimit(cfg.LLMProviderRPS, cfg.LLMProviderBurst),
	)
}

func buildProvider(cfg config.Config, name string, genaiClient *genai.Client) (llm.Provider, error) {
	switch llm.ParseProviderID(name) {
	case llm.ProviderOpenAI:
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
			return nil, errors.New("OPENAI_API_KEY is empty")
		}
		return openai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)
	case llm.ProviderAnthropic:
		if strings.TrimSpace(cfg.AnthropicAPIKey) == "" {
			return nil, errors.New("ANTHROPIC_API_KEY is empty")
		}
		return anthropic.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel, cfg.AnthropicMaxTokens)
	case llm.ProviderVertex:
		if genaiClient == nil {
			return nil, errors.New("vertex client unavailable")
		}
		return vertex.New(genaiClient, cfg.VertexModel)
	case llm.ProviderOllama:
		return ollama.New(cfg.OllamaURL, cfg.OllamaModel)
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}

func providerNames(g *llm.Gateway) []string {
	ids := g.Providers()
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}

func embeddingKey(cfg config.Config) string {
	if cfg.EmbeddingProvider == "openai" {
		return cfg.OpenAIAPIKey
	}
	return ""
}

func embeddingBaseURL(cfg config.Config) string {
	switch cfg.EmbeddingProvider {
	case "openai":
		return cfg.OpenAIBaseURL
	case "ollama":
		return cfg.OllamaURL
	}
	return ""
}

func buildExtractor(cfg config.Config, genaiClient *genai.Client) *extract.Chain {
	var opts []extract.Option
	if cfg.OCREnabled && genaiClient != nil {
		rec, err := ocr.NewVertex(genaiClient, cfg.OCRModel, cfg.OCRConcurrency)
		if err != nil {
			telemetry.Warn("bootstrap.ocr_unavailable", map[string]any{"error": err.Error()})
		} else {
			opts = append(opts, extract.WithRecognizer(rec, cfg.OCRTimeout))
		}
	}
	return extract.NewChain(cfg.ExtractMinChar, opts...)
}

func (a *App) buildCollections(cfg config.Config) ([]knowledge.Collection, error) {
	names := cfg.KnowledgeCollections
	backend := cfg.KnowledgeBackend
	if backend == "postgres" && a.DB == nil {
		telemetry.Warn("bootstrap.knowledge_fallback", map[string]any{"backend": backend, "fallback": "memory"})
		backend = "memory"
	}

	out := make([]knowledge.Collection, 0, len(names))
	switch backend {
	case "postgres":
		for _, name := range names {
			out = append(out, knowledge.NewPGCollection(a.DB, name))
		}
	case "chromem":
		cdb, err := knowledge.OpenChromem(cfg.ChromemPath)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			coll, err := knowledge.NewChromemCollection(cdb, name, a.Embedder)
			if err != nil {
				return nil, err
			}
			out = append(out, coll)
		}
	default:
		for _, name := range names {
			out = append(out, knowledge.NewMemoryCollection(name, a.Embedder != nil))
		}
	}
	return out, nil
}

// buildLocations puts the upload store first, then the remaining configured
// read locations.
func (a *App) buildLocations(ctx context.Context, cfg config.Config) (*object.Locations, error) {
	order := []string{cfg.ObjectStoreType}
	for _, name := range cfg.ObjectLocations {
		if name != cfg.ObjectStoreType {
			order = append(order, name)
		}
	}

	stores := make([]object.ObjectStore, 0, len(order))
	for i, name := range order {
		store, err := a.buildStore(ctx, cfg, name)
		if err != nil {
			if i == 0 {
				return nil, fmt.Errorf("object store %s: %w", name, err)
			}
			telemetry.Warn("bootstrap.location_skipped", map[string]any{"location": name, "error": err.Error()})
			continue
		}
		stores = append(stores, store)
	}
	return object.NewLocations(stores...), nil
}

func (a *App) buildStore(ctx context.Context, cfg config.Config, name string) (object.ObjectStore, error) {
	switch name {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, errors.New("S3_BUCKET is empty")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	case "gcs":
		if strings.TrimSpace(cfg.GCSBucket) == "" {
			return nil, errors.New("GCS_BUCKET is empty")
		}
		store, err := gcsstore.New(ctx, cfg.GCSBucket, cfg.GCSPrefix)
		if err != nil {
			return nil, err
		}
		a.onClose(store.Close)
		return store, nil
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

// buildQueue uses SQS when configured. Otherwise jobs run in-process on a
// local queue drained by a single goroutine.
func (a *App) buildQueue(ctx context.Context, cfg config.Config) error {
	if strings.TrimSpace(cfg.SQSQueueURL) != "" {
		client, err := queue.NewSQSClient(ctx, cfg.SQSQueueURL, cfg.AWSRegion)
		if err != nil {
			return err
		}
		a.Queue = client
		return nil
	}

	local := queue.NewLocalClient(64)
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	go func() {
		defer close(done)
		local.Run(runCtx, a.Pipeline.ProcessJob)
	}()
	a.onClose(func() error {
		local.Close()
		cancel()
		<-done
		return nil
	})
	a.Queue = local
	return nil
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local", "test":
		return true
	default:
		return false
	}
}
