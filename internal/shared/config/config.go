package config

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Port            string
	CORSAllowOrigin []string
	Env             string
	LogLevel        string
	LogFormat       string
	DatabaseURL     string

	ObjectStoreType string
	ObjectLocations []string
	LocalStoreDir   string
	AWSRegion       string
	S3Bucket        string
	S3Prefix        string
	SSEKMSKeyID     string
	GCSBucket       string
	GCSPrefix       string
	GCPProject      string
	GCPRegion       string

	LLMProviders        []string
	LLMProviderTimeout  time.Duration
	LLMProviderRPS      float64
	LLMProviderBurst    int
	OpenAIAPIKey        string
	OpenAIModel         string
	OpenAIBaseURL       string
	AnthropicAPIKey     string
	AnthropicModel      string
	AnthropicMaxTokens  int
	VertexModel         string
	OllamaURL           string
	OllamaModel         string
	EmbeddingProvider   string
	EmbeddingModel      string
	EmbeddingTimeout    time.Duration
	AnalysisMaxTextRune int
	SnippetRunes        int

	OCREnabled     bool
	OCRModel       string
	OCRTimeout     time.Duration
	OCRConcurrency int
	ExtractMinChar int

	ClassifyK         int
	ClassifyThreshold float64
	ClassifySample    int
	ClassifyTimeout   time.Duration
	ClassifyInferTO   time.Duration

	KnowledgeBackend     string
	KnowledgeCollections []string
	KnowledgeSample      int
	KnowledgeTopK        int
	KnowledgeMaxKeywords int
	KnowledgeTimeout     time.Duration
	ChromemPath          string
	WebSearchEnabled     bool
	WebSearchURL         string
	WebSearchTimeout     time.Duration

	VocabFile string

	SQSQueueURL       string
	WorkerConcurrency int
}

// Load reads configuration from environment variables with sensible defaults.
// An optional YAML file named by CONFIG_FILE overrides the defaults; env vars win over both.
func Load() Config {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file path.
func LoadFile(path string) Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = strings.TrimSpace(v.GetString("CONFIG_FILE"))
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				log.Printf("config file %s ignored: %v", path, err)
			}
		}
	}

	env := normalizeEnv(v.GetString("ENV"))
	dbURL := strings.TrimSpace(v.GetString("DATABASE_URL"))
	if env == "production" && dbURL == "" {
		log.Printf("DATABASE_URL is required in production")
	}

	return Config{
		Port:            v.GetString("PORT"),
		CORSAllowOrigin: splitAndTrim(v.GetString("CORS_ALLOW_ORIGINS")),
		Env:             env,
		LogLevel:        v.GetString("LOG_LEVEL"),
		LogFormat:       v.GetString("LOG_FORMAT"),
		DatabaseURL:     dbURL,

		ObjectStoreType: normalizeStoreType(v.GetString("OBJECT_STORE")),
		ObjectLocations: normalizeLocations(splitAndTrim(v.GetString("OBJECT_LOCATIONS"))),
		LocalStoreDir:   v.GetString("LOCAL_STORE_DIR"),
		AWSRegion:       v.GetString("AWS_REGION"),
		S3Bucket:        v.GetString("S3_BUCKET"),
		S3Prefix:        v.GetString("S3_PREFIX"),
		SSEKMSKeyID:     v.GetString("SSE_KMS_KEY_ID"),
		GCSBucket:       v.GetString("GCS_BUCKET"),
		GCSPrefix:       v.GetString("GCS_PREFIX"),
		GCPProject:      v.GetString("GCP_PROJECT"),
		GCPRegion:       v.GetString("GCP_REGION"),

		LLMProviders:        lowerAll(splitAndTrim(v.GetString("LLM_PROVIDERS"))),
		LLMProviderTimeout:  v.GetDuration("LLM_PROVIDER_TIMEOUT"),
		LLMProviderRPS:      v.GetFloat64("LLM_PROVIDER_RPS"),
		LLMProviderBurst:    v.GetInt("LLM_PROVIDER_BURST"),
		OpenAIAPIKey:        v.GetString("OPENAI_API_KEY"),
		OpenAIModel:         v.GetString("OPENAI_MODEL"),
		OpenAIBaseURL:       v.GetString("OPENAI_BASE_URL"),
		AnthropicAPIKey:     v.GetString("ANTHROPIC_API_KEY"),
		AnthropicModel:      v.GetString("ANTHROPIC_MODEL"),
		AnthropicMaxTokens:  v.GetInt("ANTHROPIC_MAX_TOKENS"),
		VertexModel:         v.GetString("VERTEX_MODEL"),
		OllamaURL:           v.GetString("OLLAMA_URL"),
		OllamaModel:         v.GetString("OLLAMA_MODEL"),
		EmbeddingProvider:   strings.ToLower(strings.TrimSpace(v.GetString("EMBEDDING_PROVIDER"))),
		EmbeddingModel:      v.GetString("EMBEDDING_MODEL"),
		EmbeddingTimeout:    v.GetDuration("EMBEDDING_TIMEOUT"),
		AnalysisMaxTextRune: v.GetInt("ANALYSIS_MAX_TEXT_RUNES"),
		SnippetRunes:        v.GetInt("ANALYSIS_SNIPPET_RUNES"),

		OCREnabled:     v.GetBool("OCR_ENABLED"),
		OCRModel:       v.GetString("OCR_MODEL"),
		OCRTimeout:     v.GetDuration("OCR_TIMEOUT"),
		OCRConcurrency: v.GetInt("OCR_CONCURRENCY"),
		ExtractMinChar: v.GetInt("EXTRACT_MIN_CHARS"),

		ClassifyK:         v.GetInt("CLASSIFY_K"),
		ClassifyThreshold: v.GetFloat64("CLASSIFY_THRESHOLD"),
		ClassifySample:    capInt(v.GetInt("CLASSIFY_SAMPLE"), 500),
		ClassifyTimeout:   v.GetDuration("CLASSIFY_TIMEOUT"),
		ClassifyInferTO:   v.GetDuration("CLASSIFY_INFERENCE_TIMEOUT"),

		KnowledgeBackend:     normalizeKnowledgeBackend(v.GetString("KNOWLEDGE_BACKEND")),
		KnowledgeCollections: splitAndTrim(v.GetString("KNOWLEDGE_COLLECTIONS")),
		KnowledgeSample:      capInt(v.GetInt("KNOWLEDGE_SAMPLE"), 200),
		KnowledgeTopK:        v.GetInt("KNOWLEDGE_TOP_K"),
		KnowledgeMaxKeywords: v.GetInt("KNOWLEDGE_MAX_KEYWORDS"),
		KnowledgeTimeout:     v.GetDuration("KNOWLEDGE_TIMEOUT"),
		ChromemPath:          v.GetString("CHROMEM_PATH"),
		WebSearchEnabled:     v.GetBool("WEB_SEARCH_ENABLED"),
		WebSearchURL:         v.GetString("WEB_SEARCH_URL"),
		WebSearchTimeout:     v.GetDuration("WEB_SEARCH_TIMEOUT"),

		VocabFile: v.GetString("VOCAB_FILE"),

		SQSQueueURL:       v.GetString("SQS_QUEUE_URL"),
		WorkerConcurrency: v.GetInt("WORKER_CONCURRENCY"),
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("CORS_ALLOW_ORIGINS", "http://localhost:5173")
	v.SetDefault("ENV", "dev")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("OBJECT_STORE", "local")
	v.SetDefault("OBJECT_LOCATIONS", "local")
	v.SetDefault("LOCAL_STORE_DIR", "./data")
	v.SetDefault("GCP_REGION", "us-central1")

	v.SetDefault("LLM_PROVIDERS", "openai,anthropic,vertex,ollama")
	v.SetDefault("LLM_PROVIDER_TIMEOUT", "60s")
	v.SetDefault("LLM_PROVIDER_RPS", 0)
	v.SetDefault("LLM_PROVIDER_BURST", 1)
	v.SetDefault("OPENAI_MODEL", "gpt-4o-mini")
	v.SetDefault("ANTHROPIC_MODEL", "claude-3-5-haiku-latest")
	v.SetDefault("ANTHROPIC_MAX_TOKENS", 4096)
	v.SetDefault("VERTEX_MODEL", "gemini-1.5-flash")
	v.SetDefault("OLLAMA_URL", "http://localhost:11434")
	v.SetDefault("OLLAMA_MODEL", "llama3.1")
	v.SetDefault("EMBEDDING_PROVIDER", "openai")
	v.SetDefault("EMBEDDING_MODEL", "text-embedding-3-small")
	v.SetDefault("EMBEDDING_TIMEOUT", "20s")
	v.SetDefault("ANALYSIS_MAX_TEXT_RUNES", 60000)
	v.SetDefault("ANALYSIS_SNIPPET_RUNES", 500)

	v.SetDefault("OCR_ENABLED", true)
	v.SetDefault("OCR_MODEL", "gemini-1.5-pro")
	v.SetDefault("OCR_TIMEOUT", "120s")
	v.SetDefault("OCR_CONCURRENCY", 4)
	v.SetDefault("EXTRACT_MIN_CHARS", 100)

	v.SetDefault("CLASSIFY_K", 5)
	v.SetDefault("CLASSIFY_THRESHOLD", 0.7)
	v.SetDefault("CLASSIFY_SAMPLE", 500)
	v.SetDefault("CLASSIFY_TIMEOUT", "10s")
	v.SetDefault("CLASSIFY_INFERENCE_TIMEOUT", "3m")

	v.SetDefault("KNOWLEDGE_BACKEND", "postgres")
	v.SetDefault("KNOWLEDGE_COLLECTIONS", "fcra_knowledge,general_knowledge")
	v.SetDefault("KNOWLEDGE_SAMPLE", 200)
	v.SetDefault("KNOWLEDGE_TOP_K", 5)
	v.SetDefault("KNOWLEDGE_MAX_KEYWORDS", 3)
	v.SetDefault("KNOWLEDGE_TIMEOUT", "15s")
	v.SetDefault("CHROMEM_PATH", "./data/chromem")
	v.SetDefault("WEB_SEARCH_ENABLED", true)
	v.SetDefault("WEB_SEARCH_URL", "https://html.duckduckgo.com/html/")
	v.SetDefault("WEB_SEARCH_TIMEOUT", "15s")

	v.SetDefault("WORKER_CONCURRENCY", 4)
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.ToLower(s))
	}
	return out
}

func capInt(v, limit int) int {
	if v <= 0 || v > limit {
		return limit
	}
	return v
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "development", "dev":
		return "dev"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	case "gcs":
		return "gcs"
	default:
		return "local"
	}
}

func normalizeLocations(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		loc := normalizeStoreType(r)
		if seen[loc] {
			continue
		}
		seen[loc] = true
		out = append(out, loc)
	}
	if len(out) == 0 {
		out = append(out, "local")
	}
	return out
}

func normalizeKnowledgeBackend(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "chromem":
		return "chromem"
	case "memory":
		return "memory"
	default:
		return "postgres"
	}
}
