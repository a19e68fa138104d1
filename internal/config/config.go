package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Provider identifies the LLM vendor serving the judge model.
type Provider string

const (
	ProviderGemini    Provider = "gemini"
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderOllama    Provider = "ollama"
)

// DefaultModel is used when EVAL_MODEL is unset.
const DefaultModel = "gemini-1.5-flash"

var (
	// ErrMissingCredential is returned when the selected provider has no API key.
	ErrMissingCredential = errors.New("missing credential")
	// ErrInvalidThreshold is returned for thresholds outside [0, 1].
	ErrInvalidThreshold = errors.New("invalid threshold")
	// ErrUnknownProvider is returned for an unrecognized provider name.
	ErrUnknownProvider = errors.New("unknown provider")
)

// Config holds all configuration for a harness run.
// Values come from an optional sqleval.yaml and .env, overridden by the
// process environment. Secrets are only read from the environment.
type Config struct {
	Model     string  `yaml:"model" env:"EVAL_MODEL" env-default:"gemini-1.5-flash"`
	Threshold float64 `yaml:"threshold" env:"EVAL_THRESHOLD" env-default:"0.7"`
	Verbose   bool    `yaml:"verbose" env:"EVAL_VERBOSE" env-default:"false"`
	LogLevel  string  `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`

	Credentials Credentials     `yaml:"-"`
	Ollama      OllamaConfig    `yaml:"ollama"`
	Data        DataConfig      `yaml:"data"`
	Judge       JudgeConfig     `yaml:"judge"`
	Cache       CacheConfig     `yaml:"cache"`
	Semantic    SemanticConfig  `yaml:"semantic"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
}

// Credentials holds provider API keys. Never loaded from YAML.
type Credentials struct {
	GeminiAPIKey    string `yaml:"-" env:"GEMINI_API_KEY"`
	AnthropicAPIKey string `yaml:"-" env:"ANTHROPIC_API_KEY"`
	OpenAIAPIKey    string `yaml:"-" env:"OPENAI_API_KEY"`
}

// OllamaConfig points at a local Ollama server.
type OllamaConfig struct {
	BaseURL string `yaml:"base_url" env:"OLLAMA_BASE_URL" env-default:"http://localhost:11434"`
	Model   string `yaml:"model" env:"OLLAMA_MODEL" env-default:"qwen2.5-coder:7b"`
}

// DataConfig locates the corpus files and run outputs.
// Empty corpus paths select the embedded datasets.
type DataConfig struct {
	SchemaPath   string `yaml:"schema_path" env:"EVAL_SCHEMA_PATH"`
	CasesPath    string `yaml:"cases_path" env:"EVAL_CASES_PATH"`
	GoldenPath   string `yaml:"golden_path" env:"EVAL_GOLDEN_PATH"`
	ResultsPath  string `yaml:"results_path" env:"EVAL_RESULTS_PATH" env-default:"evaluation_results.json"`
	MarkdownPath string `yaml:"markdown_path" env:"EVAL_MARKDOWN_PATH"`
}

// JudgeConfig tunes LLM judge calls.
type JudgeConfig struct {
	TimeoutSeconds    int     `yaml:"timeout_s" env:"JUDGE_TIMEOUT_S" env-default:"30"`
	MaxRetries        int     `yaml:"max_retries" env:"JUDGE_MAX_RETRIES" env-default:"2"`
	RequestsPerMinute int     `yaml:"requests_per_minute" env:"JUDGE_RPM" env-default:"60"`
	MetaEval          bool    `yaml:"meta_eval" env:"JUDGE_META_EVAL" env-default:"false"`
	FaultRate         float64 `yaml:"fault_rate" env:"JUDGE_FAULT_RATE" env-default:"0"`
}

// Timeout returns the per-call judge timeout.
func (j JudgeConfig) Timeout() time.Duration {
	if j.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(j.TimeoutSeconds) * time.Second
}

// CacheConfig configures the SQLite judge cache and score history.
type CacheConfig struct {
	Path           string `yaml:"path" env:"EVAL_CACHE_PATH"`
	EmbeddingMaxMB int    `yaml:"embedding_max_mb" env:"EVAL_EMBEDDING_CACHE_MAX_MB" env-default:"100"`
}

// SemanticConfig enables embedding-based context recall.
type SemanticConfig struct {
	Enabled        bool   `yaml:"enabled" env:"EVAL_SEMANTIC_CONTEXT" env-default:"false"`
	EmbeddingModel string `yaml:"embedding_model" env:"EMBEDDING_MODEL" env-default:"text-embedding-3-small"`
}

// TelemetryConfig configures tracing and metrics output.
type TelemetryConfig struct {
	ProjectID        string `yaml:"project_id" env:"EVAL_PROJECT_ID" env-default:"sql-agent-eval"`
	ObservabilityKey string `yaml:"-" env:"EVAL_OBSERVABILITY_KEY"`
	OTLPEndpoint     string `yaml:"otlp_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	MetricsFile      string `yaml:"metrics_file" env:"EVAL_METRICS_FILE"`
}

// ModelConfig is the resolved judge model selection.
type ModelConfig struct {
	Model    string
	Provider Provider
	APIKey   string
	BaseURL  string
}

// Default file names tried by Load when no path is given.
const (
	DefaultConfigFile = "sqleval.yaml"
	DefaultEnvFile    = ".env"
)

// Load reads configuration. path may name a YAML or .env file; when empty,
// sqleval.yaml and .env in the working directory are read if present.
// Environment variables always win.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	var files []string
	if path != "" {
		files = append(files, path)
	} else {
		for _, f := range []string{DefaultEnvFile, DefaultConfigFile} {
			if _, err := os.Stat(f); err == nil {
				files = append(files, f)
			}
		}
	}

	if len(files) == 0 {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("read environment: %w", err)
		}
	}
	for _, f := range files {
		if err := cleanenv.ReadConfig(f, cfg); err != nil {
			return nil, fmt.Errorf("read %s: %w", f, err)
		}
	}

	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	return cfg, nil
}

// ProviderFor maps a model name to its provider by prefix.
// Unrecognized names fall back to Gemini.
func ProviderFor(model string) Provider {
	m := strings.ToLower(strings.TrimSpace(model))
	switch {
	case m == "ollama" || strings.HasPrefix(m, "ollama/"):
		return ProviderOllama
	case strings.HasPrefix(m, "gemini"):
		return ProviderGemini
	case strings.HasPrefix(m, "claude"):
		return ProviderAnthropic
	case strings.HasPrefix(m, "gpt"), strings.HasPrefix(m, "o1"), strings.HasPrefix(m, "o3"), strings.HasPrefix(m, "o4"):
		return ProviderOpenAI
	default:
		return ProviderGemini
	}
}

// ParseProvider validates a provider name.
func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(s)); p {
	case ProviderGemini, ProviderAnthropic, ProviderOpenAI, ProviderOllama:
		return p, nil
	case "claude":
		return ProviderAnthropic, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, s)
	}
}

// CredentialEnv returns the environment variable holding the provider key,
// or "" when the provider needs none.
func CredentialEnv(p Provider) string {
	switch p {
	case ProviderGemini:
		return "GEMINI_API_KEY"
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	default:
		return ""
	}
}

// SetModel overrides the configured model, as done by the --model flag.
func (c *Config) SetModel(model string) {
	if m := strings.TrimSpace(model); m != "" {
		c.Model = m
	}
}

// Provider returns the provider serving the configured model.
func (c *Config) Provider() Provider {
	return ProviderFor(c.Model)
}

// apiKey returns the configured key for p.
func (c *Config) apiKey(p Provider) string {
	switch p {
	case ProviderGemini:
		return c.Credentials.GeminiAPIKey
	case ProviderAnthropic:
		return c.Credentials.AnthropicAPIKey
	case ProviderOpenAI:
		return c.Credentials.OpenAIAPIKey
	default:
		return ""
	}
}

// Validate checks the threshold and that the selected provider's credential is set.
func (c *Config) Validate() error {
	if c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("%w: %v is outside [0, 1]", ErrInvalidThreshold, c.Threshold)
	}
	if c.Judge.FaultRate < 0 || c.Judge.FaultRate > 1 {
		return fmt.Errorf("invalid JUDGE_FAULT_RATE %v: must be within [0, 1]", c.Judge.FaultRate)
	}
	if c.Judge.MaxRetries < 0 {
		return fmt.Errorf("invalid JUDGE_MAX_RETRIES %d: must be >= 0", c.Judge.MaxRetries)
	}

	p := c.Provider()
	env := CredentialEnv(p)
	if env != "" && strings.TrimSpace(c.apiKey(p)) == "" {
		return fmt.Errorf("%w: %s is required for model %q (provider %s)", ErrMissingCredential, env, c.Model, p)
	}
	return nil
}

// ModelConfig resolves the model name, provider, key and endpoint.
// An "ollama/" prefix is stripped; bare "ollama" selects OLLAMA_MODEL.
func (c *Config) ModelConfig() ModelConfig {
	p := c.Provider()
	mc := ModelConfig{Model: c.Model, Provider: p, APIKey: c.apiKey(p)}
	if p == ProviderOllama {
		name := strings.TrimPrefix(c.Model, "ollama/")
		if name == "" || strings.EqualFold(name, "ollama") {
			name = c.Ollama.Model
		}
		mc.Model = name
		mc.BaseURL = strings.TrimRight(c.Ollama.BaseURL, "/")
	}
	return mc
}

// Masked returns a copy of the configuration safe for display.
func (c *Config) Masked() Config {
	out := *c
	out.Credentials = Credentials{
		GeminiAPIKey:    mask(c.Credentials.GeminiAPIKey),
		AnthropicAPIKey: mask(c.Credentials.AnthropicAPIKey),
		OpenAIAPIKey:    mask(c.Credentials.OpenAIAPIKey),
	}
	out.Telemetry.ObservabilityKey = mask(c.Telemetry.ObservabilityKey)
	return out
}

func mask(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 8:
		return "****"
	default:
		return s[:4] + "****" + s[len(s)-4:]
	}
}
