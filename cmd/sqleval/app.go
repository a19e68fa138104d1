package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/sqleval/sqleval/internal/cache"
	"github.com/sqleval/sqleval/internal/config"
	"github.com/sqleval/sqleval/internal/corpus"
	"github.com/sqleval/sqleval/internal/evaluator"
	"github.com/sqleval/sqleval/internal/evaluator/embedding"
	"github.com/sqleval/sqleval/internal/evaluator/judge"
	"github.com/sqleval/sqleval/internal/llm"
	"github.com/sqleval/sqleval/internal/telemetry"
	"github.com/sqleval/sqleval/pkg/types"
)

// app holds everything a command needs after configuration is resolved.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	corpus   *corpus.Corpus
	provider llm.Provider
	store    *cache.Store
	tracer   *telemetry.Tracer
	metrics  *telemetry.Metrics
	closers  []func() error
}

type setupOptions struct {
	configPath string
	model      string
	cachePath  string
	verbose    bool
	// needJudge builds the judge provider; benchmark runs skip it.
	needJudge bool
}

// newLogger builds the root logger. Logs always go to stderr.
func newLogger(level string, verbose bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if verbose {
		zc = zap.NewDevelopmentConfig()
	}
	lvl, err := zap.ParseAtomicLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
	}
	if verbose && lvl.Level() > zap.DebugLevel {
		lvl = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	zc.Level = lvl
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	return zc.Build()
}

// setup resolves configuration, the corpus and the shared infrastructure.
// Every error it returns is a configuration error.
func setup(ctx context.Context, opts setupOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, configError(err)
	}
	cfg.SetModel(opts.model)
	if opts.cachePath != "" {
		cfg.Cache.Path = opts.cachePath
	}
	if err := cfg.Validate(); err != nil {
		return nil, configError(fmt.Errorf("%w\nset the key in the environment or a .env file, or run 'sqleval models' for alternatives", err))
	}

	logger, err := newLogger(cfg.LogLevel, opts.verbose || cfg.Verbose)
	if err != nil {
		return nil, configError(err)
	}
	a := &app{cfg: cfg, logger: logger}
	a.closers = append(a.closers, func() error { _ = logger.Sync(); return nil })

	a.corpus, err = corpus.Load(corpus.Options{
		SchemaPath: cfg.Data.SchemaPath,
		CasesPath:  cfg.Data.CasesPath,
		GoldenPath: cfg.Data.GoldenPath,
	})
	if err != nil {
		a.close()
		return nil, configError(err)
	}
	fields := []zap.Field{zap.Int("cases", a.corpus.Len()), zap.Int("tables", len(a.corpus.Schema().Tables))}
	counts := a.corpus.Counts()
	for _, d := range types.Difficulties {
		fields = append(fields, zap.Int(string(d), counts[d]))
	}
	logger.Info("corpus loaded", fields...)

	if opts.needJudge {
		a.provider, err = llm.New(ctx, cfg)
		if err != nil {
			a.close()
			return nil, configError(fmt.Errorf("create judge provider: %w", err))
		}
		logger.Info("judge model selected", zap.String("model", cfg.Model), zap.String("provider", string(cfg.Provider())))
	}

	if cfg.Cache.Path != "" {
		if dir := filepath.Dir(cfg.Cache.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				a.close()
				return nil, configError(fmt.Errorf("create cache dir: %w", err))
			}
		}
		a.store, err = cache.Open(cfg.Cache.Path, cache.Options{EmbeddingMaxMB: cfg.Cache.EmbeddingMaxMB})
		if err != nil {
			a.close()
			return nil, configError(err)
		}
		a.closers = append(a.closers, a.store.Close)
	}

	tc := cfg.Telemetry
	endpoint, insecure := otlpEndpoint(tc.OTLPEndpoint)
	tracer, shutdown, err := telemetry.NewTracer(ctx, telemetry.TraceConfig{
		ServiceName:    "sqleval",
		ServiceVersion: version,
		ProjectID:      tc.ProjectID,
		Endpoint:       endpoint,
		APIKey:         tc.ObservabilityKey,
		Insecure:       insecure,
	})
	if err != nil {
		logger.Warn("tracing disabled", zap.Error(err))
	} else {
		a.tracer = tracer
		a.closers = append(a.closers, func() error { return shutdown(context.Background()) })
	}
	if tc.MetricsFile != "" {
		a.metrics = telemetry.NewMetrics()
	}
	return a, nil
}

// otlpEndpoint strips a URL scheme from endpoint; plain http selects an
// insecure connection.
func otlpEndpoint(endpoint string) (string, bool) {
	switch {
	case strings.HasPrefix(endpoint, "http://"):
		return strings.TrimPrefix(endpoint, "http://"), true
	case strings.HasPrefix(endpoint, "https://"):
		return strings.TrimPrefix(endpoint, "https://"), false
	default:
		return endpoint, false
	}
}

// registry builds the evaluators from configuration.
func (a *app) registry() *evaluator.Registry {
	opts := []evaluator.RegistryOption{
		evaluator.WithThreshold(a.cfg.Threshold),
		evaluator.WithJudgeTimeout(a.cfg.Judge.Timeout()),
		evaluator.WithMetaEval(a.cfg.Judge.MetaEval),
		evaluator.WithLogger(a.logger.Named("evaluator")),
	}
	if a.provider != nil {
		var jc *cache.JudgeCache
		if a.store != nil {
			jc = a.store.Judge
		}
		opts = append(opts, evaluator.WithJudge(a.provider, judge.NewRubricRegistry(), jc))
	}
	if a.cfg.Semantic.Enabled {
		if e, err := a.embedder(); err != nil {
			a.logger.Warn("semantic context recall disabled", zap.Error(err))
		} else {
			var ec *cache.EmbeddingCache
			if a.store != nil {
				ec = a.store.Embeddings
			}
			opts = append(opts, evaluator.WithEmbedding(e, ec))
			a.logger.Info("semantic context recall enabled", zap.String("model", e.Model()))
		}
	}
	return evaluator.NewRegistry(opts...)
}

// embedder prefers OpenAI embeddings and falls back to a local Ollama server
// when the judge runs there.
func (a *app) embedder() (embedding.Embedder, error) {
	cfg := a.cfg
	switch {
	case cfg.Credentials.OpenAIAPIKey != "":
		return embedding.New(embedding.EmbedderConfig{
			Provider: "openai",
			Model:    cfg.Semantic.EmbeddingModel,
			APIKey:   cfg.Credentials.OpenAIAPIKey,
		})
	case cfg.Provider() == config.ProviderOllama:
		return embedding.New(embedding.EmbedderConfig{
			Provider: "ollama",
			Model:    cfg.Semantic.EmbeddingModel,
			BaseURL:  strings.TrimRight(cfg.Ollama.BaseURL, "/"),
		})
	default:
		return nil, errors.New("EVAL_SEMANTIC_CONTEXT needs OPENAI_API_KEY or an Ollama judge")
	}
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && a.logger != nil {
			a.logger.Debug("close", zap.Error(err))
		}
	}
	a.closers = nil
}
