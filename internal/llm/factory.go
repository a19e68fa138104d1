package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/sqleval/sqleval/internal/config"
)

// NewBaseProvider constructs the vendor provider for a resolved model.
func NewBaseProvider(ctx context.Context, mc config.ModelConfig) (Provider, error) {
	switch mc.Provider {
	case config.ProviderOpenAI:
		return NewOpenAIProvider(mc.APIKey, mc.Model, mc.BaseURL)
	case config.ProviderAnthropic:
		return NewAnthropicProvider(mc.APIKey, mc.Model, mc.BaseURL)
	case config.ProviderGemini:
		return NewGeminiProvider(ctx, mc.APIKey, mc.Model)
	case config.ProviderOllama:
		return NewOllamaProvider(mc.BaseURL, mc.Model)
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownProvider, mc.Provider)
	}
}

// Wrap layers fault injection (when configured) and rate limiting with
// retries over base.
func Wrap(base Provider, jc config.JudgeConfig) (Provider, error) {
	p := base
	if jc.FaultRate > 0 {
		p = NewFaultInjector(p, FaultConfig{ErrorRate: jc.FaultRate})
	}

	rl := DefaultRateLimiterConfig()
	if jc.RequestsPerMinute > 0 {
		rl.RequestsPerMinute = jc.RequestsPerMinute
	}
	rl.MaxRetries = jc.MaxRetries
	if jc.TimeoutSeconds > 0 {
		rl.MaxBackoff = min(rl.MaxBackoff, time.Duration(jc.TimeoutSeconds)*time.Second)
	}
	return NewRateLimitedProvider(p, rl)
}

// New builds the fully wrapped judge provider from configuration.
func New(ctx context.Context, cfg *config.Config) (Provider, error) {
	base, err := NewBaseProvider(ctx, cfg.ModelConfig())
	if err != nil {
		return nil, err
	}
	return Wrap(base, cfg.Judge)
}
