package llm

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig bounds request throughput and controls retry backoff.
type RateLimiterConfig struct {
	RequestsPerMinute int
	Burst             int
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	// JitterFactor spreads each backoff by +/- that fraction. Zero disables jitter.
	JitterFactor float64
}

// DefaultRateLimiterConfig returns 60 rpm, burst 5 and two retries.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerMinute: 60,
		Burst:             5,
		MaxRetries:        2,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		JitterFactor:      0.1,
	}
}

// RateLimitedProvider wraps a Provider with a token bucket and retries
// retryable failures with exponential backoff.
type RateLimitedProvider struct {
	inner   Provider
	limiter *rate.Limiter
	cfg     RateLimiterConfig
}

// NewRateLimitedProvider validates cfg and wraps inner.
func NewRateLimitedProvider(inner Provider, cfg RateLimiterConfig) (*RateLimitedProvider, error) {
	if inner == nil {
		return nil, fmt.Errorf("rate limiter: inner provider is nil")
	}
	if cfg.RequestsPerMinute <= 0 {
		return nil, fmt.Errorf("rate limiter: RequestsPerMinute must be > 0, got %d", cfg.RequestsPerMinute)
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("rate limiter: MaxRetries must be >= 0, got %d", cfg.MaxRetries)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}

	perSecond := rate.Limit(float64(cfg.RequestsPerMinute) / 60.0)
	return &RateLimitedProvider{
		inner:   inner,
		limiter: rate.NewLimiter(perSecond, cfg.Burst),
		cfg:     cfg,
	}, nil
}

func (p *RateLimitedProvider) Name() string         { return p.inner.Name() }
func (p *RateLimitedProvider) DefaultModel() string { return p.inner.DefaultModel() }

// Complete waits for a token, calls the inner provider and retries retryable
// errors up to MaxRetries times. Every attempt consumes a token.
func (p *RateLimitedProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	backoff := p.cfg.InitialBackoff
	var lastErr error

	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if err := p.limiter.Wait(ctx); err != nil {
			if lastErr != nil {
				return nil, fmt.Errorf("rate limiter wait: %w (last error: %v)", err, lastErr)
			}
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}

		resp, err := p.inner.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !IsRetryable(err) || attempt == p.cfg.MaxRetries {
			break
		}

		select {
		case <-time.After(jitter(backoff, p.cfg.JitterFactor)):
		case <-ctx.Done():
			return nil, fmt.Errorf("retry canceled: %w (last error: %v)", ctx.Err(), lastErr)
		}
		backoff *= 2
		if backoff > p.cfg.MaxBackoff {
			backoff = p.cfg.MaxBackoff
		}
	}

	return nil, lastErr
}

func jitter(d time.Duration, factor float64) time.Duration {
	if factor <= 0 {
		return d
	}
	delta := float64(d) * factor * (rand.Float64()*2 - 1) //nolint:gosec
	return time.Duration(float64(d) + delta)
}
