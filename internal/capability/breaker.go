package capability

import (
	"context"
	"errors"
	"log/slog"

	"kycgate/pkg/platform/circuit"
)

// breakerProvider fails fast with ErrorUnavailable while its breaker is open,
// so a dead detector costs a degraded check instead of a full timeout.
type breakerProvider struct {
	Provider
	breaker *circuit.Breaker
	logger  *slog.Logger
}

// WithBreaker wraps p. Calls cancelled by the caller are not counted.
func WithBreaker(p Provider, b *circuit.Breaker, logger *slog.Logger) Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &breakerProvider{Provider: p, breaker: b, logger: logger}
}

func (p *breakerProvider) Analyze(ctx context.Context, req Request) (*Response, error) {
	if !p.breaker.Allow() {
		return nil, NewProviderError(ErrorUnavailable, p.ID(), "circuit open", nil)
	}
	resp, err := p.Provider.Analyze(ctx, req)
	switch {
	case err == nil:
		if _, change := p.breaker.RecordSuccess(); change.Closed {
			p.logger.InfoContext(ctx, "detector circuit closed", "provider", p.ID(), "variant", p.Variant())
		}
	case errors.Is(ctx.Err(), context.Canceled):
	default:
		if _, change := p.breaker.RecordFailure(); change.Opened {
			p.logger.WarnContext(ctx, "detector circuit opened", "provider", p.ID(), "variant", p.Variant(), "error", err)
		}
	}
	return resp, err
}
