package capability

import (
	"context"
	"errors"
	"time"
)

// DefaultTimeout bounds one provider call when no timeout is configured.
const DefaultTimeout = 3 * time.Second

// DefaultThreshold is the score above which a variant is flagged.
const DefaultThreshold = 0.5

// Invoke calls p under its own deadline and normalizes every failure into a
// *ProviderError. A response that breaks the contract is reported as bad_data.
func Invoke(ctx context.Context, p Provider, req Request, timeout time.Duration) (*Response, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := p.Analyze(callCtx, req)
	if err != nil {
		var pe *ProviderError
		switch {
		case errors.As(err, &pe):
			return nil, pe
		case errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded):
			return nil, NewProviderError(ErrorTimeout, p.ID(), "deadline exceeded", err)
		default:
			return nil, NewProviderError(ErrorUnavailable, p.ID(), "analysis failed", err)
		}
	}
	if callCtx.Err() != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return nil, NewProviderError(ErrorTimeout, p.ID(), "answered after deadline", callCtx.Err())
	}
	if err := resp.Validate(); err != nil {
		return nil, NewProviderError(ErrorBadData, p.ID(), "response violates contract", err)
	}
	out := resp.Normalized()
	return &out, nil
}

// Thresholds holds per-variant flag thresholds.
type Thresholds map[Variant]float64

// Flag reports whether score exceeds the threshold for v.
func (t Thresholds) Flag(v Variant, score float64) bool {
	threshold, ok := t[v]
	if !ok {
		threshold = DefaultThreshold
	}
	return score > threshold
}
