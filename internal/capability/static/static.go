// Package static provides a deterministic in-process provider for local
// development and tests. It returns a configured response (optionally per
// media reference), fails with a configured error, or stalls for a delay.
package static

import (
	"context"
	"sync/atomic"
	"time"

	"kycgate/internal/capability"
)

type Provider struct {
	id       string
	variant  capability.Variant
	response capability.Response
	byRef    map[string]capability.Response
	err      error
	delay    time.Duration
	calls    atomic.Int64
}

type Option func(*Provider)

// WithResponse sets the default response.
func WithResponse(resp capability.Response) Option {
	return func(p *Provider) { p.response = resp }
}

// WithScore is shorthand for a response with the given score and full confidence.
func WithScore(score float64) Option {
	return func(p *Provider) {
		p.response = capability.Response{Score: score, Confidence: 1}
	}
}

// WithResponseFor returns resp when the request's media reference is ref.
func WithResponseFor(ref string, resp capability.Response) Option {
	return func(p *Provider) { p.byRef[ref] = resp }
}

// WithError makes every call fail with err.
func WithError(err error) Option {
	return func(p *Provider) { p.err = err }
}

// WithDelay stalls each call, honoring cancellation.
func WithDelay(d time.Duration) Option {
	return func(p *Provider) { p.delay = d }
}

// New builds a provider that scores everything clean unless configured.
func New(id string, variant capability.Variant, opts ...Option) *Provider {
	p := &Provider{
		id:       id,
		variant:  variant,
		response: capability.Response{Score: 0, Confidence: 1},
		byRef:    make(map[string]capability.Response),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) ID() string                  { return p.id }
func (p *Provider) Variant() capability.Variant { return p.variant }

// Calls reports how many times Analyze ran.
func (p *Provider) Calls() int64 { return p.calls.Load() }

func (p *Provider) Analyze(ctx context.Context, req capability.Request) (*capability.Response, error) {
	p.calls.Add(1)
	if p.delay > 0 {
		timer := time.NewTimer(p.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, capability.NewProviderError(capability.ErrorTimeout, p.id, "analysis interrupted", ctx.Err())
		case <-timer.C:
		}
	}
	if p.err != nil {
		return nil, p.err
	}
	resp := p.response
	if r, ok := p.byRef[req.MediaRef]; ok {
		resp = r
	}
	resp = resp.Normalized()
	return &resp, nil
}

// Defaults returns one clean provider per variant, used when no detector
// endpoints are configured.
func Defaults() []capability.Provider {
	variants := capability.AllVariants()
	out := make([]capability.Provider, 0, len(variants))
	for _, v := range variants {
		out = append(out, New("static-"+string(v), v))
	}
	return out
}
