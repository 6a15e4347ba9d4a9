// Package httpprovider adapts a remote inference endpoint speaking JSON over
// HTTP to the capability.Provider contract.
package httpprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"kycgate/internal/capability"
)

// maxResponseBytes caps how much of a detector reply is read.
const maxResponseBytes = 64 << 10

// Provider posts a capability.Request to URL and decodes a capability.Response.
type Provider struct {
	id      string
	variant capability.Variant
	url     string
	apiKey  string
	client  *http.Client
}

type Option func(*Provider)

// WithHTTPClient overrides the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// WithAPIKey sends key in the X-API-Key header.
func WithAPIKey(key string) Option {
	return func(p *Provider) { p.apiKey = key }
}

func New(id string, variant capability.Variant, url string, opts ...Option) *Provider {
	p := &Provider{
		id:      id,
		variant: variant,
		url:     url,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) ID() string                  { return p.id }
func (p *Provider) Variant() capability.Variant { return p.variant }

func (p *Provider) Analyze(ctx context.Context, req capability.Request) (*capability.Response, error) {
	req.Variant = p.variant
	body, err := json.Marshal(req)
	if err != nil {
		return nil, capability.NewProviderError(capability.ErrorBadData, p.id, "encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return nil, capability.NewProviderError(capability.ErrorUnavailable, p.id, "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("X-API-Key", p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, capability.NewProviderError(capability.ErrorTimeout, p.id, "request timed out", err)
		}
		return nil, capability.NewProviderError(capability.ErrorUnavailable, p.id, "request failed", err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(p.id, resp.StatusCode); err != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, err
	}

	var out capability.Response
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		return nil, capability.NewProviderError(capability.ErrorBadData, p.id, "decode response", err)
	}
	if err := out.Validate(); err != nil {
		return nil, capability.NewProviderError(capability.ErrorBadData, p.id, "response violates contract", err)
	}
	return &out, nil
}

func classifyStatus(providerID string, status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusGatewayTimeout || status == http.StatusRequestTimeout:
		return capability.NewProviderError(capability.ErrorTimeout, providerID,
			fmt.Sprintf("upstream status %d", status), nil)
	case status == http.StatusTooManyRequests || status >= 500:
		return capability.NewProviderError(capability.ErrorUnavailable, providerID,
			fmt.Sprintf("upstream status %d", status), nil)
	default:
		return capability.NewProviderError(capability.ErrorBadData, providerID,
			fmt.Sprintf("upstream rejected request with status %d", status), nil)
	}
}
