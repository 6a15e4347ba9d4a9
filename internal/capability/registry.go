package capability

import (
	"fmt"
	"sort"
)

// Registry maps each variant to the provider that serves it. It is built at
// startup and read concurrently afterwards.
type Registry struct {
	providers map[Variant]Provider
}

func NewRegistry(providers ...Provider) (*Registry, error) {
	r := &Registry{providers: make(map[Variant]Provider, len(providers))}
	for _, p := range providers {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds p under its variant.
func (r *Registry) Register(p Provider) error {
	v := p.Variant()
	if !v.IsValid() {
		return fmt.Errorf("provider %s: unknown variant %q", p.ID(), v)
	}
	if _, exists := r.providers[v]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateVariant, v)
	}
	r.providers[v] = p
	return nil
}

// Get returns the provider for v.
func (r *Registry) Get(v Variant) (Provider, error) {
	p, ok := r.providers[v]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, v)
	}
	return p, nil
}

// Variants lists the registered variants, sorted.
func (r *Registry) Variants() []Variant {
	out := make([]Variant, 0, len(r.providers))
	for v := range r.providers {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Missing returns the variants in want that have no provider.
func (r *Registry) Missing(want ...Variant) []Variant {
	var out []Variant
	for _, v := range want {
		if _, ok := r.providers[v]; !ok {
			out = append(out, v)
		}
	}
	return out
}
