package billing

import (
	"fmt"

	"github.com/kjellgren/kasse/internal/domain"
)

// Registry routes an order's configured payment provider to the adapter
// that accepts it. Adapters are registered once at startup from
// configuration; resolution is a pure scan over the capability predicates.
type Registry struct {
	providers []Provider
}

// NewRegistry creates a registry over the given adapters.
func NewRegistry(providers ...Provider) *Registry {
	return &Registry{providers: providers}
}

// Register adds an adapter. Startup-time only; the registry is read-only
// once resolution begins.
func (r *Registry) Register(p Provider) {
	r.providers = append(r.providers, p)
}

// Resolve returns the unique adapter accepting the given payment provider.
// Zero or multiple matches is a configuration error and fails loudly rather
// than picking one arbitrarily.
func (r *Registry) Resolve(provider domain.PaymentProvider) (Provider, error) {
	var match Provider
	for _, p := range r.providers {
		if !p.AcceptPaymentProvider(provider) {
			continue
		}
		if match != nil {
			return nil, &domain.Error{
				Code:    domain.EINTERNAL,
				Op:      "billing.resolve",
				Message: fmt.Sprintf("providers %q and %q both accept payment provider %q", match.Name(), p.Name(), provider),
				Err:     ErrMultipleProviders,
			}
		}
		match = p
	}
	if match == nil {
		return nil, &domain.Error{
			Code:    domain.EINTERNAL,
			Op:      "billing.resolve",
			Message: fmt.Sprintf("no provider accepts payment provider %q", provider),
			Err:     ErrNoProvider,
		}
	}
	return match, nil
}
