package wallet

import (
	"context"
	"sort"
)

// Environment enumerates the wallets available to a checkout. It may return
// none.
type Environment interface {
	Providers(ctx context.Context) []Provider
}

// StaticEnvironment is a fixed provider list in injection order.
type StaticEnvironment []Provider

func (e StaticEnvironment) Providers(context.Context) []Provider {
	out := make([]Provider, 0, len(e))
	for _, p := range e {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

// priority returns the rank of a provider. Lower is preferred.
func priority(p Provider) int {
	if p.Info().Kind == Primary {
		return 0
	}
	return 1
}

// Discover queries env and ranks the result: the primary wallet first, the
// rest in injection order.
func Discover(ctx context.Context, env Environment) []Provider {
	if env == nil {
		return nil
	}
	providers := env.Providers(ctx)
	ranked := make([]Provider, len(providers))
	copy(ranked, providers)
	sort.SliceStable(ranked, func(i, j int) bool {
		return priority(ranked[i]) < priority(ranked[j])
	})
	return ranked
}

// Select picks the provider a checkout should use: the primary wallet when
// several are present, otherwise the sole or first one.
func Select(providers []Provider) (Provider, bool) {
	switch len(providers) {
	case 0:
		return nil, false
	case 1:
		return providers[0], true
	}
	for _, p := range providers {
		if p.Info().Kind == Primary {
			return p, true
		}
	}
	return providers[0], true
}
