package wallet

import (
	"context"
	"fmt"
)

// Spec configures one wallet. Exactly one of Endpoint or PrivateKey is set.
type Spec struct {
	Name       string `json:"name" validate:"required"`
	Kind       string `json:"kind"`
	Endpoint   string `json:"endpoint,omitempty" validate:"omitempty,url"`
	PrivateKey string `json:"-" validate:"required_without=Endpoint"`
}

// Open builds the provider described by spec. Keyed wallets sign against
// backend.
func Open(ctx context.Context, spec Spec, backend Backend, opts ...KeyedOption) (Provider, error) {
	info := Info{Name: spec.Name, Kind: ParseKind(spec.Kind)}

	switch {
	case spec.Endpoint != "":
		return DialRPCProvider(ctx, info, spec.Endpoint)
	case spec.PrivateKey != "":
		if backend == nil {
			return nil, fmt.Errorf("wallet %q: keyed wallet needs a chain backend", spec.Name)
		}
		return NewKeyedProvider(info, spec.PrivateKey, backend, opts...)
	default:
		return nil, fmt.Errorf("wallet %q: neither endpoint nor private key configured", spec.Name)
	}
}

// OpenAll opens every configured wallet into a StaticEnvironment, preserving
// configuration order.
func OpenAll(ctx context.Context, specs []Spec, backend Backend, opts ...KeyedOption) (StaticEnvironment, error) {
	env := make(StaticEnvironment, 0, len(specs))
	for _, s := range specs {
		p, err := Open(ctx, s, backend, opts...)
		if err != nil {
			return nil, err
		}
		env = append(env, p)
	}
	return env, nil
}
