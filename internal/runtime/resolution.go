package runtime

import (
	"context"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/extension"
	"github.com/aretw0/arbor/pkg/registry"
	"github.com/aretw0/arbor/pkg/schema"
)

// ResolveParameters binds every formal parameter of node. Each parameter must be claimed
// by exactly one visible resolver, and the resolved value must fit the declared type.
// Resolvers are asked afresh on every call.
func ResolveParameters(ctx context.Context, decls []registry.Declaration, node *domain.Node, ec *extension.Context) ([]any, error) {
	resolvers := registry.Filter(decls, extension.CapabilityParameterResolver)
	args := make([]any, len(node.Parameters))

	for i, p := range node.Parameters {
		pc := extension.ParameterContext{Parameter: p, Index: i, Node: node}
		fail := func(code string, ids []string, err error) error {
			return &domain.ParameterResolutionError{Code: code, Parameter: p.Name, Index: i, Resolvers: ids, Err: err}
		}

		var matches []registry.Declaration
		for _, d := range resolvers {
			ok, err := d.Extension.ParameterResolver.Supports(pc, ec)
			if err != nil {
				return nil, fail(domain.CodeResolverFailed, []string{d.Extension.ID}, err)
			}
			if ok {
				matches = append(matches, d)
			}
		}

		switch len(matches) {
		case 0:
			return nil, fail(domain.CodeNoResolver, nil, nil)
		case 1:
		default:
			ids := make([]string, len(matches))
			for j, m := range matches {
				ids[j] = m.Extension.ID
			}
			return nil, fail(domain.CodeAmbiguous, ids, nil)
		}

		winner := matches[0].Extension
		v, err := winner.ParameterResolver.Resolve(ctx, pc, ec)
		if err != nil {
			return nil, fail(domain.CodeResolverFailed, []string{winner.ID}, err)
		}

		typ, err := schema.ParseType(p.Type)
		if err != nil {
			return nil, fail(domain.CodeTypeMismatch, []string{winner.ID}, err)
		}
		if err := schema.Check(typ, v); err != nil {
			return nil, fail(domain.CodeTypeMismatch, []string{winner.ID}, err)
		}
		args[i] = v
	}
	return args, nil
}
