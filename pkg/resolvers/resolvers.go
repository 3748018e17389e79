// Package resolvers provides ready-made ParameterResolver extensions.
package resolvers

import (
	"context"
	"fmt"

	"github.com/aretw0/arbor/pkg/extension"
	"github.com/aretw0/arbor/pkg/schema"
	"github.com/aretw0/arbor/pkg/store"
)

// resolverFunc pairs a support predicate with a value source.
type resolverFunc struct {
	supports func(pc extension.ParameterContext, ec *extension.Context) (bool, error)
	resolve  func(ctx context.Context, pc extension.ParameterContext, ec *extension.Context) (any, error)
}

func (r resolverFunc) Supports(pc extension.ParameterContext, ec *extension.Context) (bool, error) {
	return r.supports(pc, ec)
}

func (r resolverFunc) Resolve(ctx context.Context, pc extension.ParameterContext, ec *extension.Context) (any, error) {
	return r.resolve(ctx, pc, ec)
}

// Value supplies value to every parameter called name.
func Value(id, name string, value any) extension.Extension {
	return extension.Extension{
		ID: id,
		ParameterResolver: resolverFunc{
			supports: func(pc extension.ParameterContext, _ *extension.Context) (bool, error) {
				return pc.Parameter.Name == name, nil
			},
			resolve: func(context.Context, extension.ParameterContext, *extension.Context) (any, error) {
				return value, nil
			},
		},
	}
}

// Typed supplies value to every parameter declared with typeName. The type name is
// normalised, so "[ int ]" and "[int]" are the same.
func Typed(id, typeName string, value any) (extension.Extension, error) {
	want, err := schema.ParseType(typeName)
	if err != nil {
		return extension.Extension{}, err
	}
	return extension.Extension{
		ID: id,
		ParameterResolver: resolverFunc{
			supports: func(pc extension.ParameterContext, _ *extension.Context) (bool, error) {
				got, err := schema.ParseType(pc.Parameter.Type)
				if err != nil {
					return false, err
				}
				return got.Name() == want.Name(), nil
			},
			resolve: func(context.Context, extension.ParameterContext, *extension.Context) (any, error) {
				return value, nil
			},
		},
	}, nil
}

// FromStore supplies the parameter called name from the value stored under (ns, key) in
// the scope hierarchy. It only claims the parameter while such a value is visible.
func FromStore(id, name string, ns store.Namespace, key any) extension.Extension {
	return extension.Extension{
		ID: id,
		ParameterResolver: resolverFunc{
			supports: func(pc extension.ParameterContext, ec *extension.Context) (bool, error) {
				if pc.Parameter.Name != name || ec.Scope == nil {
					return false, nil
				}
				_, ok := ec.Scope.Get(ns, key)
				return ok, nil
			},
			resolve: func(_ context.Context, _ extension.ParameterContext, ec *extension.Context) (any, error) {
				v, ok := ec.Scope.Get(ns, key)
				if !ok {
					return nil, fmt.Errorf("no value for key %v in namespace %s", key, ns)
				}
				return v, nil
			},
		},
	}
}
