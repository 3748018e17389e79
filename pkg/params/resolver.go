package params

import (
	"context"

	"github.com/aretw0/arbor/pkg/extension"
	"github.com/aretw0/arbor/pkg/schema"
)

// ArgumentResolverID identifies the positional argument resolver.
const ArgumentResolverID = "arbor.arguments"

// ArgumentResolver binds the arguments of the current invocation to the non-injected
// parameters, in order. String arguments are converted to the declared type.
func ArgumentResolver() extension.Extension {
	return extension.Extension{ID: ArgumentResolverID, ParameterResolver: argumentResolver{}}
}

type argumentResolver struct{}

func (argumentResolver) Supports(pc extension.ParameterContext, ec *extension.Context) (bool, error) {
	if pc.Parameter.Injected || ec.Invocation == nil {
		return false, nil
	}
	pos := position(pc)
	return pos >= 0 && pos < ec.Invocation.Arguments.Len(), nil
}

func (argumentResolver) Resolve(_ context.Context, pc extension.ParameterContext, ec *extension.Context) (any, error) {
	typ, err := schema.ParseType(pc.Parameter.Type)
	if err != nil {
		return nil, err
	}
	return Convert(ec.Invocation.Arguments.Values[position(pc)], typ)
}

// position counts the argument-bound parameters before pc.
func position(pc extension.ParameterContext) int {
	if pc.Node == nil {
		return pc.Index
	}
	pos := 0
	for i, p := range pc.Node.Parameters {
		if i == pc.Index {
			return pos
		}
		if !p.Injected {
			pos++
		}
	}
	return -1
}

var _ extension.ParameterResolver = argumentResolver{}
