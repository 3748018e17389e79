package params

import (
	"fmt"

	"github.com/aretw0/arbor/pkg/schema"
	"github.com/spf13/cast"
)

// Convert coerces an argument to the declared parameter type. Values that already fit
// are returned unchanged; strings from text sources are parsed.
func Convert(value any, typ schema.Type) (any, error) {
	if value == nil || schema.Check(typ, value) == nil {
		return value, nil
	}

	var (
		out any
		err error
	)
	switch t := typ.(type) {
	case *schema.StringType:
		out, err = cast.ToStringE(value)
	case *schema.IntType:
		out, err = cast.ToIntE(value)
	case *schema.FloatType:
		out, err = cast.ToFloat64E(value)
	case *schema.BoolType:
		out, err = cast.ToBoolE(value)
	case *schema.DurationType:
		out, err = cast.ToDurationE(value)
	case *schema.SliceType:
		out, err = convertSlice(value, t)
	default:
		return nil, fmt.Errorf("cannot convert %T to %s", value, typ.Name())
	}
	if err != nil {
		return nil, fmt.Errorf("cannot convert %v to %s: %w", value, typ.Name(), err)
	}
	return out, nil
}

func convertSlice(value any, t *schema.SliceType) (any, error) {
	items, err := cast.ToSliceE(value)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(items))
	for i, item := range items {
		if out[i], err = Convert(item, t.Elem()); err != nil {
			return nil, err
		}
	}
	return out, nil
}
