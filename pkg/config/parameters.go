// Package config holds configuration parameters and the settings file of the arbor CLI.
package config

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// Parameters is an immutable set of string configuration parameters.
// The zero value is an empty set.
type Parameters struct {
	values map[string]string
}

// NewParameters copies values into a Parameters set.
func NewParameters(values map[string]string) Parameters {
	return Parameters{values: maps.Clone(values)}
}

// Get returns the trimmed value for key.
func (p Parameters) Get(key string) (string, bool) {
	v, ok := p.values[key]
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

// GetOr returns the value for key, or def when absent.
func (p Parameters) GetOr(key, def string) string {
	if v, ok := p.Get(key); ok {
		return v
	}
	return def
}

// Int parses the value for key. ok is false when the key is absent.
func (p Parameters) Int(key string) (n int, ok bool, err error) {
	v, ok := p.Get(key)
	if !ok {
		return 0, false, nil
	}
	n, err = strconv.Atoi(v)
	if err != nil {
		return 0, true, fmt.Errorf("parameter %q: %w", key, err)
	}
	return n, true, nil
}

// Merge returns a new set where entries of other override entries of p.
func (p Parameters) Merge(other Parameters) Parameters {
	merged := maps.Clone(p.values)
	if merged == nil {
		merged = make(map[string]string, len(other.values))
	}
	maps.Copy(merged, other.values)
	return Parameters{values: merged}
}

// Keys returns the parameter names in sorted order.
func (p Parameters) Keys() []string {
	return slices.Sorted(maps.Keys(p.values))
}

// Len returns the number of parameters.
func (p Parameters) Len() int {
	return len(p.values)
}

// Flatten converts nested maps (as decoded from YAML) into dotted keys.
//
//	argument:
//	  max-length: 20   ->   "argument.max-length": "20"
func Flatten(src map[string]any) map[string]string {
	res := make(map[string]string)
	var visit func(prefix string, v any)

	visit = func(prefix string, v any) {
		switch val := v.(type) {
		case map[string]any:
			for k, sub := range val {
				visit(join(prefix, k), sub)
			}
		case map[any]any: // yaml.v2 style documents
			for k, sub := range val {
				visit(join(prefix, fmt.Sprintf("%v", k)), sub)
			}
		case []any:
			parts := make([]string, 0, len(val))
			for _, item := range val {
				parts = append(parts, fmt.Sprintf("%v", item))
			}
			res[prefix] = strings.Join(parts, ",")
		case nil:
			res[prefix] = ""
		default:
			if prefix != "" {
				res[prefix] = fmt.Sprintf("%v", val)
			}
		}
	}

	for k, v := range src {
		visit(k, v)
	}
	return res
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
