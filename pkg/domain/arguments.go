package domain

// ArgumentSet is the ordered list of values bound to one template invocation.
type ArgumentSet struct {
	// Name is an optional human-readable description of the set.
	Name   string `json:"name,omitempty"`
	Values []any  `json:"values"`
}

// Arguments creates an unnamed argument set.
func Arguments(values ...any) ArgumentSet {
	return ArgumentSet{Values: values}
}

// NamedArguments creates an argument set with a description.
func NamedArguments(name string, values ...any) ArgumentSet {
	return ArgumentSet{Name: name, Values: values}
}

// Len returns the number of values.
func (a ArgumentSet) Len() int {
	return len(a.Values)
}
