package store

import "strings"

const namespaceSeparator = "\x1f"

// Namespace partitions keys so that independent extensions cannot collide.
// Namespaces are comparable and equal when built from the same parts.
type Namespace struct {
	id string
}

// Global is the namespace with no parts.
var Global = Namespace{}

// NewNamespace builds a namespace from ordered parts.
func NewNamespace(parts ...string) Namespace {
	return Namespace{id: strings.Join(parts, namespaceSeparator)}
}

// Append returns a namespace nested under n.
func (n Namespace) Append(parts ...string) Namespace {
	if n.id == "" {
		return NewNamespace(parts...)
	}
	return Namespace{id: n.id + namespaceSeparator + strings.Join(parts, namespaceSeparator)}
}

func (n Namespace) String() string {
	if n.id == "" {
		return "global"
	}
	return strings.ReplaceAll(n.id, namespaceSeparator, "/")
}
