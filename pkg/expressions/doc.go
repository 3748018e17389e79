// Package expressions evaluates expr-lang expressions as node conditions and as test
// bodies.
//
// Conditions see these bindings:
//
//	env("NAME")      value of an environment variable, "" when unset
//	config("key")    configuration parameter, "" when unset
//	os               runtime.GOOS
//	tags             the node's tags
//	node             map with id, kind, name and path
//
// Assertions additionally see each parameter by name, the positional args slice, and
// abort("reason"), which ends the test as aborted.
package expressions
