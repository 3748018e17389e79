// Package schema provides the small type system used to describe formal parameters.
//
// Parameter types are declared by name in plans and node trees ("string", "int", "[string]",
// "duration", "any"). The parameter resolution protocol parses those names into Types and
// checks every resolved value against them before a body runs:
//
//	typ, err := schema.ParseType("[int]")
//	if err != nil {
//	    // unsupported type name
//	}
//	if err := schema.Check(typ, value); err != nil {
//	    // value is not assignable to the declared type
//	}
//
// nil is assignable only to nullable types (any, string and slices), mirroring reference
// versus value semantics.
//
// The package also hosts ValidationError and AggregateError, used wherever several
// independent problems are reported together (plan validation, for instance).
package schema
