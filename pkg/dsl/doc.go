/*
Package dsl provides a Go DSL for building arbor plans in code.

It produces the same plan.Document a YAML file would, so plans built here go through
the same schema validation and build step. Nodes are declared flat and attached to a
parent by ID, which keeps table-driven plan generation simple.

Example usage:

	b := dsl.New("checkout")
	b.Configure("argument-count-validation-mode", "strict")

	b.Add("cart").Container()
	b.Add("add").In("cart").Assert("true")
	b.Add("totals").In("cart").
		Param("price", "int").
		Param("qty", "int").
		Param("total", "int").
		CSV("2, 3, 6", "4, 5, 20").
		Assert("price * qty == total")

	p, err := b.Build()
*/
package dsl
