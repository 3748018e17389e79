/*
Package arbor is a hierarchical test execution engine with pluggable extensions.

A plan is a tree of nodes: containers group children, tests run a body once and templates
run a body once per argument set produced by their providers. Every node gets a scope in a
shared store whose reads fall back to the enclosing scopes, so values computed at one level
are visible below it and released when that level finishes.

Extensions contribute behavior to the nodes that declare them, or to every node when they
are registered as defaults:

  - Conditions decide whether a node runs (built-ins in pkg/conditions, expressions in pkg/expressions).
  - Parameter resolvers supply injected parameters (pkg/resolvers).
  - Template providers expand templates into invocations (pkg/params, including CSV sources).
  - Lifecycle callbacks run around nodes and invocations.

# Usage

Plans are written in YAML, as a loam directory of markdown documents, or in Go with pkg/dsl.

	package main

	import (
		"context"
		"fmt"
		"log"

		"github.com/aretw0/arbor"
		"github.com/aretw0/arbor/pkg/plan"
	)

	func main() {
		p, err := plan.LoadFile("checkout.yaml")
		if err != nil {
			log.Fatal(err)
		}

		eng := arbor.New(arbor.WithFuncs(arbor.Funcs{
			"login": func(ctx context.Context, args []any) error { return nil },
		}))

		report, err := eng.Run(context.Background(), p)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("%+v\n", report.Summary())
	}

Nodes without a Go body evaluate their assert expression. Reports can be recorded with
WithHistory and served by the HTTP adapter in pkg/adapters/http.
*/
package arbor
