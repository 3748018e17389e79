package arbor_test

import (
	"context"
	"fmt"
	"log"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/pkg/dsl"
)

// ExampleEngine_Run builds a plan in Go and runs it with one Go body and one
// assertion-driven template.
func ExampleEngine_Run() {
	b := dsl.New("pricing")
	b.Add("login")
	b.Add("totals").
		Param("price", "int").
		Param("qty", "int").
		Param("total", "int").
		CSV("2, 3, 6", "4, 5, 20").
		Assert("price * qty == total")

	p, err := b.Build()
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

	for _, inv := range report.Root.Find("totals").Invocations {
		fmt.Println(inv.DisplayName, inv.Status)
	}
	s := report.Summary()
	fmt.Printf("%d passed, %d failed\n", s.Successful, s.Failed)

	// Output:
	// [1] 2, 3, 6 successful
	// [2] 4, 5, 20 successful
	// 3 passed, 0 failed
}
