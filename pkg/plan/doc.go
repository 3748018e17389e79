// Package plan turns declarative test plans into node trees.
//
// A plan is a YAML document with an optional name, configuration parameters, a list of
// extension definitions and a root node:
//
//	name: checkout
//	configuration:
//	  argument-count-validation-mode: STRICT
//	define:
//	  - id: linux-only
//	    kind: on_os
//	    options: {os: [linux]}
//	root:
//	  id: checkout
//	  children:
//	    - id: totals
//	      assert: "price * qty == total"
//	      parameters:
//	        - {name: price, type: int}
//	        - {name: qty, type: int}
//	        - {name: total, type: int}
//	      template:
//	        sources:
//	          - kind: csv
//	            options:
//	              records: ["2, 3, 6", "4, 5, 20"]
//
// Plans are decoded strictly, validated against the JSON schema returned by JSONSchema,
// and then built into a Plan whose extensions can be registered on a registry.
package plan
