/*
Package domain contains the core models of the arbor engine.

It defines the execution tree (Nodes with their kinds, parameters and per-node template
configuration), the per-run node lifecycle state machine, argument sets, the error taxonomy
shared by every component, and the run Report produced by an execution. The package has no
dependencies beyond the standard library and performs no I/O.

# Key Entities

  - Node: a container, test or template in the execution tree.
  - Lifecycle: the monotonic state machine a node goes through during one run.
  - ArgumentSet: the ordered values bound to one invocation of a template.
  - Report: the outcome of a run, one Result per node.
*/
package domain
