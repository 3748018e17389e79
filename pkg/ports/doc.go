/*
Package ports defines the driven ports (interfaces) of the arbor engine.

These interfaces decouple the core logic from external implementations, allowing
the engine to run bodies written in Go or as expressions and to keep run reports in
various storage backends.

# Key Interfaces

  - Invoker: Executes the body of a test or template invocation.
  - ReportStore: Persists run reports (memory, file, Redis).
  - DistributedLocker: Coordinates report writes across multiple instances.
*/
package ports
