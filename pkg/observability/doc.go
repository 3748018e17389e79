/*
Package observability turns engine lifecycle events into metrics and logs.

Metrics records Prometheus counters and histograms from domain.LifecycleHooks and
serves them through promhttp. LogHooks writes the same events as structured slog
records. Both hook sets compose with domain.ChainHooks.
*/
package observability
