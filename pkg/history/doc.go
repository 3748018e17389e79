/*
Package history keeps the reports of past runs.

A Manager wraps a ports.ReportStore and serialises access per report ID, locally with
reference-counted mutexes and, when a ports.DistributedLocker is configured, across
every process sharing the store. It also summarises and prunes the stored history.
*/
package history
