// Package progress carries run lifecycle events from the orchestrator to
// pluggable sinks. Emit never blocks; events are batched on a background
// goroutine and fanned out to sinks such as Prometheus, zap, or the run log.
package progress
