// Package sinks implements concrete progress consumers: structured logging,
// Prometheus collectors and the run log repository. Each sink satisfies the
// progress.Sink interface and tolerates repeated Consume/Close calls.
package sinks
