// Package broker is the central hub between metric producers and live
// viewers. It retains a bounded, insertion-ordered cache of recent events
// per experiment, fans ingested events out to subscribed connections, and
// runs the idle-shutdown control loop that lets a finished, unwatched
// broker exit. It is structured into small files by concern:
//
//   - broker.go: core Broker type, constructor, ingest/subscribe/admin ops.
//   - config.go: Config and package defaults; NewWithConfig applies defaults.
//   - cache.go: fixed-capacity ring buffer of cached payloads.
//   - shutdown.go: delayed, cancellable idle-shutdown evaluation.
//   - events.go: lifecycle event publishing hooks.
//   - eventpub_memory.go: in-memory publisher used by tests.
//   - errors.go: error types and helpers (IsExperimentNotFound).
//   - metrics.go: prometheus instrumentation.
//
// The broker serves exactly one local user session: when the producer has
// signaled completion and no subscriber remains, the whole process is asked
// to exit after a grace period. A multi-tenant deployment would need
// per-experiment reference counting instead.
package broker
