// Package agent is the producer-side telemetry client. It buffers metric
// events off the training hot path and ships them to a metricd daemon on a
// fixed interval, spawning the daemon on demand when none is listening.
//
// Files:
//   - agent.go: queue, worker loop, lifecycle
//   - client.go: HTTP delivery and payload assembly
//   - spawn.go: daemon discovery and detached launch
package agent
