// Package runlog owns the on-disk layout of one training run: an
// append-only metrics.jsonl event log with crash-safe flush semantics and
// a meta.json identity file merged at creation and teardown. It is split
// into small files by concern:
//
//   - writer.go: Writer type, run-ID derivation, append + flush/sync policy.
//   - meta.go: read-merge-write handling of meta.json.
//   - tail.go: ReadChunk, the offset-based incremental reader.
//   - runs.go: run-directory listing for viewers and the CLI.
//
// The log is single-writer: one Writer per run directory, owned by the
// producing process. Readers tail metrics.jsonl concurrently with no
// coordination; the file is append-only and bytes below the write position
// are never rewritten.
package runlog
