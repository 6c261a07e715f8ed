// Package history persists the append-only audit trail of scaling events and
// answers the questions cooldown enforcement needs: what was the last event
// for a cluster, and when did it last successfully scale in each direction.
//
// Backends:
//
//   - [MemoryStore]: process-local, bounded per cluster; for tests and dry runs
//   - [FileStore]: one JSONL log plus a small index file per cluster, guarded
//     by flock(2) so that a CLI and a daemon can share a directory
//   - [MongoStore]: a collection with a TTL index for retention
//
// Every backend keeps the last successful resize per direction even when the
// events themselves are trimmed, so retention never shortens a cooldown.
package history
