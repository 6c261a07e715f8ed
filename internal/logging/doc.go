// Package logging provides structured logging for clusterscaler.
//
// This package wraps Go's log/slog to provide JSON-formatted logs with
// context propagation. Every evaluation logs with the cluster and cycle it
// belongs to, so a single cluster's decisions can be filtered out of the
// daemon's output after the fact.
//
// # Features
//
//   - JSON-formatted structured logging via slog
//   - Configurable log levels (DEBUG, INFO, WARN, ERROR)
//   - Context propagation (cluster ID, cycle ID, component)
//   - Size-based file rotation through lumberjack
//
// # Thread Safety
//
// [Logger] is safe for concurrent use. Child loggers created via With*
// methods share the underlying writer.
//
// # Basic Usage
//
//	logger, err := logging.New(logging.Options{Level: "INFO", File: "/var/log/clusterscaler.log"})
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	cycleLogger := logger.WithComponent("orchestrator").WithCycle(cycleID)
//	cycleLogger.WithCluster("bt-1").Info("resize applied", "from", 10, "to", 16)
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"resize applied","component":"orchestrator","cycle_id":"...","cluster_id":"bt-1","from":10,"to":16}
//
// # Testing
//
// Use [NopLogger] when output is irrelevant, or [NewWithWriter] with a
// bytes.Buffer to assert on emitted entries.
package logging
