// Package lifecycle manages the process-level lifecycle of the daemon.
//
// The Manager moves through Created -> Running -> Draining -> Stopped.
// Resources registered with OnStop are released in reverse registration
// order once the run function returns, so a resource acquired last is
// released first.
//
// Usage:
//
//	lm := lifecycle.NewManager(lifecycle.WithBus(bus))
//	lm.OnStop("mongo", client.Disconnect)
//	err := lm.Run(ctx, scheduler.Run)
//
// Each transition is published on the bus as a LifecycleChangedEvent. The
// HTTP readiness probe reports ready only while the manager is Running.
package lifecycle
