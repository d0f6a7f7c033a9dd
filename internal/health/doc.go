// Package health holds liveness and readiness probes and their HTTP
// handlers.
//
// Probes compose with [All] and [Any]. [ShutdownGate] fails readiness as
// soon as draining starts so load balancers stop routing before in-flight
// requests finish. [DirReadable] checks that the bundle root can be listed.
package health
