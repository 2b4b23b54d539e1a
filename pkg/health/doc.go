/*
Package health exposes liveness and readiness over HTTP for a running
basectl serve process.

A base is "ready" once its projector has replayed the log at least once
since the process opened it — before that point, reads may miss writes
other processes already made. Handler wires this into the two probes an
operator or orchestrator expects:

	GET /healthz  -> 200, always, once the process is accepting connections
	GET /readyz   -> 200 once every base the manager has open is caught up,
	                 503 (with the names still catching up) otherwise

This narrows the teacher's three-checker (HTTP/TCP/exec) container health
system down to the one check this specification's Manager component needs:
whether a base is safe to read from, not whether an arbitrary container
process is alive. The Checker/Result interface shape is kept from the
teacher's design — a Check(ctx) Result, Type() CheckType pair — because the
rest of the corpus favors small interfaces over bespoke structs for this
kind of polling check.
*/
package health
