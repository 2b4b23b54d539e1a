/*
Package manager owns the set of open bases in one process: single-flight
opening by name, idle eviction, and stream:opened/stream:closed
signalling through pkg/events.

This replaces the teacher's Raft-cluster Manager (bootstrap/join/voter
membership, a WarrenFSM applied through hashicorp/raft, join tokens) with
the specification's much smaller contract: a name-keyed map of bases, a
cleanup timer that evicts idle ones, and single-flight coalescing of
concurrent opens for the same name. The cleanup timer itself is grounded
on the teacher's MetricsCollector ticker (ticker.C plus a stop channel),
the one piece of the original manager whose shape survives unchanged.

# Single-flight open

GetStream stores an in-flight *opening* future under the requested name
the moment it starts constructing a Base, so concurrent callers for the
same name block on the same future instead of racing to open the
underlying log and local store twice. stream:opened is emitted exactly
once, at the moment the future is first inserted — not when it resolves.

# Idle eviction

Every CleanupInterval, the manager closes any base whose LastAccessed is
older than KeepAliveSeconds *and* whose ActiveSubscriptions is zero. A
base with even one live subscriber is never evicted, regardless of how
long it has been idle otherwise.
*/
package manager
