/*
Package projector implements the replay/tail loop that turns a base's log
into materialized local state.

The Projector reads events from the log starting at the last persisted
checkpoint, applies each one to the local document store and metadata
store in order, advances the checkpoint, releases SequenceBarrier waiters,
and fans the event out to matching subscribers — all as one atomic step
from a reader's perspective. It plays the role WarrenFSM.Apply played for
Warren's Raft log: a single-writer state machine driven by a durable,
ordered log, except here the log is JetStream rather than Raft and the
state machine starts at an arbitrary sequence instead of always replaying
from zero.
*/
package projector
