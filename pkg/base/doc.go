/*
Package base implements the key/value façade described by the
specification: get/put/insert/delete/keys/query/count/subscribe/close/
deleteStream, each wrapping a mutation as "publish event, await barrier,
read local store, compact prior log entries for the key".

A Base owns one jetlog.Log session, one docstore.Store, one
barrier.Barrier, one subscription.Registry and the projector.Projector
that drives all three from the log. Public methods never touch the
store directly on the write path; they publish and wait for the
projector to apply the event, the same way the teacher's FSM-backed
commands publish through Raft and wait for Apply before returning.
*/
package base
