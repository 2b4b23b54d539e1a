/*
Package jetlog defines the ordered-log interface the projector and base
consume, and provides a NATS JetStream-backed implementation plus an
in-memory fake for tests.

This is the one external collaborator the specification calls out by name:
a durable, append-only stream with per-subject retention, monotonically
increasing publish sequence numbers, and a pull consumer that can start
replay at an arbitrary sequence. jetlog.Log captures exactly that surface
and nothing more; everything else about JetStream (connection retries,
clustering, auth) is the caller's concern, handled the way the teacher's
pkg/manager handled Raft transport setup — constructed once at Bootstrap
and handed to higher-level components as an interface.
*/
package jetlog

import (
	"context"
	"time"
)

// Msg is a single message read back from the log.
type Msg struct {
	Seq  uint64
	Data []byte
	Time time.Time
}

// Handler processes one message read from the log. Returning nil acks the
// message; the log client is responsible for not re-delivering acked
// messages after a restart.
type Handler func(ctx context.Context, msg Msg) error

// Consumer is a live subscription created by Log.Consume. Stop halts
// delivery and releases any consumer-side state held by the log so the
// log does not retain per-consumer bookkeeping after a base closes.
type Consumer interface {
	Stop() error
}

// Log is the ordered event log a base is bound to. One Log corresponds to
// one JetStream stream, with subjects "<streamName>.*".
type Log interface {
	// Publish appends data under subject and returns the sequence number
	// the log assigned it.
	Publish(ctx context.Context, subject string, data []byte) (seq uint64, err error)

	// LastSeq returns the highest sequence number currently in the stream,
	// or 0 if the stream is empty.
	LastSeq(ctx context.Context) (uint64, error)

	// Consume starts delivering messages with sequence >= startSeq, in
	// order, to handler. It returns immediately; delivery happens on a
	// background goroutine until the returned Consumer is stopped or the
	// Log is closed.
	Consume(ctx context.Context, startSeq uint64, handler Handler) (Consumer, error)

	// PurgeSubject removes messages on subject, retaining only the keep
	// most recent ones (keep == 0 removes all of them).
	PurgeSubject(ctx context.Context, subject string, keep uint64) (purged uint64, err error)

	// DeleteStream deletes the entire stream backing this Log.
	DeleteStream(ctx context.Context) error

	// Close releases client-side resources without touching the stream
	// itself.
	Close() error
}
