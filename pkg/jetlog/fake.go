package jetlog

import (
	"context"
	"strings"
	"sync"
	"time"
)

type fakeRecord struct {
	seq     uint64
	subject string
	data    []byte
	time    int64 // unix millis, caller-supplied via FakeLog.Clock
}

// FakeLog is an in-memory Log used by tests that exercise the projector
// and base without a live NATS server, mirroring how the teacher's FSM
// tests drive WarrenFSM.Apply directly against a *raft.Log built by hand
// instead of a running Raft cluster.
type FakeLog struct {
	mu      sync.Mutex
	records []fakeRecord
	nextSeq uint64

	// Clock supplies the timestamp attached to new records; tests can
	// override it to control event ordering semantics precisely.
	Clock func() int64

	consumers map[*fakeConsumer]struct{}
}

// NewFakeLog returns an empty FakeLog.
func NewFakeLog() *FakeLog {
	return &FakeLog{
		consumers: make(map[*fakeConsumer]struct{}),
		Clock:     func() int64 { return 0 },
	}
}

func (l *FakeLog) Publish(_ context.Context, subject string, data []byte) (uint64, error) {
	l.mu.Lock()
	l.nextSeq++
	seq := l.nextSeq
	rec := fakeRecord{seq: seq, subject: subject, data: append([]byte(nil), data...), time: l.Clock()}
	l.records = append(l.records, rec)
	consumers := make([]*fakeConsumer, 0, len(l.consumers))
	for c := range l.consumers {
		consumers = append(consumers, c)
	}
	l.mu.Unlock()

	for _, c := range consumers {
		c.notify(rec)
	}
	return seq, nil
}

func (l *FakeLog) LastSeq(_ context.Context) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nextSeq, nil
}

func (l *FakeLog) Consume(ctx context.Context, startSeq uint64, handler Handler) (Consumer, error) {
	c := &fakeConsumer{log: l, ctx: ctx, handler: handler, next: startSeq, queue: make(chan fakeRecord, 256), stopped: make(chan struct{})}
	if startSeq == 0 {
		c.next = 1
	}

	l.mu.Lock()
	l.consumers[c] = struct{}{}
	backlog := make([]fakeRecord, 0, len(l.records))
	for _, rec := range l.records {
		if rec.seq >= c.next {
			backlog = append(backlog, rec)
		}
	}
	l.mu.Unlock()

	go c.run(backlog)
	return c, nil
}

func (l *FakeLog) PurgeSubject(_ context.Context, subject string, keep uint64) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var matching []int
	for i, rec := range l.records {
		if rec.subject == subject {
			matching = append(matching, i)
		}
	}

	toRemove := len(matching)
	if int(keep) < toRemove {
		toRemove -= int(keep)
	} else {
		toRemove = 0
	}
	if toRemove == 0 {
		return 0, nil
	}

	remove := make(map[int]bool, toRemove)
	for _, idx := range matching[:toRemove] {
		remove[idx] = true
	}

	kept := l.records[:0]
	for i, rec := range l.records {
		if !remove[i] {
			kept = append(kept, rec)
		}
	}
	l.records = kept
	return uint64(toRemove), nil
}

func (l *FakeLog) DeleteStream(_ context.Context) error {
	l.mu.Lock()
	l.records = nil
	consumers := make([]*fakeConsumer, 0, len(l.consumers))
	for c := range l.consumers {
		consumers = append(consumers, c)
	}
	l.mu.Unlock()

	for _, c := range consumers {
		c.Stop()
	}
	return nil
}

func (l *FakeLog) Close() error { return nil }

// CountSubject returns how many records remain for subject, for test
// assertions about compaction.
func (l *FakeLog) CountSubject(subject string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, rec := range l.records {
		if rec.subject == subject {
			n++
		}
	}
	return n
}

// HasSubjectPrefix reports whether any record's subject starts with prefix.
func (l *FakeLog) HasSubjectPrefix(prefix string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, rec := range l.records {
		if strings.HasPrefix(rec.subject, prefix) {
			return true
		}
	}
	return false
}

type fakeConsumer struct {
	log     *FakeLog
	ctx     context.Context
	handler Handler
	next    uint64
	queue   chan fakeRecord
	stopped chan struct{}
	once    sync.Once
}

func (c *fakeConsumer) notify(rec fakeRecord) {
	select {
	case c.queue <- rec:
	default:
	}
}

func (c *fakeConsumer) run(backlog []fakeRecord) {
	for _, rec := range backlog {
		if c.deliver(rec) {
			return
		}
	}

	for {
		select {
		case rec := <-c.queue:
			if rec.seq < c.next {
				continue
			}
			if c.deliver(rec) {
				return
			}
		case <-c.stopped:
			return
		case <-c.ctx.Done():
			return
		}
	}
}

// deliver invokes the handler for rec. On a handler error the message is
// left unacked and run stops delivering further messages on this consumer,
// since nothing after a faulted event should be applied out of order on
// restart. (NATSLog instead Naks the message and keeps consuming; there the
// projector's fault path stops the consumer.)
func (c *fakeConsumer) deliver(rec fakeRecord) (stop bool) {
	if err := c.handler(c.ctx, Msg{Seq: rec.seq, Data: rec.data, Time: timeFromMillis(rec.time)}); err != nil {
		return true
	}
	c.next = rec.seq + 1
	return false
}

func (c *fakeConsumer) Stop() error {
	c.once.Do(func() {
		c.log.mu.Lock()
		delete(c.log.consumers, c)
		c.log.mu.Unlock()
		close(c.stopped)
	})
	return nil
}

func timeFromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}
