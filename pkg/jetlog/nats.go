package jetlog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSOptions configures a connection to the JetStream cluster backing a
// base's log.
type NATSOptions struct {
	URL         string
	StreamName  string
	ConnectOpts []nats.Option
}

// NATSLog implements Log against a real JetStream stream. One NATSLog owns
// one *nats.Conn and one JetStream stream, filtered to subjects
// "<StreamName>.*".
type NATSLog struct {
	streamName string
	nc         *nats.Conn
	js         jetstream.JetStream
	stream     jetstream.Stream

	mu        sync.Mutex
	consumers []string
}

// Dial connects to NATS and ensures the backing stream exists.
func Dial(ctx context.Context, opts NATSOptions) (*NATSLog, error) {
	nc, err := nats.Connect(opts.URL, opts.ConnectOpts...)
	if err != nil {
		return nil, fmt.Errorf("jetlog: connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetlog: jetstream: %w", err)
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     opts.StreamName,
		Subjects: []string{opts.StreamName + ".*"},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetlog: create stream %s: %w", opts.StreamName, err)
	}

	return &NATSLog{
		streamName: opts.StreamName,
		nc:         nc,
		js:         js,
		stream:     stream,
	}, nil
}

func (l *NATSLog) Publish(ctx context.Context, subject string, data []byte) (uint64, error) {
	ack, err := l.js.Publish(ctx, subject, data)
	if err != nil {
		return 0, fmt.Errorf("jetlog: publish %s: %w", subject, err)
	}
	return ack.Sequence, nil
}

func (l *NATSLog) LastSeq(ctx context.Context) (uint64, error) {
	info, err := l.stream.Info(ctx)
	if err != nil {
		return 0, fmt.Errorf("jetlog: stream info: %w", err)
	}
	return info.State.LastSeq, nil
}

func (l *NATSLog) Consume(ctx context.Context, startSeq uint64, handler Handler) (Consumer, error) {
	policy := jetstream.DeliverByStartSequencePolicy
	optStart := startSeq
	if startSeq == 0 {
		optStart = 1
	}

	name := fmt.Sprintf("%s-consumer-%d", l.streamName, time.Now().UnixNano())
	cons, err := l.stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          name,
		Durable:       name,
		DeliverPolicy: policy,
		OptStartSeq:   optStart,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("jetlog: create consumer: %w", err)
	}

	l.mu.Lock()
	l.consumers = append(l.consumers, name)
	l.mu.Unlock()

	consumeCtx, err := cons.Consume(func(msg jetstream.Msg) {
		meta, err := msg.Metadata()
		if err != nil {
			msg.Nak()
			return
		}

		m := Msg{Seq: meta.Sequence.Stream, Data: msg.Data(), Time: meta.Timestamp}
		if err := handler(ctx, m); err != nil {
			msg.Nak()
			return
		}
		msg.Ack()
	})
	if err != nil {
		return nil, fmt.Errorf("jetlog: consume: %w", err)
	}

	return &natsConsumer{log: l, name: name, consumeCtx: consumeCtx}, nil
}

func (l *NATSLog) PurgeSubject(ctx context.Context, subject string, keep uint64) (uint64, error) {
	opts := []jetstream.StreamPurgeOpt{jetstream.WithPurgeSubject(subject)}
	if keep > 0 {
		opts = append(opts, jetstream.WithPurgeKeep(keep))
	}
	resp, err := l.stream.Purge(ctx, opts...)
	if err != nil {
		return 0, fmt.Errorf("jetlog: purge %s: %w", subject, err)
	}
	return resp, nil
}

func (l *NATSLog) DeleteStream(ctx context.Context) error {
	if err := l.js.DeleteStream(ctx, l.streamName); err != nil && !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("jetlog: delete stream: %w", err)
	}
	return nil
}

func (l *NATSLog) Close() error {
	l.nc.Close()
	return nil
}

type natsConsumer struct {
	log        *NATSLog
	name       string
	consumeCtx jetstream.ConsumeContext
}

func (c *natsConsumer) Stop() error {
	c.consumeCtx.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.log.stream.DeleteConsumer(ctx, c.name); err != nil && !errors.Is(err, jetstream.ErrConsumerNotFound) {
		return fmt.Errorf("jetlog: delete consumer %s: %w", c.name, err)
	}
	return nil
}
