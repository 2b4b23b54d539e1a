/*
Package events provides an in-memory event broker used by pkg/manager to
signal stream:opened and stream:closed without calling back into the
bases it owns.

# Architecture

	Publisher (Manager)  →  Event Channel (buffer: 100)  →  Broadcast Loop  →  Subscriber Channels (buffer: 50 each)

Publish is non-blocking: it never waits for a subscriber, and a full
subscriber buffer simply drops the event rather than stalling the
broadcast loop. This mirrors the teacher's original pkg/events broker,
narrowed from thirteen cluster event types (service/task/node/secret/
volume) down to the two the specification names for the manager.

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for event := range sub {
			switch event.Type {
			case events.StreamOpened:
				log.Info().Str("stream", event.Message).Msg("opened")
			case events.StreamClosed:
				log.Info().Str("stream", event.Message).Msg("closed")
			}
		}
	}()

	broker.Publish(&events.Event{Type: events.StreamOpened, Message: "orders"})

# Design Patterns

Non-blocking publish: Publish sends to a buffered channel and returns
immediately; events may be dropped under sustained subscriber backlog in
exchange for never blocking the manager's hot path.

Fan-out: a single published event is broadcast to every subscriber's own
channel; slow subscribers skip events rather than stall the others.

Graceful shutdown: Stop signals the broadcast loop to exit; subscriber
channels stay open until each caller explicitly unsubscribes.
*/
package events
