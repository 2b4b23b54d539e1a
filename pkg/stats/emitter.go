package stats

import (
	"context"
	"encoding/json"

	"github.com/cuemby/eventbase/pkg/types"
	"github.com/rs/zerolog"
)

// Publisher is the minimal log capability the emitter needs: publish one
// message onto a subject. jetlog.Log satisfies this.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) (uint64, error)
}

// Emitter hands a StatsEvent off to whatever best-effort sink is configured.
type Emitter interface {
	Emit(ctx context.Context, event types.StatsEvent)
}

// NoopEmitter drops every event. It is the default when no stats stream
// name is configured for a base.
type NoopEmitter struct{}

// Emit does nothing.
func (NoopEmitter) Emit(context.Context, types.StatsEvent) {}

// JetStreamEmitter publishes one message per StatsEvent onto
// "<statsStreamName>.stats". Publish failures are logged and swallowed:
// telemetry never blocks or fails a caller's operation.
type JetStreamEmitter struct {
	log     Publisher
	subject string
	logger  zerolog.Logger
}

// NewJetStreamEmitter builds an emitter that publishes onto
// "<statsStreamName>.stats".
func NewJetStreamEmitter(log Publisher, statsStreamName string, logger zerolog.Logger) *JetStreamEmitter {
	return &JetStreamEmitter{
		log:     log,
		subject: statsStreamName + ".stats",
		logger:  logger,
	}
}

// Emit marshals the event and publishes it, swallowing any error.
func (e *JetStreamEmitter) Emit(ctx context.Context, event types.StatsEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		e.logger.Error().Err(err).Str("operation", string(event.Operation)).Msg("stats: marshal failed")
		return
	}
	if _, err := e.log.Publish(ctx, e.subject, payload); err != nil {
		e.logger.Warn().Err(err).Str("subject", e.subject).Msg("stats: publish failed")
	}
}
