package projector

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/eventbase/pkg/barrier"
	"github.com/cuemby/eventbase/pkg/docstore"
	"github.com/cuemby/eventbase/pkg/jetlog"
	"github.com/cuemby/eventbase/pkg/stats"
	"github.com/cuemby/eventbase/pkg/subscription"
	"github.com/cuemby/eventbase/pkg/types"
	"github.com/rs/zerolog"
)

// EventObserver is invoked once per applied event, before oldData is
// attached, matching the Omit<Event,'oldData'> shape of the original
// hook. A panicking observer is recovered and logged; it never aborts
// projection.
type EventObserver func(event *types.Event)

// Config holds the construction inputs for a Projector.
type Config struct {
	StreamName string
	Log        jetlog.Log
	Docs       *docstore.Store
	Registry   *subscription.Registry
	Barrier    *barrier.Barrier
	OnMessage  EventObserver
	Stats      stats.Emitter
	Logger     zerolog.Logger
}

// Projector is the replay/tail loop for one base.
type Projector struct {
	cfg Config

	readyOnce sync.Once
	readyCh   chan struct{}
	targetSeq uint64

	mu       sync.Mutex
	consumer jetlog.Consumer
	faulted  error
	closed   bool
}

// New constructs a Projector. Call Start to begin replay.
func New(cfg Config) *Projector {
	if cfg.Stats == nil {
		cfg.Stats = stats.NoopEmitter{}
	}
	return &Projector{
		cfg:     cfg,
		readyCh: make(chan struct{}),
	}
}

// Start runs the startup protocol (read checkpoint, determine target
// sequence, possibly signal ready immediately) and opens the tailing
// consumer. It returns once the consumer has been created; catch-up
// happens asynchronously and is observed via Ready().
func (p *Projector) Start(ctx context.Context) error {
	settingsKey := docstore.SettingsKey(p.cfg.StreamName)

	checkpoint := uint64(0)
	if raw, ok, err := p.cfg.Docs.GetSettings(settingsKey); err != nil {
		return fmt.Errorf("projector: read checkpoint: %w", err)
	} else if ok {
		if parsed, perr := parseSeq(raw); perr == nil {
			checkpoint = parsed
		}
	}

	target, err := p.cfg.Log.LastSeq(ctx)
	if err != nil {
		return fmt.Errorf("projector: last seq: %w", err)
	}
	p.targetSeq = target

	if target == 0 || checkpoint >= target {
		p.signalReady()
	}

	consumer, err := p.cfg.Log.Consume(ctx, checkpoint+1, p.apply)
	if err != nil {
		return fmt.Errorf("projector: consume: %w", err)
	}

	p.mu.Lock()
	p.consumer = consumer
	p.mu.Unlock()

	return nil
}

// Ready is closed once the projector has applied every event that existed
// in the log at Start time.
func (p *Projector) Ready() <-chan struct{} {
	return p.readyCh
}

func (p *Projector) signalReady() {
	p.readyOnce.Do(func() { close(p.readyCh) })
}

// Err returns the error that faulted the projector, if any.
func (p *Projector) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.faulted
}

// Close stops the tailing consumer and fails outstanding barrier waiters.
func (p *Projector) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	consumer := p.consumer
	p.mu.Unlock()

	p.cfg.Barrier.Close()

	if consumer != nil {
		return consumer.Stop()
	}
	return nil
}

// apply performs the per-event projection described in the specification,
// returning an error to signal the message should not be acked (and will
// be redelivered on restart).
func (p *Projector) apply(ctx context.Context, msg jetlog.Msg) error {
	var event types.Event
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		return p.fault(fmt.Errorf("projector: decode event at seq %d: %w", msg.Seq, err))
	}

	if p.cfg.OnMessage != nil {
		p.invokeObserver(&event)
	}

	prior, hadPrior, err := p.cfg.Docs.GetDocument(event.ID)
	if err != nil {
		return p.fault(fmt.Errorf("projector: read prior document for %q: %w", event.ID, err))
	}
	if hadPrior {
		event.OldData = prior
	} else {
		event.OldData = nil
	}

	var fired int
	switch event.Type {
	case types.EventPut:
		fired, err = p.applyPut(&event, msg)
		if err != nil {
			return p.fault(err)
		}
	case types.EventDelete:
		fired, err = p.applyDelete(&event)
		if err != nil {
			return p.fault(err)
		}
	default:
		return p.fault(fmt.Errorf("projector: unknown event type %q at seq %d", event.Type, msg.Seq))
	}

	if fired > 0 {
		p.cfg.Stats.Emit(ctx, types.StatsEvent{
			Operation: types.StatsSubscribeEmit,
			ID:        event.ID,
			Timestamp: msg.Time.UnixMilli(),
		})
	}

	p.cfg.Barrier.Release(msg.Seq)

	if err := p.cfg.Docs.PutSettings(docstore.SettingsKey(p.cfg.StreamName), formatSeq(msg.Seq)); err != nil {
		return p.fault(fmt.Errorf("projector: persist checkpoint: %w", err))
	}
	stats.ProjectorCheckpoint.WithLabelValues(p.cfg.StreamName).Set(float64(msg.Seq))

	if msg.Seq >= p.targetSeq {
		p.signalReady()
	}

	return nil
}

func (p *Projector) invokeObserver(event *types.Event) {
	defer func() {
		if r := recover(); r != nil {
			p.cfg.Logger.Error().Interface("panic", r).Str("id", event.ID).Msg("event observer panicked")
		}
	}()
	p.cfg.OnMessage(event)
}

func (p *Projector) applyPut(event *types.Event, msg jetlog.Msg) (int, error) {
	merged, err := mergeDocument(event.ID, event.Data)
	if err != nil {
		return 0, fmt.Errorf("merge document for %q: %w", event.ID, err)
	}
	if err := p.cfg.Docs.UpsertDocument(event.ID, merged); err != nil {
		return 0, fmt.Errorf("upsert document for %q: %w", event.ID, err)
	}

	modified := msg.Time.UTC().Format(time.RFC3339Nano)
	existing, hadMeta, err := p.cfg.Docs.GetMeta(event.ID)
	if err != nil {
		return 0, fmt.Errorf("read meta for %q: %w", event.ID, err)
	}

	var meta *types.MetaData
	if hadMeta {
		meta = &types.MetaData{
			DateCreated:  existing.DateCreated,
			DateModified: modified,
			Changes:      existing.Changes + 1,
		}
	} else {
		meta = &types.MetaData{DateCreated: modified, DateModified: modified, Changes: 1}
	}

	if err := p.cfg.Docs.UpsertMeta(event.ID, meta); err != nil {
		return 0, fmt.Errorf("upsert meta for %q: %w", event.ID, err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(merged, &decoded); err != nil {
		return 0, fmt.Errorf("decode merged document for %q: %w", event.ID, err)
	}
	fired := p.cfg.Registry.Notify(event, decoded, meta, merged)
	return fired, nil
}

func (p *Projector) applyDelete(event *types.Event) (int, error) {
	if err := p.cfg.Docs.DeleteDocument(event.ID); err != nil {
		return 0, fmt.Errorf("delete document for %q: %w", event.ID, err)
	}
	if err := p.cfg.Docs.DeleteMeta(event.ID); err != nil {
		return 0, fmt.Errorf("delete meta for %q: %w", event.ID, err)
	}
	fired := p.cfg.Registry.Notify(event, nil, nil, event.OldData)
	return fired, nil
}

// fault records err as the terminal projector error, halts the tailing
// consumer so no further events are applied, and releases every barrier
// waiter so they fail instead of blocking forever. Base.checkOpen consults
// Err() and rejects operations on a faulted base the same way it rejects
// them on a closed one.
func (p *Projector) fault(err error) error {
	p.mu.Lock()
	if p.faulted != nil {
		p.mu.Unlock()
		return p.faulted
	}
	p.faulted = err
	consumer := p.consumer
	p.mu.Unlock()

	p.cfg.Logger.Error().Err(err).Msg("projector faulted")
	p.cfg.Barrier.Close()

	if consumer != nil {
		if stopErr := consumer.Stop(); stopErr != nil {
			p.cfg.Logger.Error().Err(stopErr).Msg("projector: stop consumer after fault")
		}
	}
	return err
}

// mergeDocument builds the { id, ...data } shape stored for a key.
func mergeDocument(id string, data json.RawMessage) (json.RawMessage, error) {
	merged := map[string]interface{}{"id": id}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &merged); err != nil {
			return nil, err
		}
		merged["id"] = id
	}
	return json.Marshal(merged)
}

func parseSeq(raw string) (uint64, error) {
	var v uint64
	_, err := fmt.Sscanf(raw, "%d", &v)
	return v, err
}

func formatSeq(seq uint64) string {
	return fmt.Sprintf("%d", seq)
}
