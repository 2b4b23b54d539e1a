package base

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/eventbase/pkg/barrier"
	"github.com/cuemby/eventbase/pkg/codec"
	"github.com/cuemby/eventbase/pkg/docstore"
	"github.com/cuemby/eventbase/pkg/jetlog"
	"github.com/cuemby/eventbase/pkg/predicate"
	"github.com/cuemby/eventbase/pkg/projector"
	"github.com/cuemby/eventbase/pkg/stats"
	"github.com/cuemby/eventbase/pkg/subscription"
	"github.com/cuemby/eventbase/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Base is one logical key-value store bound to one log stream.
type Base struct {
	cfg        Config
	streamName string

	log    jetlog.Log
	docs   *docstore.Store
	reg    *subscription.Registry
	bar    *barrier.Barrier
	proj   *projector.Projector
	stats  stats.Emitter
	logger zerolog.Logger

	lastAccessed atomic.Int64 // unix nanos

	mu      sync.Mutex
	closed  bool
	dataDir string
}

// New constructs a Base over an already-connected jetlog.Log. This is the
// constructor used by tests (with jetlog.FakeLog) and by Open for the real
// NATS-backed path.
func New(ctx context.Context, cfg Config, log jetlog.Log) (*Base, error) {
	dataDir := cfg.DataDir
	if dataDir == "" {
		dir, err := os.MkdirTemp("", "eventbase-"+cfg.StreamName+"-*")
		if err != nil {
			return nil, fmt.Errorf("base: create temp data dir: %w", err)
		}
		dataDir = dir
	} else if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("base: create data dir: %w", err)
	}

	docs, err := docstore.Open(dataDir)
	if err != nil {
		return nil, fmt.Errorf("base: open docstore: %w", err)
	}

	logger := cfg.logger()

	b := &Base{
		cfg:        cfg,
		streamName: cfg.StreamName,
		log:        log,
		docs:       docs,
		reg:        subscription.New(),
		bar:        barrier.New(),
		logger:     logger,
		dataDir:    dataDir,
	}

	if cfg.StatsStreamName != "" {
		b.stats = stats.NewJetStreamEmitter(log, cfg.StatsStreamName, logger)
	} else {
		b.stats = stats.NoopEmitter{}
	}

	b.proj = projector.New(projector.Config{
		StreamName: cfg.StreamName,
		Log:        log,
		Docs:       docs,
		Registry:   b.reg,
		Barrier:    b.bar,
		OnMessage:  cfg.OnMessage,
		Stats:      b.stats,
		Logger:     logger,
	})

	if err := b.proj.Start(ctx); err != nil {
		docs.Close()
		return nil, fmt.Errorf("base: start projector: %w", err)
	}

	b.touch()
	return b, nil
}

// Open dials a real NATS JetStream log and constructs a Base over it.
func Open(ctx context.Context, cfg Config, natsOpts jetlog.NATSOptions) (*Base, error) {
	natsOpts.StreamName = cfg.StreamName
	log, err := jetlog.Dial(ctx, natsOpts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLogUnavailable, err)
	}
	b, err := New(ctx, cfg, log)
	if err != nil {
		log.Close()
		return nil, err
	}
	return b, nil
}

func (b *Base) touch() {
	b.lastAccessed.Store(lastAccessedClock().UnixNano())
}

// LastAccessed reports the time of the most recent public operation,
// consulted by the manager's idle sweep.
func (b *Base) LastAccessed() time.Time {
	return time.Unix(0, b.lastAccessed.Load())
}

// ActiveSubscriptions reports the current live subscription count,
// consulted by the manager's idle sweep (a base with subscribers is never
// evicted regardless of idleness).
func (b *Base) ActiveSubscriptions() int64 {
	return b.reg.ActiveSubscriptions()
}

// IsReady reports whether the projector has caught up with the log at
// least once since this Base was opened. Consulted by the /readyz probe.
func (b *Base) IsReady() bool {
	select {
	case <-b.proj.Ready():
		return true
	default:
		return false
	}
}

// StreamName returns the stream name this Base was opened for.
func (b *Base) StreamName() string {
	return b.streamName
}

// checkOpen rejects every public operation once Close/DeleteStream has run
// or the projector has faulted — a faulted projector can no longer keep the
// local store consistent with the log, so the base is treated as closed.
func (b *Base) checkOpen() error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrInstanceClosed
	}
	if err := b.proj.Err(); err != nil {
		return fmt.Errorf("%w: projector faulted: %v", ErrInstanceClosed, err)
	}
	return nil
}

func (b *Base) emitStats(ctx context.Context, op types.StatsOperation, start time.Time, id, pattern string, query map[string]interface{}, resultCount *int) {
	event := types.StatsEvent{
		Operation:        op,
		ID:               id,
		Pattern:          pattern,
		Query:            query,
		QueryResultCount: resultCount,
		Timestamp:        start.UnixMilli(),
		Duration:         time.Since(start).Milliseconds(),
	}
	stats.Observe(b.streamName, event)
	b.stats.Emit(ctx, event)
}

// Get returns the record for id, or ok=false if the key isn't live.
func (b *Base) Get(ctx context.Context, id string) (*types.Record, bool, error) {
	start := time.Now()
	if err := b.checkOpen(); err != nil {
		return nil, false, err
	}
	b.touch()

	data, ok, err := b.docs.GetDocument(id)
	if err != nil {
		return nil, false, fmt.Errorf("base: get %q: %w", id, err)
	}
	if !ok {
		b.emitStats(ctx, types.StatsGet, start, id, "", nil, nil)
		return nil, false, nil
	}
	meta, _, err := b.docs.GetMeta(id)
	if err != nil {
		return nil, false, fmt.Errorf("base: get meta %q: %w", id, err)
	}
	b.emitStats(ctx, types.StatsGet, start, id, "", nil, nil)
	return &types.Record{Meta: meta, Data: data}, true, nil
}

// Put publishes a PUT event for id, waits for it to be projected, then
// best-effort compacts the key's prior PUT history to the latest entry.
func (b *Base) Put(ctx context.Context, id string, data json.RawMessage) (*types.Record, error) {
	start := time.Now()
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	b.touch()

	event := types.Event{Type: types.EventPut, ID: id, Data: data, Timestamp: start.UnixMilli()}
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("base: marshal put event: %w", err)
	}

	subject := codec.PutSubject(b.streamName, id)
	seq, err := b.log.Publish(ctx, subject, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: publish put %q: %v", ErrLogUnavailable, id, err)
	}

	if _, err := b.bar.Wait(ctx, seq); err != nil {
		return nil, fmt.Errorf("base: await put %q: %w", id, err)
	}

	rec, ok, err := b.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProjectionMissing, id)
	}

	if _, err := b.log.PurgeSubject(ctx, subject, 1); err != nil {
		b.logger.Warn().Err(err).Str("id", id).Msg("base: keep-latest compaction failed")
	}

	b.emitStats(ctx, types.StatsPut, start, id, "", nil, nil)
	return rec, nil
}

// Insert generates a fresh identifier and puts data under it.
func (b *Base) Insert(ctx context.Context, data json.RawMessage) (string, *types.Record, error) {
	id := uuid.NewString()
	rec, err := b.Put(ctx, id, data)
	if err != nil {
		return "", nil, err
	}
	return id, rec, nil
}

// DeleteResult reports how many PUT log entries a Delete removed.
type DeleteResult struct {
	Purged uint64
}

// Delete publishes a DELETE event for id, waits for projection, then
// removes all surviving PUT history for the key.
func (b *Base) Delete(ctx context.Context, id string) (DeleteResult, error) {
	start := time.Now()
	if err := b.checkOpen(); err != nil {
		return DeleteResult{}, err
	}
	b.touch()

	event := types.Event{Type: types.EventDelete, ID: id, Timestamp: start.UnixMilli()}
	payload, err := json.Marshal(event)
	if err != nil {
		return DeleteResult{}, fmt.Errorf("base: marshal delete event: %w", err)
	}

	subject := codec.DeleteSubject(b.streamName, id)
	seq, err := b.log.Publish(ctx, subject, payload)
	if err != nil {
		return DeleteResult{}, fmt.Errorf("%w: publish delete %q: %v", ErrLogUnavailable, id, err)
	}

	if _, err := b.bar.Wait(ctx, seq); err != nil {
		return DeleteResult{}, fmt.Errorf("base: await delete %q: %w", id, err)
	}

	purged, err := b.log.PurgeSubject(ctx, codec.PutSubject(b.streamName, id), 0)
	if err != nil {
		return DeleteResult{}, fmt.Errorf("%w: purge put history for %q: %v", ErrLogUnavailable, id, err)
	}

	b.emitStats(ctx, types.StatsDelete, start, id, "", nil, nil)
	return DeleteResult{Purged: purged}, nil
}

// Keys enumerates identifiers, optionally filtered by a regular
// expression matched as a substring search (not a full match).
func (b *Base) Keys(ctx context.Context, pattern string) ([]string, error) {
	start := time.Now()
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	b.touch()

	var re *regexp.Regexp
	if pattern != "" {
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: compile pattern %q: %v", ErrBadPredicate, pattern, err)
		}
		re = compiled
	}

	keys, err := b.docs.Keys(re)
	if err != nil {
		return nil, fmt.Errorf("base: keys: %w", err)
	}
	b.emitStats(ctx, types.StatsKeys, start, "", pattern, nil, nil)
	return keys, nil
}

// Query delegates to the local store's predicate query.
func (b *Base) Query(ctx context.Context, query predicate.Predicate, opts types.QueryOptions) ([]types.Record, error) {
	start := time.Now()
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	b.touch()

	records, err := b.docs.Query(query, opts)
	if err != nil {
		return nil, fmt.Errorf("base: query: %w", err)
	}
	count := len(records)
	b.emitStats(ctx, types.StatsQuery, start, "", "", map[string]interface{}(query), &count)
	return records, nil
}

// Count returns the number of documents matching query.
func (b *Base) Count(ctx context.Context, query predicate.Predicate) (int, error) {
	if err := b.checkOpen(); err != nil {
		return 0, err
	}
	b.touch()

	n, err := b.docs.Count(query)
	if err != nil {
		return 0, fmt.Errorf("base: count: %w", err)
	}
	return n, nil
}

// Subscribe registers callback under query and returns a handle that
// deregisters it when invoked.
func (b *Base) Subscribe(ctx context.Context, query predicate.Predicate, callback subscription.Callback) (subscription.Unsubscribe, error) {
	start := time.Now()
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	b.touch()

	unsub := b.reg.Register(query, callback)
	stats.ActiveSubscriptions.WithLabelValues(b.streamName).Set(float64(b.reg.ActiveSubscriptions()))
	b.emitStats(ctx, types.StatsSubscribe, start, "", "", map[string]interface{}(query), nil)

	return func() {
		unsub()
		stats.ActiveSubscriptions.WithLabelValues(b.streamName).Set(float64(b.reg.ActiveSubscriptions()))
	}, nil
}

// Close stops the projector, closes local stores and the log session, and
// fails any pending barrier waiters.
func (b *Base) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	var firstErr error
	if err := b.proj.Close(); err != nil {
		firstErr = err
	}
	if err := b.docs.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := b.log.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// DeleteStream purges and deletes the log stream, closes local resources
// and removes the on-disk data directory. Terminal: the Base is unusable
// afterward.
func (b *Base) DeleteStream(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	dataDir := b.dataDir
	b.mu.Unlock()

	b.proj.Close()
	b.docs.Close()

	if err := b.log.DeleteStream(ctx); err != nil {
		return fmt.Errorf("%w: delete stream: %v", ErrLogUnavailable, err)
	}
	if err := b.log.Close(); err != nil {
		return fmt.Errorf("base: close log: %w", err)
	}
	if dataDir != "" {
		if err := os.RemoveAll(dataDir); err != nil {
			return fmt.Errorf("base: remove data dir: %w", err)
		}
	}
	return nil
}
