package manager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/eventbase/pkg/base"
	"github.com/cuemby/eventbase/pkg/events"
	"github.com/cuemby/eventbase/pkg/jetlog"
	"github.com/cuemby/eventbase/pkg/projector"
	"github.com/cuemby/eventbase/pkg/stats"
	"github.com/rs/zerolog"
)

const (
	defaultKeepAliveSeconds  = 3600
	defaultCleanupIntervalMS = 60000
)

// Config holds configuration for creating a Manager.
type Config struct {
	// DataDir is the parent directory under which each base gets its own
	// subdirectory, named after the stream.
	DataDir string

	// NATS connects every base this manager opens to the same JetStream
	// cluster.
	NATS jetlog.NATSOptions

	// KeepAliveSeconds is how long a base may sit idle, with zero active
	// subscriptions, before the cleanup timer closes it. Default 3600.
	KeepAliveSeconds int

	// CleanupIntervalMS is how often the idle sweep runs. Default 60000.
	CleanupIntervalMS int

	// OnMessage, if set, is attached to every base this manager opens.
	OnMessage projector.EventObserver

	// StatsStreamNameFn, if set, is called with a base's name to decide
	// whether (and where) it publishes stats; returning "" disables stats
	// for that base.
	StatsStreamNameFn func(name string) string

	Logger zerolog.Logger
}

func (c Config) keepAlive() time.Duration {
	if c.KeepAliveSeconds <= 0 {
		return defaultKeepAliveSeconds * time.Second
	}
	return time.Duration(c.KeepAliveSeconds) * time.Second
}

func (c Config) cleanupInterval() time.Duration {
	if c.CleanupIntervalMS <= 0 {
		return defaultCleanupIntervalMS * time.Millisecond
	}
	return time.Duration(c.CleanupIntervalMS) * time.Millisecond
}

// opening is the single-flight future stored for a name between the
// moment GetStream decides to open it and the moment construction
// finishes.
type opening struct {
	done chan struct{}
	base *base.Base
	err  error
}

// dialFunc constructs the Base for one stream name. Production managers
// use dialReal (base.Open against real NATS); tests substitute a dialer
// that builds a Base over a jetlog.FakeLog via base.New.
type dialFunc func(ctx context.Context, cfg base.Config, nats jetlog.NATSOptions) (*base.Base, error)

func dialReal(ctx context.Context, cfg base.Config, nats jetlog.NATSOptions) (*base.Base, error) {
	return base.Open(ctx, cfg, nats)
}

// Manager owns the set of bases open in this process.
type Manager struct {
	cfg    Config
	broker *events.Broker
	dialer dialFunc

	mu       sync.Mutex
	bases    map[string]*base.Base
	inflight map[string]*opening
	stopCh   chan struct{}
	running  bool
}

// New constructs a Manager. The cleanup timer is not started until the
// first GetStream call (whether or not that open succeeds), and is
// restarted by the first GetStream call after CloseAll.
func New(cfg Config) *Manager {
	broker := events.NewBroker()
	broker.Start()
	return &Manager{
		cfg:      cfg,
		broker:   broker,
		dialer:   dialReal,
		bases:    make(map[string]*base.Base),
		inflight: make(map[string]*opening),
	}
}

// Events returns a subscription to stream:opened/stream:closed events.
func (m *Manager) Events() events.Subscriber {
	return m.broker.Subscribe()
}

// OpenStreams returns the bases currently open, keyed by name. Consulted by
// the /readyz probe; the returned map is a snapshot and is safe to range
// over without holding the manager's lock.
func (m *Manager) OpenStreams() map[string]*base.Base {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := make(map[string]*base.Base, len(m.bases))
	for name, b := range m.bases {
		snapshot[name] = b
	}
	return snapshot
}

// GetStream returns the base bound to name, opening it if this is the
// first request for that name. Concurrent callers for the same name
// share the same opening future.
func (m *Manager) GetStream(ctx context.Context, name string) (*base.Base, error) {
	m.mu.Lock()
	if b, ok := m.bases[name]; ok {
		m.mu.Unlock()
		return b, nil
	}
	if op, ok := m.inflight[name]; ok {
		m.mu.Unlock()
		<-op.done
		return op.base, op.err
	}

	op := &opening{done: make(chan struct{})}
	m.inflight[name] = op
	startSweep := !m.running
	m.running = true
	m.mu.Unlock()

	m.broker.Publish(&events.Event{Type: events.StreamOpened, Message: name})

	if startSweep {
		m.stopCh = make(chan struct{})
		go m.sweepLoop(m.stopCh)
	}

	b, err := m.open(ctx, name)

	m.mu.Lock()
	delete(m.inflight, name)
	if err == nil {
		m.bases[name] = b
	}
	openCount := len(m.bases)
	m.mu.Unlock()

	if err == nil {
		stats.OpenBases.Set(float64(openCount))
	}

	op.base, op.err = b, err
	close(op.done)
	return b, err
}

func (m *Manager) open(ctx context.Context, name string) (*base.Base, error) {
	cfg := base.Config{
		StreamName: name,
		DataDir:    m.dataDirFor(name),
		OnMessage:  m.cfg.OnMessage,
		Logger:     m.cfg.Logger,
	}
	if m.cfg.StatsStreamNameFn != nil {
		cfg.StatsStreamName = m.cfg.StatsStreamNameFn(name)
	}

	b, err := m.dialer(ctx, cfg, m.cfg.NATS)
	if err != nil {
		return nil, fmt.Errorf("manager: open stream %q: %w", name, err)
	}
	return b, nil
}

func (m *Manager) dataDirFor(name string) string {
	if m.cfg.DataDir == "" {
		return ""
	}
	return m.cfg.DataDir + "/" + name
}

// CloseAll stops the cleanup timer, closes every open base (tolerating
// individual failures) and clears the map.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	if m.stopCh != nil {
		close(m.stopCh)
		m.stopCh = nil
	}
	m.running = false
	bases := m.bases
	m.bases = make(map[string]*base.Base)
	m.mu.Unlock()

	var firstErr error
	for name, b := range bases {
		if err := b.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("manager: close %q: %w", name, err)
		}
		m.broker.Publish(&events.Event{Type: events.StreamClosed, Message: name})
	}
	stats.OpenBases.Set(0)
	m.broker.Stop()
	return firstErr
}

func (m *Manager) sweepLoop(stop chan struct{}) {
	ticker := time.NewTicker(m.cfg.cleanupInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-stop:
			return
		}
	}
}

func (m *Manager) sweep() {
	keepAlive := m.cfg.keepAlive()
	now := time.Now()

	m.mu.Lock()
	evict := make(map[string]*base.Base)
	for name, b := range m.bases {
		if b.ActiveSubscriptions() != 0 {
			continue
		}
		if now.Sub(b.LastAccessed()) > keepAlive {
			evict[name] = b
		}
	}
	for name := range evict {
		delete(m.bases, name)
	}
	openCount := len(m.bases)
	m.mu.Unlock()

	if len(evict) > 0 {
		stats.OpenBases.Set(float64(openCount))
	}

	for name, b := range evict {
		b.Close()
		m.broker.Publish(&events.Event{Type: events.StreamClosed, Message: name})
	}
}
