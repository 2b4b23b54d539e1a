package manager

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/eventbase/pkg/base"
	"github.com/cuemby/eventbase/pkg/jetlog"
	"github.com/cuemby/eventbase/pkg/stats"
	"github.com/cuemby/eventbase/pkg/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// fakeDialer builds bases over a shared in-memory log, keyed by stream
// name, so GetStream can be exercised without a real NATS server.
func fakeDialer(t *testing.T) dialFunc {
	t.Helper()
	logs := make(map[string]*jetlog.FakeLog)
	var mu sync.Mutex
	return func(ctx context.Context, cfg base.Config, _ jetlog.NATSOptions) (*base.Base, error) {
		mu.Lock()
		log, ok := logs[cfg.StreamName]
		if !ok {
			log = jetlog.NewFakeLog()
			logs[cfg.StreamName] = log
		}
		mu.Unlock()
		if cfg.DataDir == "" {
			cfg.DataDir = t.TempDir()
		}
		return base.New(ctx, cfg, log)
	}
}

func newTestManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	m := New(cfg)
	m.dialer = fakeDialer(t)
	t.Cleanup(func() { m.CloseAll() })
	return m
}

func TestGetStreamOpensOnFirstCall(t *testing.T) {
	m := newTestManager(t, Config{})
	b, err := m.GetStream(context.Background(), "orders")
	if err != nil {
		t.Fatalf("GetStream: %v", err)
	}
	if b == nil {
		t.Fatal("expected non-nil base")
	}
}

func TestGetStreamReturnsSameInstanceForSameName(t *testing.T) {
	m := newTestManager(t, Config{})
	ctx := context.Background()

	b1, err := m.GetStream(ctx, "orders")
	if err != nil {
		t.Fatalf("GetStream: %v", err)
	}
	b2, err := m.GetStream(ctx, "orders")
	if err != nil {
		t.Fatalf("GetStream: %v", err)
	}
	if b1 != b2 {
		t.Error("expected the same *base.Base for repeated GetStream calls")
	}
}

func TestGetStreamSingleFlightsConcurrentOpens(t *testing.T) {
	m := newTestManager(t, Config{})
	ctx := context.Background()

	const n = 20
	results := make([]*base.Base, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			b, err := m.GetStream(ctx, "orders")
			if err != nil {
				t.Errorf("GetStream: %v", err)
				return
			}
			results[i] = b
		}()
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if results[i] != results[0] {
			t.Fatalf("concurrent GetStream callers got different bases at index %d", i)
		}
	}
}

func TestGetStreamIsolatesDifferentNames(t *testing.T) {
	m := newTestManager(t, Config{})
	ctx := context.Background()

	orders, err := m.GetStream(ctx, "orders")
	if err != nil {
		t.Fatalf("GetStream orders: %v", err)
	}
	users, err := m.GetStream(ctx, "users")
	if err != nil {
		t.Fatalf("GetStream users: %v", err)
	}
	if orders == users {
		t.Error("expected distinct bases for distinct stream names")
	}
}

func TestCloseAllClosesEveryBase(t *testing.T) {
	m := newTestManager(t, Config{})
	ctx := context.Background()

	if _, err := m.GetStream(ctx, "orders"); err != nil {
		t.Fatalf("GetStream: %v", err)
	}
	if _, err := m.GetStream(ctx, "users"); err != nil {
		t.Fatalf("GetStream: %v", err)
	}

	if err := m.CloseAll(); err != nil {
		t.Fatalf("CloseAll: %v", err)
	}

	m.mu.Lock()
	n := len(m.bases)
	m.mu.Unlock()
	if n != 0 {
		t.Errorf("bases remaining after CloseAll = %d, want 0", n)
	}
}

func TestOpenBasesGaugeTracksManagerSize(t *testing.T) {
	m := newTestManager(t, Config{})
	ctx := context.Background()

	if _, err := m.GetStream(ctx, "orders"); err != nil {
		t.Fatalf("GetStream: %v", err)
	}
	if got := testutil.ToFloat64(stats.OpenBases); got != 1 {
		t.Errorf("OpenBases = %v, want 1", got)
	}

	if _, err := m.GetStream(ctx, "users"); err != nil {
		t.Fatalf("GetStream: %v", err)
	}
	if got := testutil.ToFloat64(stats.OpenBases); got != 2 {
		t.Errorf("OpenBases = %v, want 2", got)
	}

	if err := m.CloseAll(); err != nil {
		t.Fatalf("CloseAll: %v", err)
	}
	if got := testutil.ToFloat64(stats.OpenBases); got != 0 {
		t.Errorf("OpenBases after CloseAll = %v, want 0", got)
	}
}

func TestSweepEvictsIdleBaseWithoutSubscribers(t *testing.T) {
	m := newTestManager(t, Config{KeepAliveSeconds: 0})
	ctx := context.Background()

	if _, err := m.GetStream(ctx, "orders"); err != nil {
		t.Fatalf("GetStream: %v", err)
	}

	// KeepAliveSeconds: 0 falls back to the 3600s default in cfg.keepAlive;
	// lower it after open and sweep directly instead of waiting on the
	// real cleanup timer.
	m.cfg.KeepAliveSeconds = 1
	time.Sleep(2 * time.Second)
	m.sweep()

	m.mu.Lock()
	_, stillOpen := m.bases["orders"]
	m.mu.Unlock()
	if stillOpen {
		t.Error("expected idle base with no subscribers to be evicted")
	}
}

func TestSweepNeverEvictsBaseWithActiveSubscribers(t *testing.T) {
	m := newTestManager(t, Config{KeepAliveSeconds: 1})
	ctx := context.Background()

	b, err := m.GetStream(ctx, "orders")
	if err != nil {
		t.Fatalf("GetStream: %v", err)
	}
	if _, err := b.Subscribe(ctx, nil, func(id string, payload []byte, meta *types.MetaData, event *types.Event) {}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	time.Sleep(2 * time.Second)
	m.sweep()

	m.mu.Lock()
	_, stillOpen := m.bases["orders"]
	m.mu.Unlock()
	if !stillOpen {
		t.Error("expected base with active subscriber to survive the sweep")
	}
}
