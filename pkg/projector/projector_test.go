package projector

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/cuemby/eventbase/pkg/barrier"
	"github.com/cuemby/eventbase/pkg/codec"
	"github.com/cuemby/eventbase/pkg/docstore"
	"github.com/cuemby/eventbase/pkg/jetlog"
	"github.com/cuemby/eventbase/pkg/subscription"
	"github.com/cuemby/eventbase/pkg/types"
	"github.com/rs/zerolog"
)

func newTestProjector(t *testing.T, log *jetlog.FakeLog) (*Projector, *docstore.Store, *barrier.Barrier) {
	t.Helper()
	docs, err := docstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("docstore.Open: %v", err)
	}
	t.Cleanup(func() { docs.Close() })

	b := barrier.New()
	reg := subscription.New()

	p := New(Config{
		StreamName: "mybase",
		Log:        log,
		Docs:       docs,
		Registry:   reg,
		Barrier:    b,
		Logger:     zerolog.Nop(),
	})
	return p, docs, b
}

func publishPut(t *testing.T, log *jetlog.FakeLog, key string, data map[string]interface{}) uint64 {
	t.Helper()
	raw, _ := json.Marshal(data)
	event := types.Event{Type: types.EventPut, ID: key, Data: raw, Timestamp: time.Now().UnixMilli()}
	payload, _ := json.Marshal(event)
	seq, err := log.Publish(context.Background(), codec.PutSubject("mybase", key), payload)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	return seq
}

func publishDelete(t *testing.T, log *jetlog.FakeLog, key string) uint64 {
	t.Helper()
	event := types.Event{Type: types.EventDelete, ID: key, Timestamp: time.Now().UnixMilli()}
	payload, _ := json.Marshal(event)
	seq, err := log.Publish(context.Background(), codec.DeleteSubject("mybase", key), payload)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	return seq
}

func TestProjectorAppliesPutAndReleasesBarrier(t *testing.T) {
	log := jetlog.NewFakeLog()
	p, docs, b := newTestProjector(t, log)

	seq := publishPut(t, log, "user1", map[string]interface{}{"name": "John Doe", "age": float64(30)})

	ctx := context.Background()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Close()

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := b.Wait(waitCtx, seq); err != nil {
		t.Fatalf("barrier wait: %v", err)
	}

	data, ok, err := docs.GetDocument("user1")
	if err != nil || !ok {
		t.Fatalf("GetDocument: ok=%v err=%v", ok, err)
	}

	var decoded map[string]interface{}
	json.Unmarshal(data, &decoded)
	if decoded["name"] != "John Doe" || decoded["id"] != "user1" {
		t.Errorf("decoded document = %v", decoded)
	}

	meta, ok, err := docs.GetMeta("user1")
	if err != nil || !ok {
		t.Fatalf("GetMeta: ok=%v err=%v", ok, err)
	}
	if meta.Changes != 1 {
		t.Errorf("Changes = %d, want 1", meta.Changes)
	}
	if meta.DateCreated != meta.DateModified {
		t.Errorf("expected dateCreated == dateModified on first put")
	}
}

func TestProjectorMetadataAccumulatesChanges(t *testing.T) {
	log := jetlog.NewFakeLog()
	p, docs, b := newTestProjector(t, log)

	publishPut(t, log, "k", map[string]interface{}{"v": float64(1)})
	seq2 := publishPut(t, log, "k", map[string]interface{}{"v": float64(2)})

	ctx := context.Background()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Close()

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	b.Wait(waitCtx, seq2)

	meta, _, _ := docs.GetMeta("k")
	if meta.Changes != 2 {
		t.Errorf("Changes = %d, want 2", meta.Changes)
	}
}

func TestProjectorAppliesDelete(t *testing.T) {
	log := jetlog.NewFakeLog()
	p, docs, b := newTestProjector(t, log)

	publishPut(t, log, "k", map[string]interface{}{"v": float64(1)})
	seqDel := publishDelete(t, log, "k")

	ctx := context.Background()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Close()

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	b.Wait(waitCtx, seqDel)

	_, ok, _ := docs.GetDocument("k")
	if ok {
		t.Fatal("expected document to be gone after delete")
	}
	_, ok, _ = docs.GetMeta("k")
	if ok {
		t.Fatal("expected meta to be gone after delete")
	}
}

func TestProjectorSignalsReadyImmediatelyWhenEmpty(t *testing.T) {
	log := jetlog.NewFakeLog()
	p, _, _ := newTestProjector(t, log)

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Close()

	select {
	case <-p.Ready():
	case <-time.After(time.Second):
		t.Fatal("expected Ready() to be closed immediately for an empty log")
	}
}

func TestProjectorSignalsReadyAfterCatchUp(t *testing.T) {
	log := jetlog.NewFakeLog()
	p, _, _ := newTestProjector(t, log)

	publishPut(t, log, "a", map[string]interface{}{"v": float64(1)})
	publishPut(t, log, "b", map[string]interface{}{"v": float64(2)})

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Close()

	select {
	case <-p.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("expected Ready() to close after catching up")
	}
}

func TestProjectorResumesFromCheckpoint(t *testing.T) {
	log := jetlog.NewFakeLog()
	docs, err := docstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("docstore.Open: %v", err)
	}
	defer docs.Close()

	seq1 := publishPut(t, log, "a", map[string]interface{}{"v": float64(1)})
	_ = publishPut(t, log, "b", map[string]interface{}{"v": float64(2)})

	docs.PutSettings(docstore.SettingsKey("mybase"), formatSeq(seq1))

	b := barrier.New()
	reg := subscription.New()
	var observed []string
	p := New(Config{
		StreamName: "mybase",
		Log:        log,
		Docs:       docs,
		Registry:   reg,
		Barrier:    b,
		Logger:     zerolog.Nop(),
		OnMessage:  func(e *types.Event) { observed = append(observed, e.ID) },
	})

	ctx := context.Background()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Close()

	select {
	case <-p.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("expected Ready() to close")
	}

	if len(observed) != 1 || observed[0] != "b" {
		t.Fatalf("observed = %v, want [b] (only events after checkpoint)", observed)
	}
}

func TestProjectorFaultsOnDecodeErrorAndStopsConsuming(t *testing.T) {
	log := jetlog.NewFakeLog()
	p, docs, b := newTestProjector(t, log)

	// Malformed payload: apply's json.Unmarshal fails, which should fault
	// the projector before the well-formed event published after it is
	// ever applied.
	if _, err := log.Publish(context.Background(), codec.PutSubject("mybase", "bad"), []byte("not json")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	goodSeq := publishPut(t, log, "k", map[string]interface{}{"v": float64(1)})

	ctx := context.Background()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Close()

	deadline := time.After(2 * time.Second)
	for p.Err() == nil {
		select {
		case <-deadline:
			t.Fatal("expected projector to fault on malformed event")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if _, err := b.Wait(ctx, goodSeq); err == nil {
		t.Fatal("expected barrier wait to fail once the projector has faulted")
	}

	if _, ok, _ := docs.GetDocument("k"); ok {
		t.Fatal("expected the event after the fault to never be applied")
	}
}
