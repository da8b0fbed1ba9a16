package reconcile

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"flowsplit/internal/model"
)

type recordingSink struct {
	seqs []uint64
}

func (r *recordingSink) Publish(_ context.Context, snap *Snapshot) error {
	r.seqs = append(r.seqs, snap.Seq)
	return nil
}

func TestPollerPublishesInSequence(t *testing.T) {
	indexer := &fakeSource{splitters: []model.FlowSplitter{splitter("0x01", alice)}}
	sink := &recordingSink{}
	poller := NewPoller(NewClient(indexer, nil, nil, Options{}, nil), alice, 0, nil, sink)

	if poller.Snapshot() != nil {
		t.Fatalf("expected no snapshot before first refresh")
	}
	if !poller.Refresh(context.Background()) || !poller.Refresh(context.Background()) {
		t.Fatalf("expected both refreshes to publish")
	}
	if got := poller.Snapshot(); got == nil || got.Seq != 2 {
		t.Fatalf("expected seq 2, got %+v", got)
	}
	if len(sink.seqs) != 2 || sink.seqs[1] != 2 {
		t.Fatalf("sink mismatch: %v", sink.seqs)
	}
}

func TestPollerDropsStaleCycle(t *testing.T) {
	poller := NewPoller(NewClient(&fakeSource{}, nil, nil, Options{}, nil), "", 0, nil)

	if !poller.publish(&Snapshot{Seq: 5}) {
		t.Fatalf("expected newer snapshot to publish")
	}
	if poller.publish(&Snapshot{Seq: 4}) {
		t.Fatalf("expected older snapshot to be dropped")
	}
	if poller.Snapshot().Seq != 5 {
		t.Fatalf("current snapshot replaced by stale cycle")
	}
}

func TestPollerSinksSkipOlderSnapshot(t *testing.T) {
	sink := &recordingSink{}
	poller := NewPoller(NewClient(&fakeSource{}, nil, nil, Options{}, nil), "", 0, nil, sink)
	ctx := context.Background()

	// Cycle 2 reaches the sinks before cycle 1 finishes.
	if !poller.deliver(ctx, &Snapshot{Seq: 2}) {
		t.Fatalf("expected seq 2 to be delivered")
	}
	if poller.deliver(ctx, &Snapshot{Seq: 1}) {
		t.Fatalf("expected seq 1 to be skipped")
	}
	if len(sink.seqs) != 1 || sink.seqs[0] != 2 {
		t.Fatalf("sink should only hold seq 2, got %v", sink.seqs)
	}
}

func TestPollerRunStopsOnCancel(t *testing.T) {
	poller := NewPoller(NewClient(&fakeSource{}, nil, nil, Options{}, nil), "", 0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := poller.Run(ctx); err != context.Canceled {
		t.Fatalf("expected context canceled, got %v", err)
	}
}

func TestRoutes(t *testing.T) {
	poller := NewPoller(NewClient(&fakeSource{splitters: []model.FlowSplitter{splitter("0x01", alice)}}, nil, nil, Options{}, nil), "", 0, nil)
	mux := http.NewServeMux()
	RegisterRoutes(mux, poller)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/snapshot", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before first refresh, got %d", rec.Code)
	}

	poller.Refresh(context.Background())

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/snapshot", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var snap Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Seq != 1 || len(snap.FlowSplitters) != 1 {
		t.Fatalf("snapshot mismatch: %+v", snap)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected healthy, got %d", rec.Code)
	}
}
