package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"

	"flowsplit/internal/model"
)

const (
	alice  = "0xa11ce00000000000000000000000000000000000"
	bob    = "0xb0b0000000000000000000000000000000000000"
	tokenX = "0x1111111111111111111111111111111111111111"
)

type fakeSource struct {
	mu          sync.Mutex
	splitters   []model.FlowSplitter
	streams     []model.Stream
	err         error
	streamCalls []model.StreamFilter
}

func (f *fakeSource) FlowSplitters(_ context.Context, filter model.SplitterFilter) ([]model.FlowSplitter, error) {
	if f.err != nil {
		return nil, f.err
	}
	return filterSplitters(f.splitters, filter), nil
}

func (f *fakeSource) Streams(_ context.Context, filter model.StreamFilter) ([]model.Stream, error) {
	f.mu.Lock()
	f.streamCalls = append(f.streamCalls, filter)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.streams, nil
}

type fakeTokens struct{}

func (fakeTokens) TokenMeta(_ context.Context, token string) (model.TokenMeta, error) {
	return model.TokenMeta{Address: token, Decimals: 18, Symbol: "USDCx"}, nil
}

func splitter(id, creator string) model.FlowSplitter {
	return model.FlowSplitter{ID: id, FlowSplitterCreator: creator, SuperToken: tokenX, MainReceiverPortion: 750, SideReceiverPortion: 250}
}

func stream(sender, receiver, rate string) model.Stream {
	return model.Stream{ID: sender + "-" + receiver + "-" + tokenX, Sender: sender, Receiver: receiver, Token: tokenX, CurrentFlowRate: rate}
}

func TestSelect(t *testing.T) {
	indexer := []string{"a", "b"}
	chain := []string{"b", "c", "d"}

	got, origin := Select(indexer, chain)
	if origin != SourceChain || len(got) != 3 {
		t.Fatalf("expected chain with 3 rows, got %s %v", origin, got)
	}

	got, origin = Select([]string{"a", "b"}, []string{"c", "d"})
	if origin != SourceIndexer || got[0] != "a" {
		t.Fatalf("tie should keep indexer, got %s %v", origin, got)
	}

	got, origin = Select(nil, []string{"a"})
	if origin != SourceChain || len(got) != 1 {
		t.Fatalf("expected chain to win over empty indexer, got %s %v", origin, got)
	}
}

func TestRefreshKeepsLargerCollection(t *testing.T) {
	indexer := &fakeSource{splitters: []model.FlowSplitter{splitter("0x01", alice), splitter("0x02", alice)}}
	chain := &fakeSource{splitters: []model.FlowSplitter{splitter("0x02", alice), splitter("0x03", bob), splitter("0x04", bob)}}

	snap := NewClient(indexer, chain, fakeTokens{}, Options{}, nil).Refresh(context.Background(), "", nil)
	if len(snap.FlowSplitters) != 3 || snap.Sources["flow_splitters"] != SourceChain {
		t.Fatalf("expected chain rows, got %+v %v", snap.FlowSplitters, snap.Sources)
	}
	if snap.Tokens[tokenX].Symbol != "USDCx" {
		t.Fatalf("token map missing: %+v", snap.Tokens)
	}
}

func TestRefreshFailingSourceCountsAsEmpty(t *testing.T) {
	indexer := &fakeSource{err: errors.New("indexer down")}
	chain := &fakeSource{splitters: []model.FlowSplitter{splitter("0x01", alice)}}

	snap := NewClient(indexer, chain, nil, Options{}, nil).Refresh(context.Background(), "", nil)
	if len(snap.FlowSplitters) != 1 || snap.Sources["flow_splitters"] != SourceChain {
		t.Fatalf("expected chain rows, got %+v", snap)
	}
}

func TestRefreshBothFailingKeepsPrevious(t *testing.T) {
	prev := &Snapshot{
		Account:       alice,
		FlowSplitters: []model.FlowSplitter{splitter("0x01", alice)},
		Streams:       []model.Stream{stream(alice, "0x01", "100")},
		Sources:       map[string]string{"flow_splitters": SourceIndexer, "streams": SourceIndexer},
	}
	failing := &fakeSource{err: errors.New("down")}

	snap := NewClient(failing, failing, nil, Options{}, nil).Refresh(context.Background(), alice, prev)
	if len(snap.FlowSplitters) != 1 || snap.FlowSplitters[0].ID != "0x01" {
		t.Fatalf("splitters not retained: %+v", snap.FlowSplitters)
	}
	if len(snap.Streams) != 1 {
		t.Fatalf("streams not retained: %+v", snap.Streams)
	}
}

func TestRefreshStreams(t *testing.T) {
	indexer := &fakeSource{
		splitters: []model.FlowSplitter{splitter("0x01", alice), splitter("0x02", bob)},
		streams: []model.Stream{
			stream(alice, "0x01", "100"),
			stream(alice, "0x02", "0"),
			stream(bob, "0x01", "100"),
			stream(alice, "0x09", "100"),
		},
	}
	chain := &fakeSource{}

	snap := NewClient(indexer, chain, nil, Options{}, nil).Refresh(context.Background(), "0xA11CE00000000000000000000000000000000000", nil)
	if len(snap.Streams) != 1 || snap.Streams[0].Receiver != "0x01" {
		t.Fatalf("expected only alice's open stream into a known splitter, got %+v", snap.Streams)
	}
	if len(indexer.streamCalls) != 1 {
		t.Fatalf("expected one stream query, got %d", len(indexer.streamCalls))
	}
	call := indexer.streamCalls[0]
	if call.Sender != alice || len(call.Receivers) != 2 {
		t.Fatalf("stream filter mismatch: %+v", call)
	}
}

func TestRefreshWithoutAccountHasNoStreams(t *testing.T) {
	indexer := &fakeSource{
		splitters: []model.FlowSplitter{splitter("0x01", alice)},
		streams:   []model.Stream{stream(alice, "0x01", "100")},
	}

	snap := NewClient(indexer, nil, nil, Options{}, nil).Refresh(context.Background(), "", nil)
	if len(snap.Streams) != 0 || len(indexer.streamCalls) != 0 {
		t.Fatalf("expected no stream query without account, got %+v", snap.Streams)
	}
	if snap.Sources["streams"] != SourceNone {
		t.Fatalf("source mismatch: %v", snap.Sources)
	}
}

func TestRefreshOnlyMine(t *testing.T) {
	indexer := &fakeSource{splitters: []model.FlowSplitter{splitter("0x01", alice), splitter("0x02", bob)}}
	client := NewClient(indexer, &fakeSource{}, nil, Options{OnlyMine: true}, nil)

	snap := client.Refresh(context.Background(), bob, nil)
	if len(snap.FlowSplitters) != 1 || snap.FlowSplitters[0].ID != "0x02" {
		t.Fatalf("expected bob's splitter only, got %+v", snap.FlowSplitters)
	}

	snap = client.Refresh(context.Background(), "", nil)
	if len(snap.FlowSplitters) != 0 {
		t.Fatalf("expected no splitters without account, got %+v", snap.FlowSplitters)
	}
}
