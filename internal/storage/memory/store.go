package memory

import (
	"context"
	"sort"
	"sync"

	"flowsplit/internal/model"
	"flowsplit/internal/storage"
)

// Store is an in-memory storage.TxStore.
type Store struct {
	mu          sync.RWMutex
	events      map[string]model.EventRecord
	splitters   map[string]model.FlowSplitter
	streams     map[string]model.Stream
	dataSources map[string]uint64
}

var _ storage.TxStore = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		events:      make(map[string]model.EventRecord),
		splitters:   make(map[string]model.FlowSplitter),
		streams:     make(map[string]model.Stream),
		dataSources: make(map[string]uint64),
	}
}

func (s *Store) SaveEvent(_ context.Context, event model.EventRecord) error {
	s.mu.Lock()
	s.events[event.Base().ID] = event
	s.mu.Unlock()
	return nil
}

// Event returns a stored event record by id.
func (s *Store) Event(id string) (model.EventRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	event, ok := s.events[id]
	return event, ok
}

// EventCount returns the number of stored event records.
func (s *Store) EventCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

func (s *Store) GetFlowSplitter(_ context.Context, id string) (model.FlowSplitter, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	splitter, ok := s.splitters[id]
	return splitter, ok, nil
}

func (s *Store) SaveFlowSplitter(_ context.Context, splitter model.FlowSplitter) error {
	s.mu.Lock()
	s.splitters[splitter.ID] = splitter
	s.mu.Unlock()
	return nil
}

// ListFlowSplitters returns splitters ordered by creation block, then id.
func (s *Store) ListFlowSplitters(_ context.Context) ([]model.FlowSplitter, error) {
	s.mu.RLock()
	out := make([]model.FlowSplitter, 0, len(s.splitters))
	for _, splitter := range s.splitters {
		out = append(out, splitter)
	}
	s.mu.RUnlock()

	sortSplitters(out)
	return out, nil
}

func (s *Store) GetStream(_ context.Context, id string) (model.Stream, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stream, ok := s.streams[id]
	return stream, ok, nil
}

func (s *Store) SaveStream(_ context.Context, stream model.Stream) error {
	s.mu.Lock()
	s.streams[stream.ID] = stream
	s.mu.Unlock()
	return nil
}

// ListStreams returns streams ordered by creation block, then id.
func (s *Store) ListStreams(_ context.Context) ([]model.Stream, error) {
	s.mu.RLock()
	out := make([]model.Stream, 0, len(s.streams))
	for _, stream := range s.streams {
		out = append(out, stream)
	}
	s.mu.RUnlock()

	sortStreams(out)
	return out, nil
}

// AddDataSource keeps the lowest start block seen for an address.
func (s *Store) AddDataSource(_ context.Context, address string, startBlock uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.dataSources[address]; ok && existing <= startBlock {
		return nil
	}
	s.dataSources[address] = startBlock
	return nil
}

func (s *Store) DataSources(_ context.Context) (map[string]uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]uint64, len(s.dataSources))
	for addr, block := range s.dataSources {
		out[addr] = block
	}
	return out, nil
}

// WithTx buffers the writes of fn and applies them only if fn succeeds.
// Concurrent writers are not isolated from each other.
func (s *Store) WithTx(ctx context.Context, fn func(storage.Store) error) error {
	tx := &txStore{
		base:        s,
		events:      make(map[string]model.EventRecord),
		splitters:   make(map[string]model.FlowSplitter),
		streams:     make(map[string]model.Stream),
		dataSources: make(map[string]uint64),
	}
	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, event := range tx.events {
		s.events[id] = event
	}
	for id, splitter := range tx.splitters {
		s.splitters[id] = splitter
	}
	for id, stream := range tx.streams {
		s.streams[id] = stream
	}
	for address, block := range tx.dataSources {
		if existing, ok := s.dataSources[address]; !ok || block < existing {
			s.dataSources[address] = block
		}
	}
	return nil
}

// txStore reads through to the base store and keeps its own writes pending.
type txStore struct {
	base        *Store
	events      map[string]model.EventRecord
	splitters   map[string]model.FlowSplitter
	streams     map[string]model.Stream
	dataSources map[string]uint64
}

func (t *txStore) SaveEvent(_ context.Context, event model.EventRecord) error {
	t.events[event.Base().ID] = event
	return nil
}

func (t *txStore) GetFlowSplitter(ctx context.Context, id string) (model.FlowSplitter, bool, error) {
	if splitter, ok := t.splitters[id]; ok {
		return splitter, true, nil
	}
	return t.base.GetFlowSplitter(ctx, id)
}

func (t *txStore) SaveFlowSplitter(_ context.Context, splitter model.FlowSplitter) error {
	t.splitters[splitter.ID] = splitter
	return nil
}

func (t *txStore) ListFlowSplitters(ctx context.Context) ([]model.FlowSplitter, error) {
	rows, err := t.base.ListFlowSplitters(ctx)
	if err != nil {
		return nil, err
	}
	merged := make(map[string]model.FlowSplitter, len(rows)+len(t.splitters))
	for _, row := range rows {
		merged[row.ID] = row
	}
	for id, splitter := range t.splitters {
		merged[id] = splitter
	}
	out := make([]model.FlowSplitter, 0, len(merged))
	for _, splitter := range merged {
		out = append(out, splitter)
	}
	sortSplitters(out)
	return out, nil
}

func (t *txStore) GetStream(ctx context.Context, id string) (model.Stream, bool, error) {
	if stream, ok := t.streams[id]; ok {
		return stream, true, nil
	}
	return t.base.GetStream(ctx, id)
}

func (t *txStore) SaveStream(_ context.Context, stream model.Stream) error {
	t.streams[stream.ID] = stream
	return nil
}

func (t *txStore) ListStreams(ctx context.Context) ([]model.Stream, error) {
	rows, err := t.base.ListStreams(ctx)
	if err != nil {
		return nil, err
	}
	merged := make(map[string]model.Stream, len(rows)+len(t.streams))
	for _, row := range rows {
		merged[row.ID] = row
	}
	for id, stream := range t.streams {
		merged[id] = stream
	}
	out := make([]model.Stream, 0, len(merged))
	for _, stream := range merged {
		out = append(out, stream)
	}
	sortStreams(out)
	return out, nil
}

func (t *txStore) AddDataSource(_ context.Context, address string, startBlock uint64) error {
	if existing, ok := t.dataSources[address]; ok && existing <= startBlock {
		return nil
	}
	t.dataSources[address] = startBlock
	return nil
}

func (t *txStore) DataSources(ctx context.Context) (map[string]uint64, error) {
	out, err := t.base.DataSources(ctx)
	if err != nil {
		return nil, err
	}
	for address, block := range t.dataSources {
		if existing, ok := out[address]; !ok || block < existing {
			out[address] = block
		}
	}
	return out, nil
}

func sortSplitters(out []model.FlowSplitter) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAtBlockNumber != out[j].CreatedAtBlockNumber {
			return out[i].CreatedAtBlockNumber < out[j].CreatedAtBlockNumber
		}
		return out[i].ID < out[j].ID
	})
}

func sortStreams(out []model.Stream) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAtBlockNumber != out[j].CreatedAtBlockNumber {
			return out[i].CreatedAtBlockNumber < out[j].CreatedAtBlockNumber
		}
		return out[i].ID < out[j].ID
	})
}
