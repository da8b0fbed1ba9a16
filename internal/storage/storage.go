package storage

import (
	"context"

	"flowsplit/internal/model"
)

// Store persists event records, aggregates and the watched data sources.
type Store interface {
	SaveEvent(ctx context.Context, event model.EventRecord) error
	GetFlowSplitter(ctx context.Context, id string) (model.FlowSplitter, bool, error)
	SaveFlowSplitter(ctx context.Context, splitter model.FlowSplitter) error
	ListFlowSplitters(ctx context.Context) ([]model.FlowSplitter, error)
	GetStream(ctx context.Context, id string) (model.Stream, bool, error)
	SaveStream(ctx context.Context, stream model.Stream) error
	ListStreams(ctx context.Context) ([]model.Stream, error)
	AddDataSource(ctx context.Context, address string, startBlock uint64) error
	DataSources(ctx context.Context) (map[string]uint64, error)
}

// TxStore runs fn so that all of its writes apply together or not at all.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}

// FaultSink receives logs that failed decoding or mapping.
type FaultSink interface {
	PutMappingErrors(errs []model.MappingError) error
}
