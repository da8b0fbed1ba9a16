package reconcile

import (
	"context"
	"math/big"
	"strings"

	"flowsplit/internal/model"
)

// Source names used in snapshots, logs and metrics.
const (
	SourceIndexer = "indexer"
	SourceChain   = "chain"
	SourceNone    = "none"
)

// Source answers the two collection queries of the reconciliation client.
type Source interface {
	FlowSplitters(ctx context.Context, filter model.SplitterFilter) ([]model.FlowSplitter, error)
	Streams(ctx context.Context, filter model.StreamFilter) ([]model.Stream, error)
}

// Select returns the chain rows only when they are strictly more than the
// indexer rows; ties keep the indexer.
func Select[T any](indexer, chain []T) ([]T, string) {
	if len(chain) > len(indexer) {
		return chain, SourceChain
	}
	return indexer, SourceIndexer
}

func filterSplitters(rows []model.FlowSplitter, filter model.SplitterFilter) []model.FlowSplitter {
	if filter.Creator == "" {
		return rows
	}
	creator := strings.ToLower(filter.Creator)
	out := make([]model.FlowSplitter, 0, len(rows))
	for _, row := range rows {
		if strings.ToLower(row.FlowSplitterCreator) == creator {
			out = append(out, row)
		}
	}
	return out
}

// filterStreams keeps open streams from filter.Sender into filter.Receivers.
func filterStreams(rows []model.Stream, filter model.StreamFilter) []model.Stream {
	receivers := make(map[string]struct{}, len(filter.Receivers))
	for _, receiver := range filter.Receivers {
		receivers[strings.ToLower(receiver)] = struct{}{}
	}
	sender := strings.ToLower(filter.Sender)

	out := make([]model.Stream, 0, len(rows))
	for _, row := range rows {
		if strings.ToLower(row.Sender) != sender {
			continue
		}
		if _, ok := receivers[strings.ToLower(row.Receiver)]; !ok {
			continue
		}
		if !positive(row.CurrentFlowRate) {
			continue
		}
		out = append(out, row)
	}
	return out
}

func positive(rate string) bool {
	v, ok := new(big.Int).SetString(rate, 10)
	return ok && v.Sign() > 0
}
