package ordering

import (
	"context"

	"flowsplit/internal/model"
)

// FlowSplitterGetter looks up splitter aggregates by key.
type FlowSplitterGetter interface {
	GetFlowSplitter(ctx context.Context, id string) (model.FlowSplitter, bool, error)
}

// StreamGetter looks up stream aggregates by key.
type StreamGetter interface {
	GetStream(ctx context.Context, id string) (model.Stream, bool, error)
}

// GetOrInitFlowSplitter loads the splitter at address or starts a new one stamped
// with the event's block. UpdatedAt is always moved to the event's block.
// Nothing is written; the caller persists the result.
func GetOrInitFlowSplitter(ctx context.Context, store FlowSplitterGetter, address string, meta model.EventMeta) (*model.FlowSplitter, bool, error) {
	id := AddressKey(address)
	existing, ok, err := store.GetFlowSplitter(ctx, id)
	if err != nil {
		return nil, false, err
	}

	splitter := &existing
	if !ok {
		splitter = &model.FlowSplitter{
			ID:                   id,
			CreatedAtTimestamp:   meta.Timestamp,
			CreatedAtBlockNumber: meta.BlockNumber,
		}
	}
	splitter.UpdatedAtTimestamp = meta.Timestamp
	splitter.UpdatedAtBlockNumber = meta.BlockNumber
	return splitter, !ok, nil
}

// GetOrInitStream is the stream counterpart of GetOrInitFlowSplitter.
func GetOrInitStream(ctx context.Context, store StreamGetter, token, sender, receiver string, meta model.EventMeta) (*model.Stream, bool, error) {
	id := StreamID(token, sender, receiver)
	existing, ok, err := store.GetStream(ctx, id)
	if err != nil {
		return nil, false, err
	}

	stream := &existing
	if !ok {
		stream = &model.Stream{
			ID:                   id,
			CreatedAtTimestamp:   meta.Timestamp,
			CreatedAtBlockNumber: meta.BlockNumber,
			Token:                AddressKey(token),
			Sender:               AddressKey(sender),
			Receiver:             AddressKey(receiver),
			CurrentFlowRate:      "0",
		}
	}
	stream.UpdatedAtTimestamp = meta.Timestamp
	stream.UpdatedAtBlockNumber = meta.BlockNumber
	return stream, !ok, nil
}
