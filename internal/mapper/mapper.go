package mapper

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"flowsplit/internal/model"
	"flowsplit/internal/ordering"
)

// ErrMalformedEvent marks a decoded event that is missing required fields.
// Nothing has been written when it is returned.
var ErrMalformedEvent = errors.New("malformed event")

// Store is the subset of storage the mapper writes to.
type Store interface {
	SaveEvent(ctx context.Context, event model.EventRecord) error
	GetFlowSplitter(ctx context.Context, id string) (model.FlowSplitter, bool, error)
	SaveFlowSplitter(ctx context.Context, splitter model.FlowSplitter) error
	GetStream(ctx context.Context, id string) (model.Stream, bool, error)
	SaveStream(ctx context.Context, stream model.Stream) error
	AddDataSource(ctx context.Context, address string, startBlock uint64) error
}

// Mapper turns decoded events into event records and aggregate updates.
type Mapper struct {
	store  Store
	logger *zap.Logger
}

func New(store Store, logger *zap.Logger) *Mapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mapper{store: store, logger: logger}
}

// WithStore returns a mapper that writes to store, typically a transaction.
func (m *Mapper) WithStore(store Store) *Mapper {
	return &Mapper{store: store, logger: m.logger}
}

// Handle dispatches a decoded event to its kind handler.
func (m *Mapper) Handle(ctx context.Context, event model.DecodedEvent) error {
	switch payload := event.Payload.(type) {
	case model.FlowSplitterCreated:
		return m.HandleFlowSplitterCreated(ctx, event.Meta, payload)
	case model.SplitUpdated:
		return m.HandleSplitUpdated(ctx, event.Meta, payload)
	case model.FlowUpdated:
		return m.HandleFlowUpdated(ctx, event.Meta, payload)
	default:
		return fmt.Errorf("%w: unsupported payload %T for %s", ErrMalformedEvent, event.Payload, event.Kind)
	}
}

// HandleFlowSplitterCreated records the factory event, registers the new splitter
// as a data source and initializes its aggregate.
func (m *Mapper) HandleFlowSplitterCreated(ctx context.Context, meta model.EventMeta, ev model.FlowSplitterCreated) error {
	if err := validateMeta(meta); err != nil {
		return err
	}
	if !isAddress(ev.FlowSplitter) || !isAddress(ev.SuperToken) || !isAddress(ev.MainReceiver) || !isAddress(ev.SideReceiver) {
		return fmt.Errorf("%w: %s missing address fields", ErrMalformedEvent, model.KindFlowSplitterCreated)
	}
	mainPortion, err := portion(ev.MainReceiverPortion, "mainReceiverPortion")
	if err != nil {
		return err
	}
	sidePortion, err := portion(ev.SideReceiverPortion, "sideReceiverPortion")
	if err != nil {
		return err
	}

	splitterID := ordering.AddressKey(ev.FlowSplitter)
	record := model.FlowSplitterCreatedEvent{
		Event:               newEvent(model.KindFlowSplitterCreated, meta, []string{splitterID, ordering.AddressKey(ev.SuperToken)}),
		FlowSplitter:        splitterID,
		FlowSplitterCreator: ordering.AddressKey(ev.FlowSplitterCreator),
		SuperToken:          ordering.AddressKey(ev.SuperToken),
		MainReceiver:        ordering.AddressKey(ev.MainReceiver),
		SideReceiver:        ordering.AddressKey(ev.SideReceiver),
		MainReceiverPortion: mainPortion,
		SideReceiverPortion: sidePortion,
	}
	if err := m.store.SaveEvent(ctx, record); err != nil {
		return fmt.Errorf("save %s: %w", record.ID, err)
	}

	if err := m.store.AddDataSource(ctx, splitterID, meta.BlockNumber); err != nil {
		return fmt.Errorf("register data source %s: %w", splitterID, err)
	}

	splitter, _, err := ordering.GetOrInitFlowSplitter(ctx, m.store, splitterID, meta)
	if err != nil {
		return fmt.Errorf("load flow splitter %s: %w", splitterID, err)
	}
	splitter.SuperToken = record.SuperToken
	splitter.FlowSplitterCreator = record.FlowSplitterCreator
	splitter.MainReceiver = record.MainReceiver
	splitter.SideReceiver = record.SideReceiver
	splitter.MainReceiverPortion = mainPortion
	splitter.SideReceiverPortion = sidePortion
	splitter.FlowSplitterCreatedEvent = record.ID
	m.checkPortions(*splitter, record.ID)

	if err := m.store.SaveFlowSplitter(ctx, *splitter); err != nil {
		return fmt.Errorf("save flow splitter %s: %w", splitterID, err)
	}
	return nil
}

// HandleSplitUpdated records a split change and applies it to the emitting splitter,
// creating the aggregate if its creation was never observed.
func (m *Mapper) HandleSplitUpdated(ctx context.Context, meta model.EventMeta, ev model.SplitUpdated) error {
	if err := validateMeta(meta); err != nil {
		return err
	}
	if !isAddress(meta.Address) {
		return fmt.Errorf("%w: %s emitter address missing", ErrMalformedEvent, model.KindSplitUpdated)
	}
	mainPortion, err := portion(ev.MainReceiverPortion, "mainReceiverPortion")
	if err != nil {
		return err
	}
	sidePortion, err := portion(ev.NewSideReceiverPortion, "newSideReceiverPortion")
	if err != nil {
		return err
	}

	splitterID := ordering.AddressKey(meta.Address)
	record := model.SplitUpdatedEvent{
		Event:                  newEvent(model.KindSplitUpdated, meta, []string{splitterID}),
		FlowSplitter:           splitterID,
		MainReceiverPortion:    mainPortion,
		NewSideReceiverPortion: sidePortion,
	}
	if err := m.store.SaveEvent(ctx, record); err != nil {
		return fmt.Errorf("save %s: %w", record.ID, err)
	}

	splitter, isNew, err := ordering.GetOrInitFlowSplitter(ctx, m.store, splitterID, meta)
	if err != nil {
		return fmt.Errorf("load flow splitter %s: %w", splitterID, err)
	}
	if isNew {
		m.logger.Warn("split updated before creation observed",
			zap.String("flow_splitter", splitterID),
			zap.Uint64("block_number", meta.BlockNumber),
		)
	}
	splitter.MainReceiverPortion = mainPortion
	splitter.SideReceiverPortion = sidePortion
	m.checkPortions(*splitter, record.ID)

	if err := m.store.SaveFlowSplitter(ctx, *splitter); err != nil {
		return fmt.Errorf("save flow splitter %s: %w", splitterID, err)
	}
	return nil
}

// HandleFlowUpdated records a CFA flow change and updates the stream aggregate.
func (m *Mapper) HandleFlowUpdated(ctx context.Context, meta model.EventMeta, ev model.FlowUpdated) error {
	if err := validateMeta(meta); err != nil {
		return err
	}
	if !isAddress(ev.Token) || !isAddress(ev.Sender) || !isAddress(ev.Receiver) {
		return fmt.Errorf("%w: %s missing address fields", ErrMalformedEvent, model.KindFlowUpdated)
	}
	if ev.FlowRate == nil {
		return fmt.Errorf("%w: %s missing flowRate", ErrMalformedEvent, model.KindFlowUpdated)
	}

	record := model.FlowUpdatedEvent{
		Event: newEvent(model.KindFlowUpdated, meta, []string{
			ordering.AddressKey(ev.Token), ordering.AddressKey(ev.Sender), ordering.AddressKey(ev.Receiver),
		}),
		Token:    ordering.AddressKey(ev.Token),
		Sender:   ordering.AddressKey(ev.Sender),
		Receiver: ordering.AddressKey(ev.Receiver),
		FlowRate: ev.FlowRate.String(),
	}
	if err := m.store.SaveEvent(ctx, record); err != nil {
		return fmt.Errorf("save %s: %w", record.ID, err)
	}

	stream, _, err := ordering.GetOrInitStream(ctx, m.store, ev.Token, ev.Sender, ev.Receiver, meta)
	if err != nil {
		return fmt.Errorf("load stream: %w", err)
	}
	stream.CurrentFlowRate = record.FlowRate

	if err := m.store.SaveStream(ctx, *stream); err != nil {
		return fmt.Errorf("save stream %s: %w", stream.ID, err)
	}
	return nil
}

func (m *Mapper) checkPortions(splitter model.FlowSplitter, eventID string) {
	if splitter.MainReceiverPortion+splitter.SideReceiverPortion != model.PortionTotal {
		m.logger.Warn("portions do not sum to total",
			zap.String("flow_splitter", splitter.ID),
			zap.String("event", eventID),
			zap.Int64("main_receiver_portion", splitter.MainReceiverPortion),
			zap.Int64("side_receiver_portion", splitter.SideReceiverPortion),
		)
	}
}

func newEvent(kind string, meta model.EventMeta, addresses []string) model.Event {
	id := ordering.EventID(kind, common.HexToHash(meta.TxHash), meta.LogIndex)
	event := model.Event{
		ID:              id,
		Name:            ordering.EventName(id),
		Order:           ordering.Order(meta.BlockNumber, meta.LogIndex),
		BlockNumber:     meta.BlockNumber,
		LogIndex:        meta.LogIndex,
		Timestamp:       meta.Timestamp,
		TransactionHash: strings.ToLower(meta.TxHash),
		GasPrice:        "0",
		Addresses:       addresses,
	}
	if meta.GasPrice != nil {
		event.GasPrice = meta.GasPrice.String()
	}
	if meta.GasUsed != nil {
		used := meta.GasUsed.String()
		event.GasUsed = &used
	}
	return event
}

func validateMeta(meta model.EventMeta) error {
	if meta.TxHash == "" {
		return fmt.Errorf("%w: missing transaction hash", ErrMalformedEvent)
	}
	if err := ordering.ValidateLogIndex(meta.LogIndex); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return nil
}

func portion(value *big.Int, field string) (int64, error) {
	if value == nil {
		return 0, fmt.Errorf("%w: missing %s", ErrMalformedEvent, field)
	}
	if !value.IsInt64() {
		return 0, fmt.Errorf("%w: %s out of range: %s", ErrMalformedEvent, field, value)
	}
	return value.Int64(), nil
}

func isAddress(value string) bool {
	return common.IsHexAddress(value) && common.HexToAddress(value) != (common.Address{})
}
