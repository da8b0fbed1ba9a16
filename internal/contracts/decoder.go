package contracts

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"flowsplit/internal/model"
)

// Decoder turns factory, splitter and CFA logs into typed events.
type Decoder struct {
	events map[common.Hash]abi.Event
	kinds  map[common.Hash]string
	topics map[string]common.Hash
}

// NewDecoder builds a decoder for the three supported event kinds.
func NewDecoder() (*Decoder, error) {
	factory, err := FlowSplitterFactoryABI()
	if err != nil {
		return nil, fmt.Errorf("parse factory abi: %w", err)
	}
	splitter, err := FlowSplitterABI()
	if err != nil {
		return nil, fmt.Errorf("parse splitter abi: %w", err)
	}
	cfa, err := CFAABI()
	if err != nil {
		return nil, fmt.Errorf("parse cfa abi: %w", err)
	}

	d := &Decoder{
		events: make(map[common.Hash]abi.Event),
		kinds:  make(map[common.Hash]string),
		topics: make(map[string]common.Hash),
	}
	d.register(model.KindFlowSplitterCreated, factory.Events[model.KindFlowSplitterCreated])
	d.register(model.KindSplitUpdated, splitter.Events[model.KindSplitUpdated])
	d.register(model.KindFlowUpdated, cfa.Events[model.KindFlowUpdated])
	return d, nil
}

func (d *Decoder) register(kind string, event abi.Event) {
	d.events[event.ID] = event
	d.kinds[event.ID] = kind
	d.topics[kind] = event.ID
}

// Topic returns the topic0 hash of an event kind.
func (d *Decoder) Topic(kind string) common.Hash {
	return d.topics[kind]
}

// CanDecode reports whether topic0 belongs to a supported event.
func (d *Decoder) CanDecode(topic0 common.Hash) bool {
	_, ok := d.kinds[topic0]
	return ok
}

// Decode converts a raw log into a DecodedEvent. Timestamp and gas fields are
// left for the caller to fill.
func (d *Decoder) Decode(log types.Log) (model.DecodedEvent, error) {
	if len(log.Topics) == 0 {
		return model.DecodedEvent{}, fmt.Errorf("missing topic0")
	}
	if log.Removed {
		return model.DecodedEvent{}, fmt.Errorf("log removed by reorg")
	}
	kind, ok := d.kinds[log.Topics[0]]
	if !ok {
		return model.DecodedEvent{}, fmt.Errorf("unsupported topic0: %s", log.Topics[0].Hex())
	}
	event := d.events[log.Topics[0]]

	decoded := model.DecodedEvent{
		Kind: kind,
		Meta: model.EventMeta{
			Address:     lowerHex(log.Address),
			BlockNumber: log.BlockNumber,
			BlockHash:   log.BlockHash.Hex(),
			LogIndex:    uint64(log.Index),
			TxHash:      log.TxHash.Hex(),
		},
	}

	var err error
	switch kind {
	case model.KindFlowSplitterCreated:
		decoded.Payload, err = decodeFlowSplitterCreated(event, log)
	case model.KindSplitUpdated:
		decoded.Payload, err = decodeSplitUpdated(event, log)
	case model.KindFlowUpdated:
		decoded.Payload, err = decodeFlowUpdated(event, log)
	}
	if err != nil {
		return model.DecodedEvent{}, fmt.Errorf("decode %s: %w", kind, err)
	}
	return decoded, nil
}

func decodeFlowSplitterCreated(event abi.Event, log types.Log) (model.FlowSplitterCreated, error) {
	var indexed struct {
		SuperToken          common.Address
		FlowSplitter        common.Address
		FlowSplitterCreator common.Address
	}
	if err := parseIndexed(event, log.Topics, &indexed); err != nil {
		return model.FlowSplitterCreated{}, err
	}

	values, err := unpackNonIndexed(event, log.Data, 4)
	if err != nil {
		return model.FlowSplitterCreated{}, err
	}
	mainReceiver, err := asAddress(values[0])
	if err != nil {
		return model.FlowSplitterCreated{}, fmt.Errorf("main receiver: %w", err)
	}
	sideReceiver, err := asAddress(values[1])
	if err != nil {
		return model.FlowSplitterCreated{}, fmt.Errorf("side receiver: %w", err)
	}
	sidePortion, err := asBigInt(values[2])
	if err != nil {
		return model.FlowSplitterCreated{}, fmt.Errorf("side receiver portion: %w", err)
	}
	mainPortion, err := asBigInt(values[3])
	if err != nil {
		return model.FlowSplitterCreated{}, fmt.Errorf("main receiver portion: %w", err)
	}

	return model.FlowSplitterCreated{
		SuperToken:          lowerHex(indexed.SuperToken),
		FlowSplitter:        lowerHex(indexed.FlowSplitter),
		FlowSplitterCreator: lowerHex(indexed.FlowSplitterCreator),
		MainReceiver:        lowerHex(mainReceiver),
		SideReceiver:        lowerHex(sideReceiver),
		SideReceiverPortion: sidePortion,
		MainReceiverPortion: mainPortion,
	}, nil
}

func decodeSplitUpdated(event abi.Event, log types.Log) (model.SplitUpdated, error) {
	if len(log.Topics) != 1 {
		return model.SplitUpdated{}, fmt.Errorf("expected 1 topic, got %d", len(log.Topics))
	}
	values, err := unpackNonIndexed(event, log.Data, 2)
	if err != nil {
		return model.SplitUpdated{}, err
	}
	mainPortion, err := asBigInt(values[0])
	if err != nil {
		return model.SplitUpdated{}, fmt.Errorf("main receiver portion: %w", err)
	}
	sidePortion, err := asBigInt(values[1])
	if err != nil {
		return model.SplitUpdated{}, fmt.Errorf("side receiver portion: %w", err)
	}
	return model.SplitUpdated{
		MainReceiverPortion:    mainPortion,
		NewSideReceiverPortion: sidePortion,
	}, nil
}

func decodeFlowUpdated(event abi.Event, log types.Log) (model.FlowUpdated, error) {
	var indexed struct {
		Token    common.Address
		Sender   common.Address
		Receiver common.Address
	}
	if err := parseIndexed(event, log.Topics, &indexed); err != nil {
		return model.FlowUpdated{}, err
	}

	values, err := unpackNonIndexed(event, log.Data, 4)
	if err != nil {
		return model.FlowUpdated{}, err
	}
	flowRate, err := asBigInt(values[0])
	if err != nil {
		return model.FlowUpdated{}, fmt.Errorf("flow rate: %w", err)
	}

	return model.FlowUpdated{
		Token:    lowerHex(indexed.Token),
		Sender:   lowerHex(indexed.Sender),
		Receiver: lowerHex(indexed.Receiver),
		FlowRate: flowRate,
	}, nil
}

func parseIndexed(event abi.Event, topics []common.Hash, out interface{}) error {
	indexed := indexedArguments(event.Inputs)
	if len(topics) != len(indexed)+1 {
		return fmt.Errorf("expected %d topics, got %d", len(indexed)+1, len(topics))
	}
	if err := abi.ParseTopics(out, indexed, topics[1:]); err != nil {
		return fmt.Errorf("parse topics: %w", err)
	}
	return nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

func unpackNonIndexed(event abi.Event, data []byte, want int) ([]interface{}, error) {
	values, err := event.Inputs.NonIndexed().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	if len(values) != want {
		return nil, fmt.Errorf("unexpected %s values: %d", event.Name, len(values))
	}
	return values, nil
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

func asUint8(value interface{}) (uint8, error) {
	switch v := value.(type) {
	case uint8:
		return v, nil
	case *big.Int:
		return uint8(v.Uint64()), nil
	default:
		return 0, fmt.Errorf("unsupported uint8 type %T", value)
	}
}

func lowerHex(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}
