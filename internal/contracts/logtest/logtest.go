// Package logtest builds ABI-encoded contract logs for tests.
package logtest

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"flowsplit/internal/contracts"
)

// Position locates a log on chain.
type Position struct {
	Block    uint64
	LogIndex uint
	TxHash   common.Hash
}

// FlowSplitterCreated builds a factory log.
func FlowSplitterCreated(factory common.Address, pos Position, superToken, splitter, creator, mainReceiver, sideReceiver common.Address, sidePortion, mainPortion int64) types.Log {
	parsed, err := contracts.FlowSplitterFactoryABI()
	if err != nil {
		panic(err)
	}
	event := parsed.Events["FlowSplitterCreated"]
	data, err := event.Inputs.NonIndexed().Pack(mainReceiver, sideReceiver, big.NewInt(sidePortion), big.NewInt(mainPortion))
	if err != nil {
		panic(err)
	}
	return build(factory, pos, data, event.ID, AddressTopic(superToken), AddressTopic(splitter), AddressTopic(creator))
}

// SplitUpdated builds a splitter log.
func SplitUpdated(splitter common.Address, pos Position, mainPortion, sidePortion int64) types.Log {
	parsed, err := contracts.FlowSplitterABI()
	if err != nil {
		panic(err)
	}
	event := parsed.Events["SplitUpdated"]
	data, err := event.Inputs.NonIndexed().Pack(big.NewInt(mainPortion), big.NewInt(sidePortion))
	if err != nil {
		panic(err)
	}
	return build(splitter, pos, data, event.ID)
}

// FlowUpdated builds a CFA log.
func FlowUpdated(cfa common.Address, pos Position, token, sender, receiver common.Address, flowRate int64) types.Log {
	parsed, err := contracts.CFAABI()
	if err != nil {
		panic(err)
	}
	event := parsed.Events["FlowUpdated"]
	data, err := event.Inputs.NonIndexed().Pack(big.NewInt(flowRate), big.NewInt(flowRate), big.NewInt(-flowRate), []byte{})
	if err != nil {
		panic(err)
	}
	return build(cfa, pos, data, event.ID, AddressTopic(token), AddressTopic(sender), AddressTopic(receiver))
}

// AddressTopic left-pads an address into an indexed topic.
func AddressTopic(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

func build(address common.Address, pos Position, data []byte, topics ...common.Hash) types.Log {
	txHash := pos.TxHash
	if txHash == (common.Hash{}) {
		txHash = common.BigToHash(new(big.Int).SetUint64(pos.Block*100000 + uint64(pos.LogIndex) + 1))
	}
	return types.Log{
		Address:     address,
		Topics:      topics,
		Data:        data,
		BlockNumber: pos.Block,
		TxHash:      txHash,
		Index:       pos.LogIndex,
		BlockHash:   common.BigToHash(new(big.Int).SetUint64(pos.Block)),
	}
}
