package indexer

import (
	"github.com/ethereum/go-ethereum/core/types"

	"flowsplit/internal/chain"
	"flowsplit/internal/model"
)

func buildMappingError(log types.Log, kind string, err error) model.MappingError {
	record := model.MappingError{
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash.Hex(),
		LogIndex:    uint64(log.Index),
		Address:     log.Address.Hex(),
		Kind:        kind,
		Error:       err.Error(),
	}
	if len(log.Topics) > 0 {
		record.Topic0 = log.Topics[0].Hex()
	}
	return record
}

// withEnvelope fills the block and transaction fields the decoder leaves empty.
func withEnvelope(event model.DecodedEvent, timestamp uint64, gas chain.TxGas) model.DecodedEvent {
	event.Meta.Timestamp = timestamp
	event.Meta.GasPrice = gas.Price
	event.Meta.GasUsed = gas.Used
	return event
}
