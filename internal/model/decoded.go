package model

import "math/big"

// EventMeta carries the block and transaction envelope of a decoded log.
type EventMeta struct {
	Address     string
	BlockNumber uint64
	BlockHash   string
	LogIndex    uint64
	TxHash      string
	Timestamp   uint64
	GasPrice    *big.Int
	// GasUsed is nil when the transaction receipt was unavailable.
	GasUsed *big.Int
}

// DecodedEvent is a contract log decoded into one of the typed payloads below.
type DecodedEvent struct {
	Kind    string
	Meta    EventMeta
	Payload interface{}
}

// FlowSplitterCreated is the decoded factory payload.
type FlowSplitterCreated struct {
	SuperToken          string
	FlowSplitter        string
	FlowSplitterCreator string
	MainReceiver        string
	SideReceiver        string
	SideReceiverPortion *big.Int
	MainReceiverPortion *big.Int
}

// SplitUpdated is the decoded splitter payload.
type SplitUpdated struct {
	MainReceiverPortion    *big.Int
	NewSideReceiverPortion *big.Int
}

// FlowUpdated is the decoded CFA payload.
type FlowUpdated struct {
	Token    string
	Sender   string
	Receiver string
	FlowRate *big.Int
}
