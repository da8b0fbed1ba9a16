package model

// Event kinds emitted by the factory, the splitters and the CFA agreement.
const (
	KindFlowSplitterCreated = "FlowSplitterCreated"
	KindSplitUpdated        = "SplitUpdated"
	KindFlowUpdated         = "FlowUpdated"
)

// Event holds the fields shared by every immutable event record.
type Event struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Order           uint64   `json:"order"`
	BlockNumber     uint64   `json:"block_number"`
	LogIndex        uint64   `json:"log_index"`
	Timestamp       uint64   `json:"timestamp"`
	TransactionHash string   `json:"transaction_hash"`
	GasPrice        string   `json:"gas_price"`
	GasUsed         *string  `json:"gas_used,omitempty"`
	Addresses       []string `json:"addresses"`
}

// EventRecord is implemented by every concrete event record type.
type EventRecord interface {
	Base() Event
}

// FlowSplitterCreatedEvent records a factory deployment of a splitter.
type FlowSplitterCreatedEvent struct {
	Event
	FlowSplitter        string `json:"flow_splitter"`
	FlowSplitterCreator string `json:"flow_splitter_creator"`
	SuperToken          string `json:"super_token"`
	MainReceiver        string `json:"main_receiver"`
	SideReceiver        string `json:"side_receiver"`
	MainReceiverPortion int64  `json:"main_receiver_portion"`
	SideReceiverPortion int64  `json:"side_receiver_portion"`
}

func (e FlowSplitterCreatedEvent) Base() Event { return e.Event }

// SplitUpdatedEvent records a change of the split ratio on a splitter.
type SplitUpdatedEvent struct {
	Event
	FlowSplitter           string `json:"flow_splitter"`
	MainReceiverPortion    int64  `json:"main_receiver_portion"`
	NewSideReceiverPortion int64  `json:"new_side_receiver_portion"`
}

func (e SplitUpdatedEvent) Base() Event { return e.Event }

// FlowUpdatedEvent records a CFA flow change towards a watched splitter.
type FlowUpdatedEvent struct {
	Event
	Token    string `json:"token"`
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
	FlowRate string `json:"flow_rate"`
}

func (e FlowUpdatedEvent) Base() Event { return e.Event }
