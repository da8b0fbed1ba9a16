package model

// PortionTotal is the permille denominator shared by main and side portions.
const PortionTotal = 1000

// FlowSplitter is the current state of one deployed splitter, keyed by address.
type FlowSplitter struct {
	ID                       string `json:"id"`
	CreatedAtTimestamp       uint64 `json:"created_at_timestamp"`
	CreatedAtBlockNumber     uint64 `json:"created_at_block_number"`
	UpdatedAtTimestamp       uint64 `json:"updated_at_timestamp"`
	UpdatedAtBlockNumber     uint64 `json:"updated_at_block_number"`
	SuperToken               string `json:"super_token"`
	FlowSplitterCreator      string `json:"flow_splitter_creator"`
	MainReceiver             string `json:"main_receiver"`
	SideReceiver             string `json:"side_receiver"`
	MainReceiverPortion      int64  `json:"main_receiver_portion"`
	SideReceiverPortion      int64  `json:"side_receiver_portion"`
	FlowSplitterCreatedEvent string `json:"flow_splitter_created_event,omitempty"`
}

// SplitterFilter narrows a splitter collection. Empty fields match everything.
type SplitterFilter struct {
	Creator string
}
