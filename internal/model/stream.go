package model

// Stream is the current state of one sender -> receiver flow of a token.
type Stream struct {
	ID                   string `json:"id"`
	CreatedAtTimestamp   uint64 `json:"created_at_timestamp"`
	CreatedAtBlockNumber uint64 `json:"created_at_block_number"`
	UpdatedAtTimestamp   uint64 `json:"updated_at_timestamp"`
	UpdatedAtBlockNumber uint64 `json:"updated_at_block_number"`
	Token                string `json:"token"`
	Sender               string `json:"sender"`
	Receiver             string `json:"receiver"`
	CurrentFlowRate      string `json:"current_flow_rate"`
}

// StreamFilter narrows a stream collection to open flows from Sender into Receivers.
type StreamFilter struct {
	Sender    string
	Receivers []string
}
