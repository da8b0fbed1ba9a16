package model

// MappingError records a log that could not be decoded or mapped.
type MappingError struct {
	BlockNumber uint64 `json:"block_number"`
	TxHash      string `json:"tx_hash"`
	LogIndex    uint64 `json:"log_index"`
	Address     string `json:"address"`
	Topic0      string `json:"topic0"`
	Kind        string `json:"kind,omitempty"`
	Error       string `json:"error"`
}
