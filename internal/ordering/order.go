package ordering

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// OrderMultiplier must stay above the largest log index a block can carry.
const OrderMultiplier uint64 = 10000

// Order returns the global position of a log: blockNumber*OrderMultiplier + logIndex.
func Order(blockNumber, logIndex uint64) uint64 {
	return blockNumber*OrderMultiplier + logIndex
}

// ValidateLogIndex rejects log indexes that would collide with the next block's orders.
func ValidateLogIndex(logIndex uint64) error {
	if logIndex >= OrderMultiplier {
		return fmt.Errorf("log index %d exceeds order multiplier %d", logIndex, OrderMultiplier)
	}
	return nil
}

// EventID builds the primary key of an event record.
func EventID(kind string, txHash common.Hash, logIndex uint64) string {
	return kind + "-" + strings.ToLower(txHash.Hex()) + "-" + strconv.FormatUint(logIndex, 10)
}

// EventName returns the event kind encoded as the id prefix.
func EventName(id string) string {
	name, _, _ := strings.Cut(id, "-")
	return name
}

// StreamID keys a stream aggregate by sender, receiver and token.
func StreamID(token, sender, receiver string) string {
	return strings.ToLower(sender) + "-" + strings.ToLower(receiver) + "-" + strings.ToLower(token)
}

// AddressKey normalizes an address for use as an aggregate key.
func AddressKey(address string) string {
	return strings.ToLower(address)
}
