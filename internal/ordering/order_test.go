package ordering

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestOrderFollowsCanonicalOrder(t *testing.T) {
	type pos struct{ block, log uint64 }
	canonical := []pos{
		{0, 0}, {0, 9999}, {1, 0}, {1, 1}, {99, 9998}, {100, 2}, {105, 0}, {105, 9999}, {1 << 40, 0},
	}

	for i := 1; i < len(canonical); i++ {
		prev, cur := canonical[i-1], canonical[i]
		if Order(prev.block, prev.log) >= Order(cur.block, cur.log) {
			t.Fatalf("order(%v) should be < order(%v)", prev, cur)
		}
	}
}

func TestOrderValue(t *testing.T) {
	if got := Order(100, 2); got != 1000002 {
		t.Fatalf("order mismatch: %d", got)
	}
}

func TestValidateLogIndex(t *testing.T) {
	if err := ValidateLogIndex(OrderMultiplier - 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateLogIndex(OrderMultiplier); err == nil {
		t.Fatalf("expected error for log index at multiplier")
	}
}

func TestEventIDInjective(t *testing.T) {
	txA := common.HexToHash("0xaa")
	txB := common.HexToHash("0xbb")

	seen := make(map[string]struct{})
	for _, kind := range []string{"FlowSplitterCreated", "SplitUpdated", "FlowUpdated"} {
		for _, tx := range []common.Hash{txA, txB} {
			for logIndex := uint64(0); logIndex < 50; logIndex++ {
				id := EventID(kind, tx, logIndex)
				if _, ok := seen[id]; ok {
					t.Fatalf("duplicate id %s", id)
				}
				seen[id] = struct{}{}
			}
		}
	}
}

func TestEventIDFormat(t *testing.T) {
	tx := common.HexToHash("0xABCDEF")
	id := EventID("SplitUpdated", tx, 7)
	want := "SplitUpdated-0x0000000000000000000000000000000000000000000000000000000000abcdef-7"
	if id != want {
		t.Fatalf("id mismatch: %s != %s", id, want)
	}
	if name := EventName(id); name != "SplitUpdated" {
		t.Fatalf("name mismatch: %s", name)
	}
}

func TestStreamID(t *testing.T) {
	got := StreamID("0xAA", "0xBB", "0xCC")
	if got != "0xbb-0xcc-0xaa" {
		t.Fatalf("stream id mismatch: %s", got)
	}
}
