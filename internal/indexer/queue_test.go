package indexer

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

func TestLogQueueOrdersAndDedups(t *testing.T) {
	q := newLogQueue()
	mk := func(block uint64, index uint) types.Log {
		return types.Log{BlockNumber: block, Index: index, TxHash: common.BigToHash(common.Big1)}
	}

	if n := q.push(mk(105, 0), mk(100, 2), mk(100, 7)); n != 3 {
		t.Fatalf("expected 3 pushed, got %d", n)
	}
	if n := q.push(mk(100, 2), mk(101, 0)); n != 1 {
		t.Fatalf("expected 1 new log, got %d", n)
	}

	want := [][2]uint64{{100, 2}, {100, 7}, {101, 0}, {105, 0}}
	for i, w := range want {
		log, ok := q.pop()
		if !ok {
			t.Fatalf("queue empty at %d", i)
		}
		if log.BlockNumber != w[0] || uint64(log.Index) != w[1] {
			t.Fatalf("pop %d: got %d/%d want %v", i, log.BlockNumber, log.Index, w)
		}
	}
	if q.len() != 0 {
		t.Fatalf("queue should be empty")
	}
}
