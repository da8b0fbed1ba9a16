package indexer

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"flowsplit/internal/ordering"
)

type logKey struct {
	txHash common.Hash
	index  uint
}

// logQueue is the reordering buffer: logs come out in canonical chain order
// regardless of which query returned them, each at most once.
type logQueue struct {
	logs []types.Log
	seen map[logKey]struct{}
}

func newLogQueue() *logQueue {
	return &logQueue{seen: make(map[logKey]struct{})}
}

func logOrder(log types.Log) uint64 {
	return ordering.Order(log.BlockNumber, uint64(log.Index))
}

// push inserts logs in order and reports how many were new.
func (q *logQueue) push(logs ...types.Log) int {
	added := 0
	for _, log := range logs {
		key := logKey{txHash: log.TxHash, index: log.Index}
		if _, ok := q.seen[key]; ok {
			continue
		}
		q.seen[key] = struct{}{}

		order := logOrder(log)
		i := sort.Search(len(q.logs), func(i int) bool { return logOrder(q.logs[i]) > order })
		q.logs = append(q.logs, types.Log{})
		copy(q.logs[i+1:], q.logs[i:])
		q.logs[i] = log
		added++
	}
	return added
}

func (q *logQueue) pop() (types.Log, bool) {
	if len(q.logs) == 0 {
		return types.Log{}, false
	}
	log := q.logs[0]
	q.logs = q.logs[1:]
	return log, true
}

func (q *logQueue) len() int {
	return len(q.logs)
}
