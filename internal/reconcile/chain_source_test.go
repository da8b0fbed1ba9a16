package reconcile

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"flowsplit/internal/chain"
	"flowsplit/internal/contracts/logtest"
	"flowsplit/internal/model"
)

type logChain struct {
	head uint64
	logs []types.Log
}

func (c *logChain) LatestBlockNumber(context.Context) (uint64, error) { return c.head, nil }

func (c *logChain) BlockTimestamp(_ context.Context, number uint64) (uint64, error) {
	return 1700000000 + number, nil
}

func (c *logChain) TransactionGas(context.Context, common.Hash) (chain.TxGas, error) {
	return chain.TxGas{Price: big.NewInt(1), Used: big.NewInt(21000)}, nil
}

func (c *logChain) FilterLogs(_ context.Context, from, to uint64, addresses []common.Address, topics [][]common.Hash) ([]types.Log, error) {
	var out []types.Log
	for _, log := range c.logs {
		if log.BlockNumber < from || log.BlockNumber > to {
			continue
		}
		if !inAddresses(addresses, log.Address) || !topicsMatch(topics, log.Topics) {
			continue
		}
		out = append(out, log)
	}
	return out, nil
}

func inAddresses(list []common.Address, addr common.Address) bool {
	if len(list) == 0 {
		return true
	}
	for _, a := range list {
		if a == addr {
			return true
		}
	}
	return false
}

func topicsMatch(filter [][]common.Hash, topics []common.Hash) bool {
	for i, options := range filter {
		if len(options) == 0 {
			continue
		}
		if i >= len(topics) {
			return false
		}
		ok := false
		for _, option := range options {
			ok = ok || option == topics[i]
		}
		if !ok {
			return false
		}
	}
	return true
}

func TestChainSourceReplaysLogs(t *testing.T) {
	factory := common.HexToAddress("0x7167d60bb1fa2b7718fd15a72bcab2f0718a5523")
	cfa := common.HexToAddress("0x49e565ed1bdc17f3d220f72df0857c26fa83f873")
	token := common.HexToAddress(tokenX)
	aliceAddr := common.HexToAddress(alice)
	bobAddr := common.HexToAddress(bob)
	first := common.HexToAddress("0x2222222222222222222222222222222222222222")
	second := common.HexToAddress("0x6666666666666666666666666666666666666666")
	mainRecv := common.HexToAddress("0x4444444444444444444444444444444444444444")
	sideRecv := common.HexToAddress("0x5555555555555555555555555555555555555555")

	lc := &logChain{head: 30, logs: []types.Log{
		logtest.FlowSplitterCreated(factory, logtest.Position{Block: 10, LogIndex: 1}, token, first, aliceAddr, mainRecv, sideRecv, 250, 750),
		logtest.FlowSplitterCreated(factory, logtest.Position{Block: 12, LogIndex: 0}, token, second, bobAddr, mainRecv, sideRecv, 100, 900),
		logtest.FlowUpdated(cfa, logtest.Position{Block: 15, LogIndex: 3}, token, aliceAddr, first, 777),
		logtest.FlowUpdated(cfa, logtest.Position{Block: 16, LogIndex: 0}, token, aliceAddr, second, 0),
		logtest.SplitUpdated(first, logtest.Position{Block: 20, LogIndex: 0}, 500, 500),
	}}

	source, err := NewChainSource(ChainSourceConfig{
		DeploymentBlock: 5,
		Factory:         factory,
		CFA:             cfa,
		BatchSize:       8,
	}, lc, nil)
	if err != nil {
		t.Fatalf("new chain source: %v", err)
	}

	ctx := context.Background()
	splitters, err := source.FlowSplitters(ctx, model.SplitterFilter{})
	if err != nil {
		t.Fatalf("flow splitters: %v", err)
	}
	if len(splitters) != 2 {
		t.Fatalf("expected 2 splitters, got %+v", splitters)
	}
	if splitters[0].ID != "0x2222222222222222222222222222222222222222" || splitters[0].SideReceiverPortion != 500 {
		t.Fatalf("first splitter mismatch: %+v", splitters[0])
	}

	mine, _ := source.FlowSplitters(ctx, model.SplitterFilter{Creator: bob})
	if len(mine) != 1 || mine[0].ID != "0x6666666666666666666666666666666666666666" {
		t.Fatalf("creator filter mismatch: %+v", mine)
	}

	streams, err := source.Streams(ctx, model.StreamFilter{
		Sender:    alice,
		Receivers: []string{splitters[0].ID, splitters[1].ID},
	})
	if err != nil {
		t.Fatalf("streams: %v", err)
	}
	if len(streams) != 1 || streams[0].CurrentFlowRate != "777" {
		t.Fatalf("expected one open stream, got %+v", streams)
	}

	// New blocks are picked up incrementally on the next query.
	lc.logs = append(lc.logs, logtest.SplitUpdated(second, logtest.Position{Block: 35, LogIndex: 0}, 300, 700))
	lc.head = 40
	splitters, _ = source.FlowSplitters(ctx, model.SplitterFilter{})
	if splitters[1].SideReceiverPortion != 700 {
		t.Fatalf("incremental replay missed update: %+v", splitters[1])
	}
}

func TestChainSourcePacing(t *testing.T) {
	source, err := NewChainSource(ChainSourceConfig{
		Factory:           common.HexToAddress("0x7167d60bb1fa2b7718fd15a72bcab2f0718a5523"),
		BatchSize:         100,
		RequestsPerSecond: 1000,
	}, &logChain{head: 10}, nil)
	if err != nil {
		t.Fatalf("new chain source: %v", err)
	}
	if _, err := source.FlowSplitters(context.Background(), model.SplitterFilter{}); err != nil {
		t.Fatalf("flow splitters: %v", err)
	}
}
