package reconcile

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"flowsplit/internal/chain"
	"flowsplit/internal/indexer"
	"flowsplit/internal/model"
	"flowsplit/internal/storage/memory"
)

// ChainSource rebuilds the indexer's entities straight from contract logs by
// replaying them through the same mapper into an in-memory store. Each query
// first catches up from the last replayed block to the head.
type ChainSource struct {
	mu     sync.Mutex
	runner *indexer.Runner
	store  *memory.Store
}

// ChainSourceConfig configures the log replay.
type ChainSourceConfig struct {
	DeploymentBlock uint64
	Factory         common.Address
	CFA             common.Address
	BatchSize       uint64
	// RequestsPerSecond paces RPC calls; zero disables pacing.
	RequestsPerSecond float64
	MaxRetries        int
}

func NewChainSource(cfg ChainSourceConfig, client indexer.Chain, logger *zap.Logger) (*ChainSource, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		client = &pacedChain{inner: client, limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)}
	}

	store := memory.NewStore()
	runner, err := indexer.NewRunner(indexer.RunConfig{
		FromBlock:  cfg.DeploymentBlock,
		Factory:    cfg.Factory,
		CFA:        cfg.CFA,
		BatchSize:  cfg.BatchSize,
		MaxRetries: cfg.MaxRetries,
	}, client, store, nil, &indexer.MemoryCheckpoint{}, logger.Named("chain_source"))
	if err != nil {
		return nil, fmt.Errorf("build chain runner: %w", err)
	}
	return &ChainSource{runner: runner, store: store}, nil
}

func (s *ChainSource) sync(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.runner.Run(ctx); err != nil {
		return fmt.Errorf("replay chain logs: %w", err)
	}
	return nil
}

func (s *ChainSource) FlowSplitters(ctx context.Context, filter model.SplitterFilter) ([]model.FlowSplitter, error) {
	if err := s.sync(ctx); err != nil {
		return nil, err
	}
	rows, err := s.store.ListFlowSplitters(ctx)
	if err != nil {
		return nil, err
	}
	return filterSplitters(rows, filter), nil
}

func (s *ChainSource) Streams(ctx context.Context, filter model.StreamFilter) ([]model.Stream, error) {
	if err := s.sync(ctx); err != nil {
		return nil, err
	}
	rows, err := s.store.ListStreams(ctx)
	if err != nil {
		return nil, err
	}
	return filterStreams(rows, filter), nil
}

// pacedChain waits on a shared limiter before every RPC call.
type pacedChain struct {
	inner   indexer.Chain
	limiter *rate.Limiter
}

func (p *pacedChain) LatestBlockNumber(ctx context.Context) (uint64, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	return p.inner.LatestBlockNumber(ctx)
}

func (p *pacedChain) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	return p.inner.BlockTimestamp(ctx, number)
}

func (p *pacedChain) TransactionGas(ctx context.Context, hash common.Hash) (chain.TxGas, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return chain.TxGas{}, err
	}
	return p.inner.TransactionGas(ctx, hash)
}

func (p *pacedChain) FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topics [][]common.Hash) ([]types.Log, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return p.inner.FilterLogs(ctx, fromBlock, toBlock, addresses, topics)
}
