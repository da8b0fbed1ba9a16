package indexer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"flowsplit/internal/chain"
	"flowsplit/internal/contracts"
	"flowsplit/internal/mapper"
	"flowsplit/internal/metrics"
	"flowsplit/internal/model"
	"flowsplit/internal/storage"
)

// Chain is the subset of the RPC client the runner reads from.
type Chain interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
	TransactionGas(ctx context.Context, hash common.Hash) (chain.TxGas, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topics [][]common.Hash) ([]types.Log, error)
}

// RunConfig holds runtime settings for the indexer.
type RunConfig struct {
	FromBlock    uint64
	ToBlock      uint64
	Factory      common.Address
	CFA          common.Address
	BatchSize    uint64
	MaxRetries   int
	RetryBackoff time.Duration
	Follow       bool
	PollInterval time.Duration
}

// Runner fetches factory, splitter and CFA logs, orders them canonically and
// applies each one through the mapper inside a store transaction.
type Runner struct {
	cfg        RunConfig
	chain      Chain
	store      storage.TxStore
	faults     storage.FaultSink
	checkpoint Checkpointer
	decoder    *contracts.Decoder
	mapper     *mapper.Mapper
	metrics    *metrics.IndexerMetrics
	logger     *zap.Logger

	watched map[common.Address]uint64
}

// NewRunner builds a Runner with its dependencies. faults and checkpoint may be nil.
func NewRunner(cfg RunConfig, chainClient Chain, store storage.TxStore, faults storage.FaultSink, checkpoint Checkpointer, logger *zap.Logger) (*Runner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	decoder, err := contracts.NewDecoder()
	if err != nil {
		return nil, err
	}
	return &Runner{
		cfg:        cfg,
		chain:      chainClient,
		store:      store,
		faults:     faults,
		checkpoint: checkpoint,
		decoder:    decoder,
		mapper:     mapper.New(store, logger),
		logger:     logger,
		watched:    make(map[common.Address]uint64),
	}, nil
}

// WithMetrics attaches runner metrics.
func (r *Runner) WithMetrics(m *metrics.IndexerMetrics) *Runner {
	r.metrics = m
	return r
}

// Run executes the indexing loop. With Follow set and no ToBlock it keeps
// tailing the head until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	if r.chain == nil {
		return fmt.Errorf("chain client is nil")
	}
	if r.store == nil {
		return fmt.Errorf("store is nil")
	}
	if r.cfg.BatchSize == 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}
	if r.cfg.Factory == (common.Address{}) {
		return fmt.Errorf("factory address is required")
	}

	if err := r.loadDataSources(ctx); err != nil {
		return err
	}

	from := r.cfg.FromBlock
	if r.checkpoint != nil {
		last, ok, err := r.checkpoint.Load(ctx)
		if err != nil {
			return err
		}
		if ok && last >= from {
			from = last + 1
			r.logger.Info("resume from checkpoint", zap.Uint64("last_processed", last), zap.Uint64("from", from))
		}
	}

	for {
		to := r.cfg.ToBlock
		if to == 0 {
			latest, err := r.latestBlockWithRetry(ctx)
			if err != nil {
				return fmt.Errorf("get latest block: %w", err)
			}
			to = latest
		}

		if from <= to {
			if err := r.SyncRange(ctx, from, to); err != nil {
				return err
			}
			from = to + 1
		} else if !r.following() {
			r.logger.Debug("nothing to sync", zap.Uint64("from", from), zap.Uint64("to", to))
		}

		if !r.following() {
			return nil
		}

		timer := time.NewTimer(r.pollInterval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// SyncRange applies every log between from and to, checkpointing after each batch.
func (r *Runner) SyncRange(ctx context.Context, from, to uint64) error {
	ranges, err := SplitRange(from, to, r.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, blockRange := range ranges {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		r.logger.Info("fetch logs", zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))

		applied, faults, err := r.processRange(ctx, blockRange)
		if err != nil {
			return err
		}

		if len(faults) > 0 && r.faults != nil {
			if err := r.faults.PutMappingErrors(faults); err != nil {
				return fmt.Errorf("store mapping errors: %w", err)
			}
		}

		if r.checkpoint != nil {
			if err := r.checkpoint.Save(ctx, blockRange.To); err != nil {
				return err
			}
		}
		r.metrics.Progress(blockRange.To, len(r.watched))

		r.logger.Info("batch complete",
			zap.Int("events", applied),
			zap.Int("faults", len(faults)),
			zap.Uint64("from", blockRange.From),
			zap.Uint64("to", blockRange.To),
		)
	}
	return nil
}

func (r *Runner) processRange(ctx context.Context, blockRange BlockRange) (int, []model.MappingError, error) {
	queue := newLogQueue()

	created, err := r.filterLogsWithRetry(ctx, blockRange.From, blockRange.To,
		[]common.Address{r.cfg.Factory},
		[][]common.Hash{{r.decoder.Topic(model.KindFlowSplitterCreated)}},
	)
	if err != nil {
		return 0, nil, fmt.Errorf("filter factory logs: %w", err)
	}
	queue.push(created...)

	if watched := r.watchedAddresses(); len(watched) > 0 {
		logs, err := r.splitterLogs(ctx, blockRange.From, blockRange.To, watched)
		if err != nil {
			return 0, nil, err
		}
		queue.push(logs...)
	}

	applied := 0
	var faults []model.MappingError
	for {
		log, ok := queue.pop()
		if !ok {
			break
		}

		event, err := r.decoder.Decode(log)
		if err != nil {
			r.logger.Warn("decode log failed", zap.Error(err), zap.Uint64("block_number", log.BlockNumber), zap.Uint("log_index", log.Index))
			r.metrics.Failed("decode")
			faults = append(faults, buildMappingError(log, "", err))
			continue
		}

		if err := r.apply(ctx, log, event); err != nil {
			if !errors.Is(err, mapper.ErrMalformedEvent) {
				return applied, faults, err
			}
			r.logger.Warn("map event failed", zap.Error(err), zap.String("kind", event.Kind), zap.Uint64("block_number", log.BlockNumber))
			r.metrics.Failed("map")
			faults = append(faults, buildMappingError(log, event.Kind, err))
			continue
		}
		applied++
		r.metrics.Mapped(event.Kind)

		if payload, ok := event.Payload.(model.FlowSplitterCreated); ok {
			splitter := common.HexToAddress(payload.FlowSplitter)
			if _, known := r.watched[splitter]; known {
				continue
			}
			r.watched[splitter] = log.BlockNumber

			// Logs of a splitter created in this range were not part of the
			// range query; fetch them now and queue the ones after its creation.
			// Logs from the creating transaction itself (constructor events sit
			// below the factory log) are kept and applied right after it.
			logs, err := r.splitterLogs(ctx, log.BlockNumber, blockRange.To, []common.Address{splitter})
			if err != nil {
				return applied, faults, err
			}
			creationOrder := logOrder(log)
			later := logs[:0]
			for _, l := range logs {
				if logOrder(l) > creationOrder || l.TxHash == log.TxHash {
					later = append(later, l)
				}
			}
			queue.push(later...)
		}
	}
	return applied, faults, nil
}

func (r *Runner) apply(ctx context.Context, log types.Log, event model.DecodedEvent) error {
	ts, err := r.blockTimestampWithRetry(ctx, log.BlockNumber)
	if err != nil {
		return fmt.Errorf("block timestamp %d: %w", log.BlockNumber, err)
	}
	gas, err := r.transactionGasWithRetry(ctx, log.TxHash)
	if err != nil {
		return fmt.Errorf("transaction gas %s: %w", log.TxHash.Hex(), err)
	}
	event = withEnvelope(event, ts, gas)

	return r.store.WithTx(ctx, func(tx storage.Store) error {
		return r.mapper.WithStore(tx).Handle(ctx, event)
	})
}

// splitterLogs returns SplitUpdated logs emitted by splitters and CFA FlowUpdated
// logs whose receiver is one of them.
func (r *Runner) splitterLogs(ctx context.Context, from, to uint64, splitters []common.Address) ([]types.Log, error) {
	updates, err := r.filterLogsWithRetry(ctx, from, to, splitters,
		[][]common.Hash{{r.decoder.Topic(model.KindSplitUpdated)}},
	)
	if err != nil {
		return nil, fmt.Errorf("filter splitter logs: %w", err)
	}
	if r.cfg.CFA == (common.Address{}) {
		return updates, nil
	}

	receivers := make([]common.Hash, 0, len(splitters))
	for _, splitter := range splitters {
		receivers = append(receivers, common.BytesToHash(splitter.Bytes()))
	}
	flows, err := r.filterLogsWithRetry(ctx, from, to, []common.Address{r.cfg.CFA},
		[][]common.Hash{{r.decoder.Topic(model.KindFlowUpdated)}, nil, nil, receivers},
	)
	if err != nil {
		return nil, fmt.Errorf("filter flow logs: %w", err)
	}
	return append(updates, flows...), nil
}

func (r *Runner) loadDataSources(ctx context.Context) error {
	sources, err := r.store.DataSources(ctx)
	if err != nil {
		return fmt.Errorf("load data sources: %w", err)
	}
	for address, start := range sources {
		r.watched[common.HexToAddress(address)] = start
	}
	if len(sources) > 0 {
		r.logger.Info("loaded data sources", zap.Int("count", len(sources)))
	}
	return nil
}

func (r *Runner) watchedAddresses() []common.Address {
	out := make([]common.Address, 0, len(r.watched))
	for address := range r.watched {
		out = append(out, address)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

func (r *Runner) following() bool {
	return r.cfg.Follow && r.cfg.ToBlock == 0
}

func (r *Runner) pollInterval() time.Duration {
	if r.cfg.PollInterval <= 0 {
		return 3 * time.Second
	}
	return r.cfg.PollInterval
}

func (r *Runner) filterLogsWithRetry(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topics [][]common.Hash) ([]types.Log, error) {
	var logs []types.Log
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		logs, err = r.chain.FilterLogs(ctx, fromBlock, toBlock, addresses, topics)
		if err != nil {
			r.logger.Warn("filter logs failed", zap.Error(err), zap.Uint64("from", fromBlock), zap.Uint64("to", toBlock))
		}
		return err
	})
	return logs, err
}

func (r *Runner) latestBlockWithRetry(ctx context.Context) (uint64, error) {
	var latest uint64
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		latest, err = r.chain.LatestBlockNumber(ctx)
		if err != nil {
			r.logger.Warn("latest block fetch failed", zap.Error(err))
		}
		return err
	})
	return latest, err
}

func (r *Runner) blockTimestampWithRetry(ctx context.Context, blockNumber uint64) (uint64, error) {
	var ts uint64
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		ts, err = r.chain.BlockTimestamp(ctx, blockNumber)
		if err != nil {
			r.logger.Warn("block timestamp fetch failed", zap.Error(err), zap.Uint64("block_number", blockNumber))
		}
		return err
	})
	return ts, err
}

func (r *Runner) transactionGasWithRetry(ctx context.Context, hash common.Hash) (chain.TxGas, error) {
	var gas chain.TxGas
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		gas, err = r.chain.TransactionGas(ctx, hash)
		if err != nil {
			r.logger.Warn("transaction fetch failed", zap.Error(err), zap.String("tx_hash", hash.Hex()))
		}
		return err
	})
	return gas, err
}
