package reconcile

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"flowsplit/internal/metrics"
)

// DefaultPollInterval matches the refresh cadence of the splitter dashboard.
const DefaultPollInterval = 3 * time.Second

// Sink receives every snapshot that becomes current.
type Sink interface {
	Publish(ctx context.Context, snap *Snapshot) error
}

// Poller refreshes the reconciled view on a fixed interval. Cycles are started
// on every tick without waiting for the previous one; a cycle that finishes
// after a newer one has published is dropped.
type Poller struct {
	client   *Client
	account  string
	interval time.Duration
	sinks    []Sink
	metrics  *metrics.ReconcileMetrics
	logger   *zap.Logger

	seq     atomic.Uint64
	current atomic.Pointer[Snapshot]
	wg      sync.WaitGroup

	// sinkMu orders sink writes; sunk is the last sequence handed to the sinks.
	sinkMu sync.Mutex
	sunk   uint64
}

func NewPoller(client *Client, account string, interval time.Duration, logger *zap.Logger, sinks ...Sink) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{client: client, account: account, interval: interval, sinks: sinks, logger: logger}
}

// WithMetrics attaches reconciliation metrics.
func (p *Poller) WithMetrics(m *metrics.ReconcileMetrics) *Poller {
	p.metrics = m
	return p
}

// Snapshot returns the latest published snapshot, or nil before the first one.
func (p *Poller) Snapshot() *Snapshot {
	return p.current.Load()
}

// Run refreshes immediately and then on every tick until ctx is cancelled.
// It returns after in-flight cycles have finished.
func (p *Poller) Run(ctx context.Context) error {
	defer p.wg.Wait()

	p.Refresh(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.wg.Add(1)
			go func() {
				defer p.wg.Done()
				p.Refresh(ctx)
			}()
		}
	}
}

// Refresh runs one cycle and reports whether its snapshot became current.
func (p *Poller) Refresh(ctx context.Context) bool {
	seq := p.seq.Add(1)
	snap := p.client.Refresh(ctx, p.account, p.current.Load())
	snap.Seq = seq

	if ctx.Err() != nil {
		p.metrics.Refresh("failed")
		return false
	}
	if !p.publish(snap) {
		p.metrics.Refresh("stale")
		p.logger.Debug("dropping stale snapshot", zap.Uint64("seq", seq))
		return false
	}
	p.metrics.Refresh("published")

	p.deliver(ctx, snap)
	p.logger.Info("snapshot refreshed",
		zap.Uint64("seq", seq),
		zap.Int("flow_splitters", len(snap.FlowSplitters)),
		zap.Int("streams", len(snap.Streams)),
		zap.String("flow_splitters_source", snap.Sources[collectionFlowSplitters]),
		zap.String("streams_source", snap.Sources[collectionStreams]),
	)
	return true
}

func (p *Poller) publish(snap *Snapshot) bool {
	for {
		cur := p.current.Load()
		if cur != nil && cur.Seq > snap.Seq {
			return false
		}
		if p.current.CompareAndSwap(cur, snap) {
			return true
		}
	}
}

// deliver hands snap to the sinks unless a newer snapshot already reached them,
// so sinks end up holding the same snapshot as Snapshot().
func (p *Poller) deliver(ctx context.Context, snap *Snapshot) bool {
	p.sinkMu.Lock()
	defer p.sinkMu.Unlock()
	if snap.Seq <= p.sunk {
		return false
	}
	p.sunk = snap.Seq
	for _, sink := range p.sinks {
		if err := sink.Publish(ctx, snap); err != nil {
			p.logger.Warn("publish snapshot failed", zap.Uint64("seq", snap.Seq), zap.Error(err))
		}
	}
	return true
}
